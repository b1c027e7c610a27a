// Package locations manages the stock-holding places of a hospital such as
// the main store, the pharmacy counter or a ward cupboard.
package locations

import "time"

// Collection stores locations.
const Collection = "locations"

// stockCollection holds per-location stock documents written by inventory.
const stockCollection = "location_stock"

// Location Types.
const (
	TypeStore    = "store"
	TypePharmacy = "pharmacy"
	TypeWard     = "ward"
)

// Location represents a stock location.
type Location struct {
	ID        string    `json:"id"`
	Code      string    `json:"code" validate:"required,max=20"`
	Name      string    `json:"name" validate:"required,max=200"`
	Type      string    `json:"type" validate:"omitempty,oneof=store pharmacy ward"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
