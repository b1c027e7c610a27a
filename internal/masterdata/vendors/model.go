// Package vendors manages the suppliers stock orders are placed with.
package vendors

import "time"

// Collection stores vendors.
const Collection = "vendors"

// Vendor represents a supplier of stock items.
type Vendor struct {
	ID        string    `json:"id"`
	Code      string    `json:"code" validate:"required,max=20"`
	Name      string    `json:"name" validate:"required,max=200"`
	Address   string    `json:"address"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone"`
	TaxNumber string    `json:"taxNumber"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
