package taxes

import "github.com/shopspring/decimal"

// Tax represents a tax configuration.
type Tax struct {
	ID   string          `json:"id"`
	Code string          `json:"code" validate:"required"`
	Name string          `json:"name" validate:"required"`
	Rate decimal.Decimal `json:"rate" validate:"gte=0,lte=100"`
}

// TaxGroup is a named set of taxes applied together. TotalRate is kept in
// sync with the member rates.
type TaxGroup struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" validate:"required"`
	TaxIDs    []string        `json:"taxIds" validate:"required,min=1"`
	TotalRate decimal.Decimal `json:"totalRate"`
}

const (
	collectionTaxes  = "taxes"
	collectionGroups = "tax_groups"
)
