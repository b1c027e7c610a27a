// Package money holds the pure monetary arithmetic shared by billing,
// point-of-sale and stock ordering. All amounts are rounded to two decimal
// places before they leave this package.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns amount * pct / 100 rounded to two places.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(pct).Div(hundred))
}

// Sum adds values and rounds the result.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round2(total)
}

// TaxRate is a named percentage resolved from a tax group.
type TaxRate struct {
	Name string
	Rate decimal.Decimal
}

// TaxComponent is one line of a document's tax breakdown.
type TaxComponent struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals is the derived money block of a monetary document.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxComponents  []TaxComponent  `json:"taxComponents"`
	TotalTax       decimal.Decimal `json:"totalTax"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

// ComputeTotals derives tax components, discount and total from a subtotal.
// rates may be empty when the document has no tax group; discountPct may be zero.
func ComputeTotals(subtotal decimal.Decimal, rates []TaxRate, discountPct decimal.Decimal) Totals {
	subtotal = Round2(subtotal)
	components := make([]TaxComponent, 0, len(rates))
	totalTax := decimal.Zero
	for _, r := range rates {
		amount := Percent(subtotal, r.Rate)
		components = append(components, TaxComponent{Name: r.Name, Rate: r.Rate, Amount: amount})
		totalTax = totalTax.Add(amount)
	}
	totalTax = Round2(totalTax)
	discount := Percent(subtotal, discountPct)
	return Totals{
		Subtotal:       subtotal,
		TaxComponents:  components,
		TotalTax:       totalTax,
		DiscountAmount: discount,
		TotalAmount:    Round2(subtotal.Add(totalTax).Sub(discount)),
	}
}
