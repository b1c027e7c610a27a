package money

import "github.com/shopspring/decimal"

// DefaultMarginPct is applied when no prior batch provides a usable margin.
var DefaultMarginPct = decimal.NewFromInt(20)

// MarginPct returns (sale/cost - 1) * 100. ok is false when cost is not positive.
func MarginPct(cost, sale decimal.Decimal) (decimal.Decimal, bool) {
	if !cost.IsPositive() {
		return decimal.Zero, false
	}
	return sale.Div(cost).Sub(decimal.NewFromInt(1)).Mul(hundred), true
}

// SalePriceFromMargin applies marginPct on top of cost.
func SalePriceFromMargin(cost, marginPct decimal.Decimal) decimal.Decimal {
	return Round2(cost.Mul(hundred.Add(marginPct)).Div(hundred))
}

// InclusivePrice adds ratePct tax to a tax-exclusive price.
func InclusivePrice(exclusive, ratePct decimal.Decimal) decimal.Decimal {
	return Round2(exclusive.Mul(hundred.Add(ratePct)).Div(hundred))
}

// ExclusivePrice strips ratePct tax from a tax-inclusive price.
func ExclusivePrice(inclusive, ratePct decimal.Decimal) decimal.Decimal {
	divisor := hundred.Add(ratePct)
	if divisor.IsZero() {
		return Round2(inclusive)
	}
	return Round2(inclusive.Mul(hundred).Div(divisor))
}

// TaxPortion returns the tax contained in a tax-inclusive price.
func TaxPortion(inclusive, ratePct decimal.Decimal) decimal.Decimal {
	return Round2(inclusive.Sub(ExclusivePrice(inclusive, ratePct)))
}
