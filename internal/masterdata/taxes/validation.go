package taxes

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

var maxRate = decimal.NewFromInt(100)

func (s *Service) validate(t Tax) error {
	if strings.TrimSpace(t.Code) == "" {
		return shared.Invalidf("tax code is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return shared.Invalidf("tax name is required")
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThan(maxRate) {
		return shared.Invalidf("tax rate must be between 0 and 100")
	}
	return nil
}

func (s *Service) validateGroup(g TaxGroup) error {
	if strings.TrimSpace(g.Name) == "" {
		return shared.Invalidf("tax group name is required")
	}
	if len(g.TaxIDs) == 0 {
		return shared.Invalidf("tax group needs at least one tax")
	}
	seen := make(map[string]struct{}, len(g.TaxIDs))
	for _, id := range g.TaxIDs {
		if _, dup := seen[id]; dup {
			return shared.Invalidf("tax %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
