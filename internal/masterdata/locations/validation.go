package locations

import (
	"strings"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

func (s *Service) validate(l Location) error {
	if strings.TrimSpace(l.Code) == "" {
		return shared.Invalidf("location code is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return shared.Invalidf("location name is required")
	}
	switch l.Type {
	case "", TypeStore, TypePharmacy, TypeWard:
	default:
		return shared.Invalidf("unknown location type %q", l.Type)
	}
	return nil
}
