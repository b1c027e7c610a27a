package rbac

import (
	"fmt"
	"strings"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Level is an access level on a resource. Higher levels imply lower ones.
type Level int

const (
	LevelNone Level = iota
	LevelView
	LevelEdit
	LevelManage
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelView:   "view",
	LevelEdit:   "edit",
	LevelManage: "manage",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name.
func ParseLevel(raw string) (Level, error) {
	for level, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return level, nil
		}
	}
	return LevelNone, shared.Invalidf("unknown access level %q", raw)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Resource is a protected area of the application.
type Resource string

const (
	ResourcePatients     Resource = "patients"
	ResourceAppointments Resource = "appointments"
	ResourceBilling      Resource = "billing"
	ResourcePOS          Resource = "pos"
	ResourceInventory    Resource = "inventory"
	ResourcePayroll      Resource = "payroll"
	ResourceSettings     Resource = "settings"
	ResourceReports      Resource = "reports"
)

// Resources lists every protected resource.
func Resources() []Resource {
	return []Resource{
		ResourcePatients, ResourceAppointments, ResourceBilling, ResourcePOS,
		ResourceInventory, ResourcePayroll, ResourceSettings, ResourceReports,
	}
}

// Staff roles.
const (
	RoleAdmin        shared.Role = "admin"
	RoleDoctor       shared.Role = "doctor"
	RoleReceptionist shared.Role = "receptionist"
	RolePharmacist   shared.Role = "pharmacist"
	RoleAccountant   shared.Role = "accountant"
	RoleHR           shared.Role = "hr"
)

// Policy maps (role, resource) to an access level.
type Policy map[shared.Role]map[Resource]Level

// Level looks up a grant; missing entries resolve to LevelNone.
func (p Policy) Level(role shared.Role, resource Resource) Level {
	return p[role][resource]
}

func (p Policy) clone() Policy {
	out := make(Policy, len(p))
	for role, grants := range p {
		copied := make(map[Resource]Level, len(grants))
		for res, lvl := range grants {
			copied[res] = lvl
		}
		out[role] = copied
	}
	return out
}

// DefaultPolicy is the role table applied before tenant overrides.
func DefaultPolicy() Policy {
	all := func(level Level) map[Resource]Level {
		grants := make(map[Resource]Level)
		for _, r := range Resources() {
			grants[r] = level
		}
		return grants
	}
	return Policy{
		RoleAdmin: all(LevelManage),
		RoleDoctor: {
			ResourcePatients:     LevelEdit,
			ResourceAppointments: LevelEdit,
			ResourceBilling:      LevelView,
			ResourceInventory:    LevelView,
		},
		RoleReceptionist: {
			ResourcePatients:     LevelEdit,
			ResourceAppointments: LevelManage,
			ResourceBilling:      LevelEdit,
			ResourcePOS:          LevelEdit,
			ResourceInventory:    LevelView,
		},
		RolePharmacist: {
			ResourcePatients:     LevelView,
			ResourceAppointments: LevelView,
			ResourceBilling:      LevelView,
			ResourcePOS:          LevelManage,
			ResourceInventory:    LevelManage,
			ResourceReports:      LevelView,
		},
		RoleAccountant: {
			ResourcePatients:  LevelView,
			ResourceBilling:   LevelManage,
			ResourcePOS:       LevelView,
			ResourceInventory: LevelView,
			ResourcePayroll:   LevelEdit,
			ResourceReports:   LevelManage,
		},
		RoleHR: {
			ResourcePayroll: LevelManage,
			ResourceReports: LevelView,
		},
	}
}

// Override is a tenant-specific grant table for one role, stored in the
// role_overrides collection keyed by role.
type Override struct {
	Role   shared.Role        `json:"role"`
	Levels map[Resource]Level `json:"levels"`
}
