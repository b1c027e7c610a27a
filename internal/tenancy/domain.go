// Package tenancy holds hospital subscriptions and the advisory quota checks
// performed before creating patients, doctors, products and staff.
package tenancy

import "time"

// Resource is a quota-limited document kind.
type Resource string

const (
	ResourcePatients Resource = "patients"
	ResourceDoctors  Resource = "doctors"
	ResourceProducts Resource = "products"
	ResourceStaff    Resource = "staff"
)

// collections maps quota resources onto document collections.
var collections = map[Resource]string{
	ResourcePatients: "patients",
	ResourceDoctors:  "doctors",
	ResourceProducts: "stock_items",
	ResourceStaff:    "employees",
}

// Unlimited marks a resource without a cap.
const Unlimited = -1

// Plan is a subscription tier.
type Plan struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Limits map[Resource]int `json:"limits"`
}

// Limit returns the cap for resource; absent entries are unlimited.
func (p Plan) Limit(r Resource) int {
	if limit, ok := p.Limits[r]; ok {
		return limit
	}
	return Unlimited
}

// DefaultPlanID applies to tenants without a subscription document.
const DefaultPlanID = "free"

// DefaultPlans is the built-in plan catalogue.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		"free": {ID: "free", Name: "Free", Limits: map[Resource]int{
			ResourcePatients: 100, ResourceDoctors: 2, ResourceProducts: 50, ResourceStaff: 5,
		}},
		"clinic": {ID: "clinic", Name: "Clinic", Limits: map[Resource]int{
			ResourcePatients: 5000, ResourceDoctors: 10, ResourceProducts: 1000, ResourceStaff: 50,
		}},
		"hospital": {ID: "hospital", Name: "Hospital", Limits: map[Resource]int{}},
	}
}

// SubscriptionStatus tracks billing state managed by the external gateway.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is the per-tenant plan binding, stored at subscriptions/current.
type Subscription struct {
	TenantID  string             `json:"tenantId"`
	PlanID    string             `json:"planId"`
	Status    SubscriptionStatus `json:"status"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Usage reports consumption against one limit.
type Usage struct {
	Resource Resource `json:"resource"`
	Used     int      `json:"used"`
	Limit    int      `json:"limit"`
}
