package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

const (
	collectionSubscriptions = "subscriptions"
	subscriptionDocID       = "current"
)

// Service manages subscriptions and quota checks.
type Service struct {
	store docstore.Store
	plans map[string]Plan
	now   func() time.Time
}

// NewService constructs a Service over the default plan catalogue.
func NewService(store docstore.Store) *Service {
	return &Service{store: store, plans: DefaultPlans(), now: time.Now}
}

// Subscription returns the tenant's subscription, defaulting to the free plan.
func (s *Service) Subscription(ctx context.Context, tenant string) (Subscription, error) {
	var sub Subscription
	err := s.store.Get(ctx, docstore.NewRef(tenant, collectionSubscriptions, subscriptionDocID), &sub)
	if errors.Is(err, docstore.ErrNotFound) {
		return Subscription{TenantID: tenant, PlanID: DefaultPlanID, Status: SubscriptionActive}, nil
	}
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// Plan resolves the tenant's active plan.
func (s *Service) Plan(ctx context.Context, tenant string) (Plan, error) {
	sub, err := s.Subscription(ctx, tenant)
	if err != nil {
		return Plan{}, err
	}
	if sub.Status == SubscriptionCanceled {
		return s.plans[DefaultPlanID], nil
	}
	plan, ok := s.plans[sub.PlanID]
	if !ok {
		return Plan{}, fmt.Errorf("tenancy: plan %q: %w", sub.PlanID, shared.ErrNotFound)
	}
	return plan, nil
}

// ChangePlan records a new plan for the tenant.
func (s *Service) ChangePlan(ctx context.Context, tenant, planID string) (Subscription, error) {
	if _, ok := s.plans[planID]; !ok {
		return Subscription{}, shared.Invalidf("unknown plan %q", planID)
	}
	sub := Subscription{TenantID: tenant, PlanID: planID, Status: SubscriptionActive, UpdatedAt: s.now().UTC()}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(docstore.NewRef(tenant, collectionSubscriptions, subscriptionDocID), sub)
	})
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// Check counts existing documents of resource and returns ErrLimitReached
// when the plan cap is met. It runs outside any transaction, so two
// concurrent creations may both pass; the quota is advisory.
func (s *Service) Check(ctx context.Context, tenant string, resource Resource) error {
	collection, ok := collections[resource]
	if !ok {
		return shared.Invalidf("unknown quota resource %q", resource)
	}
	plan, err := s.Plan(ctx, tenant)
	if err != nil {
		return err
	}
	limit := plan.Limit(resource)
	if limit == Unlimited {
		return nil
	}
	used, err := s.store.Count(ctx, docstore.Query{Tenant: tenant, Collection: collection})
	if err != nil {
		return fmt.Errorf("tenancy: count %s: %w", resource, err)
	}
	if used >= limit {
		return fmt.Errorf("%s quota of %d on plan %s: %w", resource, limit, plan.Name, shared.ErrLimitReached)
	}
	return nil
}

// Usage reports every limited resource for tenant.
func (s *Service) Usage(ctx context.Context, tenant string) ([]Usage, error) {
	plan, err := s.Plan(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := make([]Usage, 0, len(collections))
	for _, res := range []Resource{ResourcePatients, ResourceDoctors, ResourceProducts, ResourceStaff} {
		used, err := s.store.Count(ctx, docstore.Query{Tenant: tenant, Collection: collections[res]})
		if err != nil {
			return nil, err
		}
		out = append(out, Usage{Resource: res, Used: used, Limit: plan.Limit(res)})
	}
	return out, nil
}

// Checker is the quota contract consumed by creating services.
type Checker interface {
	Check(ctx context.Context, tenant string, resource Resource) error
}

var _ Checker = (*Service)(nil)
