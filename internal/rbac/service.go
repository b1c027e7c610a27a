package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// CollectionOverrides holds per-tenant role overrides.
const CollectionOverrides = "role_overrides"

type cachedPolicy struct {
	policy  Policy
	expires time.Time
}

// Service resolves effective access levels: tenant override first, then the
// role default. Policies are cached per tenant.
type Service struct {
	store    docstore.Store
	defaults Policy
	ttl      time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPolicy
	group singleflight.Group
}

// NewService constructs a Service. A zero ttl caches policies for five minutes.
func NewService(store docstore.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:    store,
		defaults: DefaultPolicy(),
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cachedPolicy),
	}
}

// Policy returns the effective policy for tenant.
func (s *Service) Policy(ctx context.Context, tenant string) (Policy, error) {
	s.mu.RLock()
	entry, ok := s.cache[tenant]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		return entry.policy, nil
	}

	v, err, _ := s.group.Do(tenant, func() (any, error) {
		policy, err := s.load(ctx, tenant)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[tenant] = cachedPolicy{policy: policy, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return policy, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Policy), nil
}

func (s *Service) load(ctx context.Context, tenant string) (Policy, error) {
	policy := s.defaults.clone()
	if s.store == nil {
		return policy, nil
	}
	rows, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: CollectionOverrides})
	if err != nil {
		return nil, fmt.Errorf("rbac: load overrides: %w", err)
	}
	for _, row := range rows {
		var o Override
		if err := row.Decode(&o); err != nil {
			return nil, err
		}
		grants, ok := policy[o.Role]
		if !ok {
			grants = make(map[Resource]Level)
			policy[o.Role] = grants
		}
		for res, lvl := range o.Levels {
			grants[res] = lvl
		}
	}
	return policy, nil
}

// Invalidate drops the cached policy for tenant.
func (s *Service) Invalidate(tenant string) {
	s.mu.Lock()
	delete(s.cache, tenant)
	s.mu.Unlock()
}

// Authorize returns ErrPermissionDenied unless p holds at least need on resource.
func (s *Service) Authorize(ctx context.Context, p shared.Principal, resource Resource, need Level) error {
	if p.TenantID == "" || p.Role == "" {
		return fmt.Errorf("rbac: anonymous principal: %w", shared.ErrPermissionDenied)
	}
	policy, err := s.Policy(ctx, p.TenantID)
	if err != nil {
		return err
	}
	if have := policy.Level(p.Role, resource); have < need {
		return fmt.Errorf("rbac: role %s has %s on %s, needs %s: %w", p.Role, have, resource, need, shared.ErrPermissionDenied)
	}
	return nil
}

// SetOverride stores a tenant override for one (role, resource) pair.
func (s *Service) SetOverride(ctx context.Context, tenant string, role shared.Role, resource Resource, level Level) (Override, error) {
	if role == "" {
		return Override{}, shared.Invalidf("role required")
	}
	if !knownResource(resource) {
		return Override{}, shared.Invalidf("unknown resource %q", resource)
	}
	ref := docstore.NewRef(tenant, CollectionOverrides, string(role))
	var out Override
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		out = Override{Role: role, Levels: map[Resource]Level{}}
		if err := tx.Get(ctx, ref, &out); err != nil && !isNotFound(err) {
			return err
		}
		if out.Levels == nil {
			out.Levels = map[Resource]Level{}
		}
		out.Levels[resource] = level
		return tx.Set(ref, out)
	})
	if err != nil {
		return Override{}, err
	}
	s.Invalidate(tenant)
	return out, nil
}

// ClearOverrides removes every override for role.
func (s *Service) ClearOverrides(ctx context.Context, tenant string, role shared.Role) error {
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(docstore.NewRef(tenant, CollectionOverrides, string(role)))
	})
	if err != nil {
		return err
	}
	s.Invalidate(tenant)
	return nil
}

func knownResource(r Resource) bool {
	for _, known := range Resources() {
		if known == r {
			return true
		}
	}
	return false
}
