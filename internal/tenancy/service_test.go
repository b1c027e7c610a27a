package tenancy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func seedDoctors(t *testing.T, store docstore.Store, tenant string, n int) {
	t.Helper()
	require.NoError(t, store.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		for i := 0; i < n; i++ {
			if err := tx.Create(docstore.NewRef(tenant, "doctors", fmt.Sprintf("d%d", i)), map[string]string{"name": "doc"}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestCheckReturnsLimitReachedOnFreePlan(t *testing.T) {
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	svc := NewService(store)

	require.NoError(t, svc.Check(ctx, "h1", ResourceDoctors))
	seedDoctors(t, store, "h1", 2)
	require.ErrorIs(t, svc.Check(ctx, "h1", ResourceDoctors), shared.ErrLimitReached)

	require.NoError(t, svc.Check(ctx, "h2", ResourceDoctors), "quota is counted per tenant")
}

func TestChangePlanLiftsLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	svc := NewService(store)
	seedDoctors(t, store, "h1", 2)

	_, err := svc.ChangePlan(ctx, "h1", "hospital")
	require.NoError(t, err)
	require.NoError(t, svc.Check(ctx, "h1", ResourceDoctors))

	usage, err := svc.Usage(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, ResourceDoctors, usage[1].Resource)
	require.Equal(t, 2, usage[1].Used)
	require.Equal(t, Unlimited, usage[1].Limit)

	_, err = svc.ChangePlan(ctx, "h1", "platinum")
	require.ErrorIs(t, err, shared.ErrValidation)
}
