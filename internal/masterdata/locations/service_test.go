package locations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

func TestDeleteRefusesLocationWithStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	svc := NewService(store)

	full, err := svc.Create(ctx, "h1", Location{Code: "PH", Name: "Pharmacy", Type: TypePharmacy})
	require.NoError(t, err)
	empty, err := svc.Create(ctx, "h1", Location{Code: "W1", Name: "Ward 1"})
	require.NoError(t, err)
	require.Equal(t, TypeStore, empty.Type)

	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Create(docstore.NewRef("h1", stockCollection, "i1_"+full.ID), map[string]any{"locationId": full.ID, "totalStock": "5"}); err != nil {
			return err
		}
		return tx.Create(docstore.NewRef("h1", stockCollection, "i1_"+empty.ID), map[string]any{"locationId": empty.ID, "totalStock": "0"})
	}))

	require.ErrorIs(t, svc.Delete(ctx, "h1", full.ID), appshared.ErrAlreadyFinalState)
	require.NoError(t, svc.Delete(ctx, "h1", empty.ID))

	_, err = Require(ctx, store, "h1", empty.ID)
	require.ErrorIs(t, err, appshared.ErrNotFound)
	got, err := Require(ctx, store, "h1", full.ID)
	require.NoError(t, err)
	require.Equal(t, "Pharmacy", got.Name)
}

func TestValidation(t *testing.T) {
	svc := NewService(memory.New(docstore.Options{}))
	_, err := svc.Create(context.Background(), "h1", Location{Code: "X", Name: "X", Type: "garage"})
	require.ErrorIs(t, err, appshared.ErrValidation)
	require.ErrorIs(t, svc.Update(context.Background(), "h1", "missing", Location{Code: "X", Name: "X"}), appshared.ErrNotFound)
}
