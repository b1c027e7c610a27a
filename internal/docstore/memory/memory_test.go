package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

type counter struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

func TestRunTxCommitsAllWritesAtomically(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	a := docstore.NewRef("h1", "counters", "a")
	b := docstore.NewRef("h1", "counters", "b")

	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Create(a, counter{Name: "a", Value: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		return tx.Create(b, counter{Name: "b", Value: decimal.NewFromInt(2)})
	})
	require.NoError(t, err)

	var got counter
	require.NoError(t, store.Get(ctx, b, &got))
	require.True(t, got.Value.Equal(decimal.NewFromInt(2)))
}

func TestRunTxDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	ref := docstore.NewRef("h1", "counters", "a")
	boom := errors.New("boom")

	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		require.NoError(t, tx.Set(ref, counter{Name: "a"}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, store.Get(ctx, ref, &counter{}), docstore.ErrNotFound)
}

func TestTxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	ref := docstore.NewRef("h1", "counters", "a")

	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		require.NoError(t, tx.Create(ref, counter{Name: "a", Value: decimal.NewFromInt(1)}))
		require.NoError(t, tx.Update(ctx, ref, map[string]any{"value": decimal.NewFromInt(5)}))

		var got counter
		require.NoError(t, tx.Get(ctx, ref, &got))
		require.Equal(t, "a", got.Name)
		require.True(t, got.Value.Equal(decimal.NewFromInt(5)))

		rows, err := tx.Query(ctx, docstore.Query{Tenant: "h1", Collection: "counters"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateExistingFailsAtCommit(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	ref := docstore.NewRef("h1", "counters", "a")
	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ref, counter{Name: "a"})
	}))

	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ref, counter{Name: "again"})
	})
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)
}

func TestUpdateMissingDocumentIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(ctx, docstore.NewRef("h1", "counters", "missing"), map[string]any{"value": 1})
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(docstore.NewRef("h1", "counters", "a"), counter{Name: "a"})
	}))

	require.ErrorIs(t, store.Get(ctx, docstore.NewRef("h2", "counters", "a"), &counter{}), docstore.ErrNotFound)
	n, err := store.Count(ctx, docstore.Query{Tenant: "h2", Collection: "counters"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestConcurrentIncrementsRetryOnConflict(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{MaxAttempts: 1000})
	ref := docstore.NewRef("h1", "counters", "shared")
	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ref, counter{Name: "shared", Value: decimal.Zero})
	}))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
				var c counter
				if err := tx.Get(ctx, ref, &c); err != nil {
					return err
				}
				return tx.Update(ctx, ref, map[string]any{"value": c.Value.Add(decimal.NewFromInt(1))})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var got counter
	require.NoError(t, store.Get(ctx, ref, &got))
	require.True(t, got.Value.Equal(decimal.NewFromInt(workers)), "got %s", got.Value)
}

func TestEmptyQueryConflictsWhenMatchAppears(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{MaxAttempts: 2})
	errTaken := errors.New("name taken")
	byName := docstore.Query{Tenant: "h1", Collection: "counters"}.Where("name", docstore.OpEq, "x")

	attempts := 0
	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		rows, err := tx.Query(ctx, byName)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return errTaken
		}
		if attempts == 1 {
			require.NoError(t, store.RunTx(ctx, func(ctx context.Context, other docstore.Tx) error {
				return other.Create(docstore.NewRef("h1", "counters", "other"), counter{Name: "x"})
			}))
		}
		return tx.Create(docstore.NewRef("h1", "counters", "mine"), counter{Name: "x"})
	})
	require.ErrorIs(t, err, errTaken)
	require.Equal(t, 2, attempts)

	n, err := store.Count(ctx, byName)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUnrelatedInsertDoesNotConflictWithQuery(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{MaxAttempts: 1})
	byName := docstore.Query{Tenant: "h1", Collection: "counters"}.Where("name", docstore.OpEq, "x")

	err := store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Query(ctx, byName); err != nil {
			return err
		}
		require.NoError(t, store.RunTx(ctx, func(ctx context.Context, other docstore.Tx) error {
			return other.Create(docstore.NewRef("h1", "counters", "y"), counter{Name: "y"})
		}))
		return tx.Create(docstore.NewRef("h1", "counters", "x"), counter{Name: "x"})
	})
	require.NoError(t, err)
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := New(docstore.Options{})
	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		for i, v := range []int64{30, 10, 20} {
			ref := docstore.NewRef("h1", "counters", string(rune('a'+i)))
			if err := tx.Create(ref, counter{Name: ref.ID, Value: decimal.NewFromInt(v)}); err != nil {
				return err
			}
		}
		return nil
	}))

	rows, err := store.Query(ctx, docstore.Query{Tenant: "h1", Collection: "counters", OrderBy: "value"}.
		Where("value", docstore.OpGte, decimal.NewFromInt(15)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "c", rows[0].Ref.ID)
	require.Equal(t, "a", rows[1].Ref.ID)
}
