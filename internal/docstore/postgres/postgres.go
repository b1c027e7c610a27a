// Package postgres stores documents as jsonb rows and runs transactions at
// Serializable, so a query that matched nothing cannot be invalidated by a
// concurrent insert. Rows read inside a transaction are locked FOR UPDATE;
// serialization failures surface as docstore.ErrConflict and are retried.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/platform/db"
)

//go:embed schema.sql
var schema string

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL docstore backend.
type Store struct {
	pool *pgxpool.Pool
	opts docstore.Options
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts docstore.Options) *Store {
	return &Store{pool: pool, opts: opts}
}

var _ docstore.Store = (*Store)(nil)

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("docstore/postgres: migrate: %w", err)
	}
	return nil
}

// RunTx executes fn inside a Serializable transaction.
func (s *Store) RunTx(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	return docstore.Retry(ctx, s.opts, func() error {
		err := db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			txn := docstore.NewTxn(reader{q: tx, lock: true})
			if err := fn(ctx, txn); err != nil {
				return err
			}
			return applyWrites(ctx, tx, txn.Writes())
		})
		return mapError(err)
	})
}

// Get reads a committed document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref, dst any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	snap, found, err := reader{q: s.pool}.Load(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", ref, docstore.ErrNotFound)
	}
	return snap.Decode(dst)
}

// Query evaluates q; string equality filters run in SQL, the rest in memory.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := reader{q: s.pool}.Scan(ctx, q)
	if err != nil {
		return nil, err
	}
	return q.Apply(rows)
}

// Count counts matching documents, in SQL when every filter can be pushed down.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	where, args, complete := whereClause(q)
	if !complete {
		q.Limit = 0
		rows, err := s.Query(ctx, q)
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	}
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("docstore/postgres: count: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type reader struct {
	q    querier
	lock bool
}

func (r reader) Load(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, bool, error) {
	sql := `SELECT body, version FROM documents WHERE tenant_id = $1 AND collection = $2 AND id = $3`
	if r.lock {
		sql += " FOR UPDATE"
	}
	snap := docstore.Snapshot{Ref: ref}
	err := r.q.QueryRow(ctx, sql, ref.Tenant, ref.Collection, ref.ID).Scan(&snap.Data, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Snapshot{}, false, nil
	}
	if err != nil {
		return docstore.Snapshot{}, false, mapError(fmt.Errorf("docstore/postgres: load %s: %w", ref, err))
	}
	return snap, true, nil
}

func (r reader) Scan(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	where, args, _ := whereClause(q)
	rows, err := r.q.Query(ctx, "SELECT id, body, version FROM documents WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("docstore/postgres: scan %s/%s: %w", q.Tenant, q.Collection, err))
	}
	defer rows.Close()

	var out []docstore.Snapshot
	for rows.Next() {
		snap := docstore.Snapshot{Ref: docstore.Ref{Tenant: q.Tenant, Collection: q.Collection}}
		if err := rows.Scan(&snap.Ref.ID, &snap.Data, &snap.Version); err != nil {
			return nil, fmt.Errorf("docstore/postgres: scan row: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("docstore/postgres: scan rows: %w", err))
	}
	return out, nil
}

// whereClause renders the tenant/collection scope plus every string equality
// filter. complete reports whether all filters were pushed down.
func whereClause(q docstore.Query) (string, []any, bool) {
	clauses := []string{"tenant_id = $1", "collection = $2"}
	args := []any{q.Tenant, q.Collection}
	complete := true
	for _, f := range q.Filters {
		value, ok := f.Value.(string)
		if f.Op != docstore.OpEq || !ok {
			complete = false
			continue
		}
		args = append(args, f.Field, value)
		clauses = append(clauses, fmt.Sprintf("body->>$%d = $%d", len(args)-1, len(args)))
	}
	return strings.Join(clauses, " AND "), args, complete
}

func applyWrites(ctx context.Context, tx pgx.Tx, writes []docstore.Write) error {
	for _, w := range writes {
		ref := w.Ref
		switch w.Kind {
		case docstore.WriteCreate:
			tag, err := tx.Exec(ctx, `INSERT INTO documents (tenant_id, collection, id, body)
VALUES ($1, $2, $3, $4) ON CONFLICT (tenant_id, collection, id) DO NOTHING`,
				ref.Tenant, ref.Collection, ref.ID, []byte(w.Data))
			if err != nil {
				return fmt.Errorf("docstore/postgres: create %s: %w", ref, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%s: %w", ref, docstore.ErrAlreadyExists)
			}
		case docstore.WriteSet:
			if _, err := tx.Exec(ctx, `INSERT INTO documents (tenant_id, collection, id, body)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, collection, id) DO UPDATE
SET body = EXCLUDED.body, version = documents.version + 1, updated_at = NOW()`,
				ref.Tenant, ref.Collection, ref.ID, []byte(w.Data)); err != nil {
				return fmt.Errorf("docstore/postgres: set %s: %w", ref, err)
			}
		case docstore.WriteDelete:
			if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE tenant_id = $1 AND collection = $2 AND id = $3`,
				ref.Tenant, ref.Collection, ref.ID); err != nil {
				return fmt.Errorf("docstore/postgres: delete %s: %w", ref, err)
			}
		}
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", docstore.ErrConflict, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, pgErr.Message)
		}
	}
	return err
}
