// Package sqlite is a single-file docstore backend. Transactions open with
// BEGIN IMMEDIATE so writers are serialized by SQLite itself and every read
// and query inside RunTx sees state no other writer can change before commit.
// A busy database surfaces as docstore.ErrConflict and the transaction is
// retried.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	tenant_id  TEXT    NOT NULL,
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	body       TEXT    NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	PRIMARY KEY (tenant_id, collection, id)
);
`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements docstore.Store on SQLite.
type Store struct {
	db   *sql.DB
	opts docstore.Options
}

var _ docstore.Store = (*Store)(nil)

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, opts docstore.Options) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore/sqlite: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore/sqlite: migrate: %w", err)
	}
	return &Store{db: db, opts: opts}, nil
}

// RunTx runs fn inside an immediate transaction.
func (s *Store) RunTx(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	return docstore.Retry(ctx, s.opts, func() error {
		return mapError(s.runOnce(ctx, fn))
	})
}

func (s *Store) runOnce(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore/sqlite: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txn := docstore.NewTxn(reader{q: tx})
	if err := fn(ctx, txn); err != nil {
		return err
	}
	if err := applyWrites(ctx, tx, txn.Writes()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore/sqlite: commit: %w", err)
	}
	return nil
}

// Get reads a committed document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref, dst any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	snap, found, err := reader{q: s.db}.Load(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", ref, docstore.ErrNotFound)
	}
	return snap.Decode(dst)
}

// Query evaluates q against committed documents.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := reader{q: s.db}.Scan(ctx, q)
	if err != nil {
		return nil, err
	}
	return q.Apply(rows)
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int, error) {
	q.Limit = 0
	rows, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type reader struct{ q querier }

func (r reader) Load(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, bool, error) {
	var body string
	snap := docstore.Snapshot{Ref: ref}
	err := r.q.QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE tenant_id = ? AND collection = ? AND id = ?`,
		ref.Tenant, ref.Collection, ref.ID).Scan(&body, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{}, false, nil
	}
	if err != nil {
		return docstore.Snapshot{}, false, fmt.Errorf("docstore/sqlite: load %s: %w", ref, err)
	}
	snap.Data = []byte(body)
	return snap, true, nil
}

func (r reader) Scan(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	clauses := []string{"tenant_id = ?", "collection = ?"}
	args := []any{q.Tenant, q.Collection}
	for _, f := range q.Filters {
		if value, ok := f.Value.(string); ok && f.Op == docstore.OpEq {
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, "$."+f.Field, value)
		}
	}
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, body, version FROM documents WHERE "+strings.Join(clauses, " AND ")+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("docstore/sqlite: scan %s/%s: %w", q.Tenant, q.Collection, err)
	}
	defer rows.Close()

	var out []docstore.Snapshot
	for rows.Next() {
		var body string
		snap := docstore.Snapshot{Ref: docstore.Ref{Tenant: q.Tenant, Collection: q.Collection}}
		if err := rows.Scan(&snap.Ref.ID, &body, &snap.Version); err != nil {
			return nil, fmt.Errorf("docstore/sqlite: scan row: %w", err)
		}
		snap.Data = []byte(body)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func applyWrites(ctx context.Context, tx *sql.Tx, writes []docstore.Write) error {
	for _, w := range writes {
		ref := w.Ref
		switch w.Kind {
		case docstore.WriteCreate:
			res, err := tx.ExecContext(ctx, `INSERT INTO documents (tenant_id, collection, id, body)
VALUES (?, ?, ?, ?) ON CONFLICT (tenant_id, collection, id) DO NOTHING`,
				ref.Tenant, ref.Collection, ref.ID, string(w.Data))
			if err != nil {
				return fmt.Errorf("docstore/sqlite: create %s: %w", ref, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%s: %w", ref, docstore.ErrAlreadyExists)
			}
		case docstore.WriteSet:
			if _, err := tx.ExecContext(ctx, `INSERT INTO documents (tenant_id, collection, id, body)
VALUES (?, ?, ?, ?)
ON CONFLICT (tenant_id, collection, id) DO UPDATE
SET body = excluded.body, version = documents.version + 1,
    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
				ref.Tenant, ref.Collection, ref.ID, string(w.Data)); err != nil {
				return fmt.Errorf("docstore/sqlite: set %s: %w", ref, err)
			}
		case docstore.WriteDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE tenant_id = ? AND collection = ? AND id = ?`,
				ref.Tenant, ref.Collection, ref.ID); err != nil {
				return fmt.Errorf("docstore/sqlite: delete %s: %w", ref, err)
			}
		}
	}
	return nil
}

func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %s", docstore.ErrConflict, sqliteErr.Error())
		}
	}
	return err
}
