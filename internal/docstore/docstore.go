// Package docstore defines the transactional document store port used by the
// ledger, inventory and payroll procedures. Backends live in subpackages.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

var (
	// ErrNotFound is returned when a document does not exist. It wraps shared.ErrNotFound.
	ErrNotFound = fmt.Errorf("docstore: document %w", shared.ErrNotFound)
	// ErrAlreadyExists is returned when Create targets an existing document.
	ErrAlreadyExists = fmt.Errorf("docstore: document already exists: %w", shared.ErrDuplicate)
	// ErrConflict signals a concurrent modification detected at commit time.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrInvalidRef indicates an incomplete document reference.
	ErrInvalidRef = errors.New("docstore: tenant, collection and id required")
)

// DefaultMaxAttempts bounds transaction retries on conflict.
const DefaultMaxAttempts = 5

// Ref addresses a single document. The tenant is part of every key so reads
// and writes can never cross hospitals.
type Ref struct {
	Tenant     string
	Collection string
	ID         string
}

// NewRef builds a Ref.
func NewRef(tenant, collection, id string) Ref {
	return Ref{Tenant: tenant, Collection: collection, ID: id}
}

// Validate ensures every component is present and free of separators.
func (r Ref) Validate() error {
	for _, part := range []string{r.Tenant, r.Collection, r.ID} {
		if strings.TrimSpace(part) == "" || strings.Contains(part, "/") {
			return ErrInvalidRef
		}
	}
	return nil
}

// Key renders the canonical storage key.
func (r Ref) Key() string {
	return r.Tenant + "/" + r.Collection + "/" + r.ID
}

func (r Ref) String() string {
	return r.Key()
}

// Snapshot is a stored document body with its version.
type Snapshot struct {
	Ref     Ref
	Data    json.RawMessage
	Version int64
}

// Decode unmarshals the body into dst.
func (s Snapshot) Decode(dst any) error {
	if err := json.Unmarshal(s.Data, dst); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", s.Ref, err)
	}
	return nil
}

// Tx is a unit of work. Writes are buffered and applied atomically when the
// enclosing RunTx callback returns nil. Reads observe buffered writes.
type Tx interface {
	Get(ctx context.Context, ref Ref, dst any) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	Create(ref Ref, v any) error
	Set(ref Ref, v any) error
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	Delete(ref Ref) error
}

// Store is the document store port.
type Store interface {
	// RunTx executes fn atomically, retrying on ErrConflict. fn must not
	// have side effects outside the Tx.
	RunTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Get(ctx context.Context, ref Ref, dst any) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	Count(ctx context.Context, q Query) (int, error)
	Close() error
}

// Options configures backends.
type Options struct {
	MaxAttempts int
	Metrics     *Metrics
}

func (o Options) attempts() int {
	if o.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return o.MaxAttempts
}

// Retry runs attempt until it succeeds, fails with a non-conflict error or
// the attempt budget is exhausted.
func Retry(ctx context.Context, opts Options, attempt func() error) error {
	var err error
	for i := 0; i < opts.attempts(); i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt()
		switch {
		case err == nil:
			opts.Metrics.committed()
			return nil
		case errors.Is(err, ErrConflict):
			opts.Metrics.conflicted()
			continue
		default:
			opts.Metrics.aborted()
			return err
		}
	}
	opts.Metrics.aborted()
	return fmt.Errorf("docstore: giving up after %d attempts: %w", opts.attempts(), err)
}
