// Package memory is an in-process document store with optimistic
// concurrency. Every committed write bumps a global sequence; a transaction
// commits only if every document it read still carries the version it saw
// and every query it ran still matches the same documents.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

// Store keeps documents in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	docs map[string]docstore.Snapshot
	seq  int64
	opts docstore.Options
}

// New constructs an empty store.
func New(opts docstore.Options) *Store {
	return &Store{docs: map[string]docstore.Snapshot{}, opts: opts}
}

var _ docstore.Store = (*Store)(nil)

// RunTx executes fn against a buffered transaction and validates reads at commit.
func (s *Store) RunTx(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	return docstore.Retry(ctx, s.opts, func() error {
		txn := docstore.NewTxn(reader{s})
		if err := fn(ctx, txn); err != nil {
			return err
		}
		return s.commit(ctx, txn)
	})
}

func (s *Store) commit(ctx context.Context, txn *docstore.Txn) error {
	writes := txn.Writes()
	if len(writes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range txn.Reads() {
		var current int64
		if snap, ok := s.docs[key]; ok {
			current = snap.Version
		}
		if current != seen {
			return docstore.ErrConflict
		}
	}
	if err := docstore.ValidateScans(ctx, lockedReader{s}, txn.Scans()); err != nil {
		return err
	}
	for _, w := range writes {
		if w.Kind != docstore.WriteCreate {
			continue
		}
		if _, exists := s.docs[w.Ref.Key()]; exists {
			return fmt.Errorf("%s: %w", w.Ref, docstore.ErrAlreadyExists)
		}
	}
	for _, w := range writes {
		key := w.Ref.Key()
		switch w.Kind {
		case docstore.WriteDelete:
			delete(s.docs, key)
		default:
			s.seq++
			s.docs[key] = docstore.Snapshot{Ref: w.Ref, Data: cloneRaw(w.Data), Version: s.seq}
		}
	}
	return nil
}

// Get reads a committed document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref, dst any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	snap, found, err := reader{s}.Load(ctx, ref)
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
	candidates, err := reader{s}.Scan(ctx, q)
	if err != nil {
		return nil, err
	}
	return q.Apply(candidates)
}

// Count returns the number of documents matching q.
func (s *Store) Count(ctx context.Context, q docstore.Query) (int, error) {
	q.Limit = 0
	rows, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type reader struct{ s *Store }

func (r reader) Load(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return lockedReader(r).Load(ctx, ref)
}

func (r reader) Scan(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return lockedReader(r).Scan(ctx, q)
}

// lockedReader reads without locking; the caller holds s.mu.
type lockedReader struct{ s *Store }

func (r lockedReader) Load(_ context.Context, ref docstore.Ref) (docstore.Snapshot, bool, error) {
	snap, ok := r.s.docs[ref.Key()]
	if !ok {
		return docstore.Snapshot{}, false, nil
	}
	snap.Data = cloneRaw(snap.Data)
	return snap, true, nil
}

func (r lockedReader) Scan(_ context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	prefix := q.Tenant + "/" + q.Collection + "/"
	out := make([]docstore.Snapshot, 0)
	for key, snap := range r.s.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		snap.Data = cloneRaw(snap.Data)
		out = append(out, snap)
	}
	return out, nil
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
