package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// WriteKind enumerates buffered mutations.
type WriteKind int

const (
	WriteCreate WriteKind = iota + 1
	WriteSet
	WriteDelete
)

// Write is a buffered mutation handed to a backend at commit.
type Write struct {
	Ref  Ref
	Kind WriteKind
	Data json.RawMessage
}

// Reader is the read side a backend exposes to a buffered transaction. Load
// reports found=false for absent documents. Scan may return a superset of the
// documents matching q; the transaction re-applies the query.
type Reader interface {
	Load(ctx context.Context, ref Ref) (snap Snapshot, found bool, err error)
	Scan(ctx context.Context, q Query) ([]Snapshot, error)
}

// ScanRead is a query observed inside a transaction: its scope and filters
// plus the committed documents that matched, keyed by Ref.Key.
type ScanRead struct {
	Query   Query
	Matched map[string]int64
}

// Txn buffers writes over a backend Reader and implements Tx.
type Txn struct {
	reader Reader
	reads  map[string]int64
	scans  []ScanRead
	writes map[string]*Write
	order  []string
	queued map[string]bool
}

// NewTxn returns an empty transaction buffer.
func NewTxn(reader Reader) *Txn {
	return &Txn{reader: reader, reads: map[string]int64{}, writes: map[string]*Write{}, queued: map[string]bool{}}
}

// Reads returns the versions observed per key (0 for absent documents).
func (t *Txn) Reads() map[string]int64 {
	return t.reads
}

// Scans returns the queries run against committed state.
func (t *Txn) Scans() []ScanRead {
	return t.scans
}

// ValidateScans re-runs every recorded query through r and reports
// ErrConflict when the set of matching documents changed, including
// documents that appeared since the query ran.
func ValidateScans(ctx context.Context, r Reader, scans []ScanRead) error {
	for _, scan := range scans {
		matched, err := matchedKeys(ctx, r, scan.Query)
		if err != nil {
			return err
		}
		if len(matched) != len(scan.Matched) {
			return ErrConflict
		}
		for key, version := range matched {
			if seen, ok := scan.Matched[key]; !ok || seen != version {
				return ErrConflict
			}
		}
	}
	return nil
}

func matchedKeys(ctx context.Context, r Reader, q Query) (map[string]int64, error) {
	base, err := r.Scan(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := q.Apply(base)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, snap := range rows {
		out[snap.Ref.Key()] = snap.Version
	}
	return out, nil
}

// Writes returns buffered mutations in first-touch order, collapsed per key.
func (t *Txn) Writes() []Write {
	out := make([]Write, 0, len(t.order))
	for _, key := range t.order {
		if w, ok := t.writes[key]; ok {
			out = append(out, *w)
		}
	}
	return out
}

func (t *Txn) load(ctx context.Context, ref Ref) (json.RawMessage, bool, error) {
	if err := ref.Validate(); err != nil {
		return nil, false, err
	}
	if w, ok := t.writes[ref.Key()]; ok {
		if w.Kind == WriteDelete {
			return nil, false, nil
		}
		return w.Data, true, nil
	}
	snap, found, err := t.reader.Load(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	if _, seen := t.reads[ref.Key()]; !seen {
		if found {
			t.reads[ref.Key()] = snap.Version
		} else {
			t.reads[ref.Key()] = 0
		}
	}
	if !found {
		return nil, false, nil
	}
	return snap.Data, true, nil
}

// Get decodes the document into dst or returns ErrNotFound.
func (t *Txn) Get(ctx context.Context, ref Ref, dst any) error {
	data, found, err := t.load(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", ref, err)
	}
	return nil
}

// Query merges backend results with buffered writes.
func (t *Txn) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	scope := Query{Tenant: q.Tenant, Collection: q.Collection, Filters: q.Filters}
	base, err := t.reader.Scan(ctx, scope)
	if err != nil {
		return nil, err
	}
	committed, err := scope.Apply(base)
	if err != nil {
		return nil, err
	}
	matched := make(map[string]int64, len(committed))
	for _, snap := range committed {
		matched[snap.Ref.Key()] = snap.Version
	}
	t.scans = append(t.scans, ScanRead{Query: scope, Matched: matched})
	merged := make([]Snapshot, 0, len(base))
	seen := make(map[string]struct{}, len(base))
	for _, snap := range base {
		key := snap.Ref.Key()
		seen[key] = struct{}{}
		if _, ok := t.reads[key]; !ok {
			t.reads[key] = snap.Version
		}
		if w, ok := t.writes[key]; ok {
			if w.Kind == WriteDelete {
				continue
			}
			snap.Data = w.Data
		}
		merged = append(merged, snap)
	}
	for _, key := range t.order {
		w := t.writes[key]
		if w == nil || w.Kind == WriteDelete {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if w.Ref.Tenant != q.Tenant || w.Ref.Collection != q.Collection {
			continue
		}
		merged = append(merged, Snapshot{Ref: w.Ref, Data: w.Data})
	}
	return q.Apply(merged)
}

func (t *Txn) buffer(ref Ref, kind WriteKind, data json.RawMessage) {
	key := ref.Key()
	if prev, ok := t.writes[key]; ok && prev.Kind == WriteCreate && kind == WriteSet {
		// A create followed by a set stays a create.
		kind = WriteCreate
	}
	if !t.queued[key] {
		t.queued[key] = true
		t.order = append(t.order, key)
	}
	t.writes[key] = &Write{Ref: ref, Kind: kind, Data: data}
}

// Create buffers an insert. The backend rejects it with ErrAlreadyExists at
// commit when the document is present.
func (t *Txn) Create(ref Ref, v any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	kind := WriteCreate
	if w, ok := t.writes[ref.Key()]; ok {
		if w.Kind != WriteDelete {
			return fmt.Errorf("%s: %w", ref, ErrAlreadyExists)
		}
		kind = WriteSet
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", ref, err)
	}
	t.buffer(ref, kind, data)
	return nil
}

// Set buffers an overwrite.
func (t *Txn) Set(ref Ref, v any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", ref, err)
	}
	t.buffer(ref, WriteSet, data)
	return nil
}

// Update merges top-level fields into an existing document.
func (t *Txn) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	data, found, err := t.load(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	merged, err := MergeFields(data, fields)
	if err != nil {
		return fmt.Errorf("docstore: update %s: %w", ref, err)
	}
	kind := WriteSet
	if w, ok := t.writes[ref.Key()]; ok && w.Kind == WriteCreate {
		kind = WriteCreate
	}
	t.buffer(ref, kind, merged)
	return nil
}

// Delete buffers a removal. Deleting an absent document is a no-op.
func (t *Txn) Delete(ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if w, ok := t.writes[ref.Key()]; ok && w.Kind == WriteCreate {
		delete(t.writes, ref.Key())
		return nil
	}
	t.buffer(ref, WriteDelete, nil)
	return nil
}

// MergeFields overlays fields onto a JSON object.
func MergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		doc[name] = raw
	}
	return json.Marshal(doc)
}
