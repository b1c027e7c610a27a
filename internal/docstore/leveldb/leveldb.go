// Package leveldb is an embedded docstore backend on goleveldb. goleveldb
// admits one open transaction at a time, so RunTx is serialized: reads and
// queries cannot be invalidated before commit and no conflict is reported.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/carepoint-hms/carepoint/internal/docstore"
)

const keyPrefix = "doc/"

// envelope is the stored value: body plus version.
type envelope struct {
	Version int64           `json:"v"`
	Body    json.RawMessage `json:"d"`
}

type source interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// Store implements docstore.Store on LevelDB.
type Store struct {
	db   *leveldb.DB
	opts docstore.Options
}

var _ docstore.Store = (*Store)(nil)

// OpenFile opens a database directory on disk.
func OpenFile(path string, opts docstore.Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("docstore/leveldb: open %s: %w", path, err)
	}
	return &Store{db: db, opts: opts}, nil
}

// OpenMemory opens a volatile database backed by memory storage.
func OpenMemory(opts docstore.Options) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("docstore/leveldb: open memory: %w", err)
	}
	return &Store{db: db, opts: opts}, nil
}

func docKey(ref docstore.Ref) []byte {
	return []byte(keyPrefix + ref.Key())
}

func collectionPrefix(tenant, collection string) []byte {
	return []byte(keyPrefix + tenant + "/" + collection + "/")
}

// RunTx executes fn inside a LevelDB transaction.
func (s *Store) RunTx(ctx context.Context, fn func(context.Context, docstore.Tx) error) error {
	return docstore.Retry(ctx, s.opts, func() error {
		tr, err := s.db.OpenTransaction()
		if err != nil {
			return fmt.Errorf("docstore/leveldb: open transaction: %w", err)
		}
		txn := docstore.NewTxn(reader{src: tr})
		if err := fn(ctx, txn); err != nil {
			tr.Discard()
			return err
		}
		if err := applyWrites(tr, txn.Writes()); err != nil {
			tr.Discard()
			return err
		}
		if err := tr.Commit(); err != nil {
			tr.Discard()
			return fmt.Errorf("docstore/leveldb: commit: %w", err)
		}
		return nil
	})
}

// Get reads a committed document.
func (s *Store) Get(ctx context.Context, ref docstore.Ref, dst any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	snap, found, err := reader{src: s.db}.Load(ctx, ref)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", ref, docstore.ErrNotFound)
	}
	return snap.Decode(dst)
}

// Query evaluates q with a prefix scan.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := reader{src: s.db}.Scan(ctx, q)
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

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type reader struct{ src source }

func (r reader) Load(_ context.Context, ref docstore.Ref) (docstore.Snapshot, bool, error) {
	raw, err := r.src.Get(docKey(ref), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return docstore.Snapshot{}, false, nil
	}
	if err != nil {
		return docstore.Snapshot{}, false, fmt.Errorf("docstore/leveldb: get %s: %w", ref, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return docstore.Snapshot{}, false, fmt.Errorf("docstore/leveldb: decode %s: %w", ref, err)
	}
	return docstore.Snapshot{Ref: ref, Data: env.Body, Version: env.Version}, true, nil
}

func (r reader) Scan(_ context.Context, q docstore.Query) ([]docstore.Snapshot, error) {
	prefix := collectionPrefix(q.Tenant, q.Collection)
	iter := r.src.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []docstore.Snapshot
	for iter.Next() {
		id := string(iter.Key()[len(prefix):])
		var env envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			return nil, fmt.Errorf("docstore/leveldb: decode %s: %w", id, err)
		}
		body := make(json.RawMessage, len(env.Body))
		copy(body, env.Body)
		out = append(out, docstore.Snapshot{
			Ref:     docstore.NewRef(q.Tenant, q.Collection, id),
			Data:    body,
			Version: env.Version,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("docstore/leveldb: iterate: %w", err)
	}
	return out, nil
}

func applyWrites(tr *leveldb.Transaction, writes []docstore.Write) error {
	for _, w := range writes {
		key := docKey(w.Ref)
		if w.Kind == docstore.WriteDelete {
			if err := tr.Delete(key, nil); err != nil {
				return fmt.Errorf("docstore/leveldb: delete %s: %w", w.Ref, err)
			}
			continue
		}

		var version int64 = 1
		current, err := tr.Get(key, nil)
		switch {
		case err == nil:
			if w.Kind == docstore.WriteCreate {
				return fmt.Errorf("%s: %w", w.Ref, docstore.ErrAlreadyExists)
			}
			var prev envelope
			if err := json.Unmarshal(current, &prev); err == nil {
				version = prev.Version + 1
			}
		case !errors.Is(err, leveldb.ErrNotFound):
			return fmt.Errorf("docstore/leveldb: get %s: %w", w.Ref, err)
		}

		value, err := json.Marshal(envelope{Version: version, Body: w.Data})
		if err != nil {
			return fmt.Errorf("docstore/leveldb: encode %s: %w", w.Ref, err)
		}
		if err := tr.Put(key, value, nil); err != nil {
			return fmt.Errorf("docstore/leveldb: put %s: %w", w.Ref, err)
		}
	}
	return nil
}
