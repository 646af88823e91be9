package kvstore

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is the production Store backend: one *pebble.DB per table,
// opened with Comparer so shard-prefix range scans work. Grounded on
// warmchang-pranadb/cluster/dragon's pebble.Open/NewIter/ErrNotFound usage.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (creating if absent) a Pebble instance rooted at
// dir, configured with k9db's shard-key Comparer.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Comparer: Comparer,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open pebble at %q: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	if cerr := closer.Close(); cerr != nil {
		return nil, fmt.Errorf("kvstore: get: close: %w", cerr)
	}
	return out, nil
}

func (p *PebbleStore) Put(key, value []byte) error {
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: put: %w", err)
	}
	return nil
}

func (p *PebbleStore) Delete(key []byte) error {
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

func (p *PebbleStore) NewIter(lower, upper []byte) (Iterator, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("kvstore: new iter: %w", err)
	}
	return &pebbleIterator{it: it}, nil
}

func (p *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

func (p *PebbleStore) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("kvstore: close: %w", err)
	}
	return nil
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (i *pebbleIterator) First() bool { return i.it.First() }
func (i *pebbleIterator) Next() bool  { return i.it.Next() }
func (i *pebbleIterator) Key() []byte { return i.it.Key() }
func (i *pebbleIterator) Value() []byte {
	v, _ := i.it.ValueAndErr()
	return v
}
func (i *pebbleIterator) Error() error { return i.it.Error() }
func (i *pebbleIterator) Close() error { return i.it.Close() }

type pebbleBatch struct {
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) { _ = b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte)     { _ = b.batch.Delete(key, nil) }
func (b *pebbleBatch) Commit() error {
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: batch commit: %w", err)
	}
	return nil
}
