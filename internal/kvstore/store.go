package kvstore

import "errors"

// ErrNotFound is returned when a key doesn't exist in the store. Every
// backend returns exactly this sentinel so callers can use errors.Is
// regardless of which Store implementation is in use.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the ordered byte-range key-value interface every backend
// (Pebble-backed or in-memory) implements. Keys are compared using the
// Comparer in comparer.go: by shard-cipher prefix first, then by
// pk-cipher, which is what makes a shard's rows contiguous and a single
// bounded iteration sufficient to read or delete an entire subject's shard.
type Store interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Put stores value under key, creating or overwriting the entry.
	Put(key, value []byte) error

	// Delete removes key. It is idempotent: deleting an absent key is not
	// an error.
	Delete(key []byte) error

	// NewIter returns an iterator over [lower, upper) in key order. A nil
	// bound means unbounded on that side.
	NewIter(lower, upper []byte) (Iterator, error)

	// NewBatch returns a Batch for grouping several mutations into one
	// atomic commit.
	NewBatch() Batch

	// Close releases the backend's resources. Safe to call once.
	Close() error
}

// Iterator walks a key range in ascending key order. Callers must call
// Close when done, and must not use the iterator concurrently with any
// other operation on the same Store.
type Iterator interface {
	// First positions the iterator at the first key in range and reports
	// whether one exists.
	First() bool

	// Next advances to the next key in range and reports whether one
	// exists.
	Next() bool

	// Key returns the current key. The returned slice is only valid until
	// the next iterator call.
	Key() []byte

	// Value returns the current value. The returned slice is only valid
	// until the next iterator call.
	Value() []byte

	// Error returns any error encountered during iteration.
	Error() error

	// Close releases the iterator's resources.
	Close() error
}

// Batch groups several mutations so a backend can apply them as one atomic
// unit, mirroring the write-batch idiom cockroachdb/pebble exposes natively;
// Table.DeleteShard uses it to remove a shard's rows in one commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Commit() error
}
