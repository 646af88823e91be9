// Package kvstore implements k9db's sharded, encrypted key-value layer
// (spec.md section 3).
//
// Store is the narrow ordered byte-range interface every backend
// implements: Get/Put/Delete plus a bounded iterator, instead of the
// teacher's List()-of-all-keys, because the dataflow and compliance layers
// above it need to scan one subject's shard without touching any other
// subject's rows. PebbleStore is the production backend, one
// *pebble.DB per table, using a Comparer that orders encrypted composite
// keys by their shard-cipher prefix first. MemoryStore is an ordered
// in-memory stand-in used by tests that would otherwise need a real Pebble
// instance on disk.
//
// Keys stored here are always already encrypted (internal/crypto's output);
// this package knows nothing about plaintext rows, subjects, or GDPR. Its
// only domain knowledge is the two-part shard-cipher/pk-cipher key shape,
// which it needs for ordering and prefix iteration.
package kvstore
