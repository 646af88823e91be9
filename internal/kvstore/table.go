package kvstore

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/k9db/internal/crypto"
	"github.com/dreamware/k9db/internal/record"
)

// Table is the row-level seam internal/engine programs against: it
// combines a byte-range Store, an Encryptor, and a table's Schema into
// Put/Get/Delete/Scan operations over record.Record values, per spec.md
// section 4.3's "every row is stored under a composite key of
// (encrypted shard name, encrypted primary key)". Everything below this
// layer only ever sees ciphertext and raw bytes; everything above it only
// ever sees plaintext Records.
type Table struct {
	name   string
	schema *record.Schema
	store  Store
	crypt  crypto.Encryptor
}

// NewTable binds a Store to one table's schema and the shared Encryptor.
func NewTable(name string, schema *record.Schema, store Store, crypt crypto.Encryptor) *Table {
	return &Table{name: name, schema: schema, store: store, crypt: crypt}
}

func (t *Table) encodeKey(shardName string, pk record.Value) []byte {
	return t.crypt.EncryptKey([]byte(shardName), pk.Encode())
}

// Put writes rec into shardName, encrypting both the composite key and the
// row value. A row may legally live under more than one shard (spec.md
// section 4.1's "a row can be copied into more than one shard"), so callers
// choose shardName per write rather than Table inferring ownership itself.
func (t *Table) Put(shardName string, rec *record.Record) error {
	pk := rec.Values[t.schema.PKIndex]
	key := t.encodeKey(shardName, pk)
	plain := rec.EncodeValue()
	cipher, err := t.crypt.EncryptValue(shardName, plain)
	if err != nil {
		return fmt.Errorf("kvstore: table %s: encrypt value: %w", t.name, err)
	}
	if err := t.store.Put(key, cipher); err != nil {
		return fmt.Errorf("kvstore: table %s: put: %w", t.name, err)
	}
	return nil
}

// GetDirect reads the single row stored for pk within shardName.
func (t *Table) GetDirect(shardName string, pk record.Value) (*record.Record, error) {
	key := t.encodeKey(shardName, pk)
	cipher, err := t.store.Get(key)
	if err != nil {
		return nil, err
	}
	plain, err := t.crypt.DecryptValue(shardName, cipher)
	if err != nil {
		return nil, fmt.Errorf("kvstore: table %s: decrypt value: %w", t.name, err)
	}
	return record.DecodeValue(t.schema, plain)
}

// Exists reports whether pk has a row within shardName, without decoding
// the value — the check internal/compliance's commit gate runs over the
// reserved default shard.
func (t *Table) Exists(shardName string, pk record.Value) (bool, error) {
	key := t.encodeKey(shardName, pk)
	_, err := t.store.Get(key)
	if err == nil {
		return true, nil
	}
	if err == ErrNotFound {
		return false, nil
	}
	return false, fmt.Errorf("kvstore: table %s: exists: %w", t.name, err)
}

// Delete removes pk's row from shardName. Idempotent, matching Store's
// contract.
func (t *Table) Delete(shardName string, pk record.Value) error {
	key := t.encodeKey(shardName, pk)
	if err := t.store.Delete(key); err != nil {
		return fmt.Errorf("kvstore: table %s: delete: %w", t.name, err)
	}
	return nil
}

// ScanShard returns every row currently stored under shardName, in
// encrypted-key order, by bounding an iteration to the shard's cipher
// prefix (EncryptSeek) the way a non-deterministic scheme never could —
// spec.md section 4.2's documented payoff for the deterministic global
// nonce.
func (t *Table) ScanShard(shardName string) ([]*record.Record, error) {
	prefix := t.crypt.EncryptSeek(shardName)
	upper := shardSeekUpperBound(prefix)
	it, err := t.store.NewIter(prefix, upper)
	if err != nil {
		return nil, fmt.Errorf("kvstore: table %s: scan shard %s: %w", t.name, shardName, err)
	}
	defer it.Close()

	var out []*record.Record
	for ok := it.First(); ok; ok = it.Next() {
		plain, err := t.crypt.DecryptValue(shardName, it.Value())
		if err != nil {
			return nil, fmt.Errorf("kvstore: table %s: decrypt scanned value: %w", t.name, err)
		}
		rec, err := record.DecodeValue(t.schema, plain)
		if err != nil {
			return nil, fmt.Errorf("kvstore: table %s: decode scanned value: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("kvstore: table %s: scan shard %s: %w", t.name, shardName, err)
	}
	return out, nil
}

// DeleteShard removes every row stored under shardName in one bounded
// iteration plus batch, the bulk-erasure spec.md section 4.1 requires GDPR
// FORGET to perform without a full-table scan.
func (t *Table) DeleteShard(shardName string) error {
	prefix := t.crypt.EncryptSeek(shardName)
	upper := shardSeekUpperBound(prefix)
	it, err := t.store.NewIter(prefix, upper)
	if err != nil {
		return fmt.Errorf("kvstore: table %s: delete shard %s: %w", t.name, shardName, err)
	}
	defer it.Close()

	batch := t.store.NewBatch()
	for ok := it.First(); ok; ok = it.Next() {
		keyCopy := append([]byte(nil), it.Key()...)
		batch.Delete(keyCopy)
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("kvstore: table %s: delete shard %s: %w", t.name, shardName, err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("kvstore: table %s: delete shard %s: commit: %w", t.name, shardName, err)
	}
	return nil
}

// ScanAll iterates every row in the table regardless of shard, decrypting
// each key to recover the owning shard name before decrypting its value —
// spec.md section 4.3's `scan_all(table)`, used to backfill a
// newly-created materialized view over rows written before the view
// existed.
func (t *Table) ScanAll() ([]*record.Record, error) {
	it, err := t.store.NewIter(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: table %s: scan all: %w", t.name, err)
	}
	defer it.Close()

	var out []*record.Record
	for ok := it.First(); ok; ok = it.Next() {
		shardName, _, err := t.crypt.DecryptKey(it.Key())
		if err != nil {
			return nil, fmt.Errorf("kvstore: table %s: scan all: decrypt key: %w", t.name, err)
		}
		plain, err := t.crypt.DecryptValue(string(shardName), it.Value())
		if err != nil {
			return nil, fmt.Errorf("kvstore: table %s: scan all: decrypt value: %w", t.name, err)
		}
		rec, err := record.DecodeValue(t.schema, plain)
		if err != nil {
			return nil, fmt.Errorf("kvstore: table %s: scan all: decode value: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("kvstore: table %s: scan all: %w", t.name, err)
	}
	return out, nil
}

// prefixUpperBound returns the smallest byte slice that sorts strictly
// after every key beginning with prefix, or nil if prefix is all 0xFF
// bytes (meaning the range is unbounded above).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// shardSeekUpperBound returns the smallest well-formed seek key that sorts
// strictly after every row in the shard seek points into. seek must be in
// the format crypto.Manager.EncryptSeek produces: a shard-cipher with a
// trailing u16 length equal to the cipher's own length (an empty pk-cipher,
// per crypto.SplitCipherKey). Incrementing seek's raw bytes wholesale — the
// trailing length included — would corrupt that length field and make the
// bound fail SplitCipherKey, which used to force the comparer to fall back
// to an unstructured byte compare for every range scan's upper bound. This
// instead increments only the shard-cipher bytes and reattaches a trailing
// length sized to the (possibly shorter, after trailing 0xFF bytes roll
// over) incremented cipher, keeping the bound in the same well-formed shape
// as every real key and seek value.
func shardSeekUpperBound(seek []byte) []byte {
	if len(seek) < 2 {
		return nil
	}
	cipher := seek[:len(seek)-2]
	incremented := prefixUpperBound(cipher)
	if incremented == nil {
		return nil
	}
	out := make([]byte, 0, len(incremented)+2)
	out = append(out, incremented...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(incremented)))
	out = append(out, lenBuf[:]...)
	return out
}
