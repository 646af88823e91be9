package kvstore

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"github.com/dreamware/k9db/internal/crypto"
)

// Comparer orders k9db's encrypted composite keys (shard-cipher + pk-cipher
// + trailing u16 shard-cipher length, see internal/crypto.EncryptKey) by
// shard-cipher first and pk-cipher second, so every row belonging to one
// subject's shard sorts contiguously regardless of table insertion order.
// Split reports the shard-cipher's length, which is what lets a range scan
// bounded by EncryptSeek(shardName) and its immediate successor enumerate
// exactly one shard's rows.
//
// Grounded on warmchang-pranadb/cluster/dragon's use of pebble.DB as an
// ordered engine; Pebble ships no shard-aware comparer of its own, so this
// one starts from pebble.DefaultComparer and overrides only Compare, Split,
// and Name.
var Comparer = func() *pebble.Comparer {
	c := *pebble.DefaultComparer
	c.Compare = compareKeys
	c.Split = splitKey
	c.Name = "k9db.shard-key.v1"
	return &c
}()

func compareKeys(a, b []byte) int {
	shardA, pkA, errA := crypto.SplitCipherKey(a)
	shardB, pkB, errB := crypto.SplitCipherKey(b)
	if errA != nil || errB != nil {
		// Malformed keys (should not happen outside of tests poking raw
		// bytes) fall back to a total order so Pebble's invariants still
		// hold.
		return bytes.Compare(a, b)
	}
	if c := bytes.Compare(shardA, shardB); c != 0 {
		return c
	}
	return bytes.Compare(pkA, pkB)
}

func splitKey(key []byte) int {
	shardCipher, _, err := crypto.SplitCipherKey(key)
	if err != nil {
		return len(key)
	}
	return len(shardCipher)
}
