// Package crypto implements k9db's per-subject encryption layer.
//
// Every row is encrypted under the AEAD key of the shard it belongs to; the
// two fields that make up a composite KV key (the shard name and the
// primary key) are instead encrypted under one global key, so that the
// encrypted shard name can be used as a stable iteration prefix without
// needing to know which subject's key produced it.
//
// The global key and the global nonce are drawn from crypto/rand. Each
// subject's key is a SHA3 CSHAKE256 XOF expansion of its own fresh random
// seed, and every key feeds its own AES-256-GCM instance — an XOF key
// expansion carried over from opencoff-ebolt/cipher.go, applied per
// subject as "one global key-cipher + N per-subject value-ciphers".
package crypto
