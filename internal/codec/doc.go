// Package codec implements the separator-delimited multi-field byte sequence
// format used throughout k9db for row values (and, before encryption, for the
// plaintext key fields that go into a composite KV key).
//
// A Sequence is an ordered list of opaque byte fields. Each field is either
// terminated by the reserved Separator byte (AppendField, for plaintext
// fields such as an encoded integer or a text column) or written verbatim
// with no terminator at all (AppendEncoded, for fields such as ciphertext
// that may themselves contain the separator byte and so cannot be safely
// delimited by a scan). A field may also be the one-byte NullSentinel.
//
// The two-field composite KV key (shard name, primary key) is a special case:
// once both fields are encrypted, the result is two ciphertexts concatenated
// with a trailing two-byte length recording where the first one ends. That
// format is implemented in internal/crypto's SplitCipherKey, since it does
// not use this package's separator-scan decoder at all.
package codec
