package codec

import (
	"bytes"
	"fmt"
)

// Separator terminates every non-null field in a Sequence. It is reserved:
// plaintext fields (hex-encoded integers, text, datetime strings) never
// contain it. Ciphertext fields can and do contain arbitrary bytes including
// this one, which is exactly why the composite KV key (shard-cipher +
// pk-cipher) uses the separate trailing-length format of internal/crypto's
// SplitCipherKey instead of this scanner.
const Separator = 0x1E

// NullSentinel is the one-byte encoding of a null field. It never appears as
// the first byte of a non-null field, because every non-null field is
// followed immediately by Separator and the sentinel is one byte shorter
// than any legal non-null encoding of length zero followed by a separator
// would be ambiguous with, so a non-null empty field is encoded as a bare
// Separator (zero content bytes) while null is the distinct NullSentinel byte.
const NullSentinel = 0x00

// Sequence builds and reads the separator-delimited field format described
// in spec.md section 4.1.
type Sequence struct {
	buf    []byte
	fields [][]byte
}

// NewBuilder returns an empty Sequence ready to accept fields.
func NewBuilder() *Sequence {
	return &Sequence{buf: make([]byte, 0, 64)}
}

// AppendField appends a field's raw bytes terminated by Separator. The field
// must not itself contain a Separator byte; callers are responsible for that
// invariant (internal/record's EncodeValue hex-encodes numeric values for
// that reason).
func (s *Sequence) AppendField(field []byte) {
	s.buf = append(s.buf, field...)
	s.buf = append(s.buf, Separator)
}

// AppendNull appends the one-byte null sentinel for this field.
func (s *Sequence) AppendNull() {
	s.buf = append(s.buf, NullSentinel)
}

// AppendEncoded appends bytes that are already in their final on-disk form
// (a ciphertext blob, or a pre-built sub-sequence) without further framing.
// Used by the composite-key encoder, which tracks field boundaries out of
// band via a trailing length instead of this package's separator scan.
func (s *Sequence) AppendEncoded(raw []byte) {
	s.buf = append(s.buf, raw...)
}

// Release returns the accumulated bytes, consuming the builder. The returned
// slice must not be mutated by the caller.
func (s *Sequence) Release() []byte {
	b := s.buf
	s.buf = nil
	return b
}

// Bytes returns the accumulated bytes without consuming the builder.
func (s *Sequence) Bytes() []byte {
	return s.buf
}

// Parse splits an encoded sequence (as produced by AppendField/AppendNull
// calls only) into its fields for random-access reads via FieldAt.
func Parse(encoded []byte) (*Sequence, error) {
	s := &Sequence{buf: encoded}
	buf := encoded
	for len(buf) > 0 {
		if buf[0] == NullSentinel {
			s.fields = append(s.fields, nil)
			buf = buf[1:]
			continue
		}
		i := bytes.IndexByte(buf, Separator)
		if i < 0 {
			return nil, fmt.Errorf("codec: unterminated field, %d trailing bytes", len(buf))
		}
		s.fields = append(s.fields, buf[:i])
		buf = buf[i+1:]
	}
	return s, nil
}

// NumFields returns the number of fields in a parsed sequence.
func (s *Sequence) NumFields() int {
	return len(s.fields)
}

// FieldAt returns the i-th field. A nil slice with ok=true means the field is
// null; ok=false means i is out of range.
func (s *Sequence) FieldAt(i int) (field []byte, isNull bool, ok bool) {
	if i < 0 || i >= len(s.fields) {
		return nil, false, false
	}
	f := s.fields[i]
	return f, f == nil, true
}
