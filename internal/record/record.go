package record

import (
	"encoding/hex"

	"github.com/dreamware/k9db/internal/codec"
)

// Record is one row in flight through the dataflow graph: a flat slice of
// Values plus the polarity bit spec.md section 4.3 requires every delta to
// carry. Positive means "this row now exists"; negative means "this row
// used to exist and no longer does". A base-table INSERT produces a single
// positive Record; a DELETE produces a single negative Record; an UPDATE
// (per this engine's chosen semantics, see DESIGN.md) produces one negative
// Record for the old row immediately followed by one positive Record for
// the new one.
type Record struct {
	Positive bool
	Values   []Value
}

// New builds a Record. Use Negate to flip polarity without copying Values.
func New(positive bool, values []Value) *Record {
	return &Record{Positive: positive, Values: values}
}

// Negate returns a Record with the same Values and the opposite polarity.
func (r *Record) Negate() *Record {
	return &Record{Positive: !r.Positive, Values: r.Values}
}

// Equal reports whether r and other carry equal Values in the same order,
// ignoring polarity. This is the notion of equality GroupedData uses to
// find the row a negative delta should cancel.
func (r *Record) Equal(other *Record) bool {
	if len(r.Values) != len(other.Values) {
		return false
	}
	for i := range r.Values {
		if !r.Values[i].Equal(other.Values[i]) {
			return false
		}
	}
	return true
}

// Key is a hashable, comparable encoding of a subset of a Record's columns,
// used as a Go map key by GroupedData, join indexes, and materialized view
// lookups. This stands in for the original implementation's dedicated Key
// class with a hand-written hash function: encoding the selected columns
// through codec.Sequence and using the resulting string as the map key
// gets structural equality and hashing for free from Go's map/string
// machinery.
type Key string

// KeyFor builds a Key from the Values at the given column indexes, in
// order. Used with a single-element columns slice for primary-key lookups
// and with multiple indexes for composite join/group keys.
func (r *Record) KeyFor(columns []int) Key {
	b := codec.NewBuilder()
	for _, idx := range columns {
		v := r.Values[idx]
		if v.IsNull() {
			b.AppendNull()
		} else {
			b.AppendField(v.Encode())
		}
	}
	return Key(b.Release())
}

// PrimaryKey returns the Key for the schema's primary key column.
func (r *Record) PrimaryKey(schema *Schema) Key {
	return r.KeyFor([]int{schema.PKIndex})
}

// EncodeValue serializes every column of r (including nulls) into the
// on-disk row value format, ready for internal/crypto.EncryptValue. Numeric
// fields are stored as the hex text of their Value.Encode bytes, since those
// fixed-width bytes can begin with codec.NullSentinel or contain
// codec.Separator; text fields are stored as is.
func (r *Record) EncodeValue() []byte {
	b := codec.NewBuilder()
	for _, v := range r.Values {
		switch v.Kind {
		case KindNull:
			b.AppendNull()
		case KindText:
			b.AppendField(v.Encode())
		default:
			b.AppendField([]byte(hex.EncodeToString(v.Encode())))
		}
	}
	return b.Release()
}

// DecodeValue parses bytes produced by EncodeValue back into a slice of
// Values typed according to schema. The returned Record's polarity is
// always positive: polarity is a dataflow-only concept that never reaches
// the stored row format.
func DecodeValue(schema *Schema, encoded []byte) (*Record, error) {
	seq, err := codec.Parse(encoded)
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(schema.Columns))
	for i, col := range schema.Columns {
		field, isNull, ok := seq.FieldAt(i)
		if !ok {
			return nil, errMissingField(schema.TableName, col.Name)
		}
		if !isNull && col.Kind != KindText {
			if field, err = hex.DecodeString(string(field)); err != nil {
				return nil, err
			}
		}
		v, err := Decode(col.Kind, field, isNull)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return New(true, values), nil
}
