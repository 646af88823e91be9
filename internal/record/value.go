package record

import (
	"encoding/binary"
	"fmt"
)

// Kind tags the type carried by a Value. Using a tag plus inline fields
// instead of one interface-per-type avoids a heap allocation per cell,
// which matters because every row in every shard flows through the
// dataflow graph as a slice of these.
type Kind uint8

const (
	KindNull Kind = iota
	KindUint
	KindInt
	KindText
	KindDatetime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindDatetime:
		return "datetime"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single column cell. Exactly one of U, I, S is meaningful,
// selected by Kind; KindNull carries none.
type Value struct {
	Kind Kind
	U    uint64
	I    int64
	S    string
}

func Null() Value                  { return Value{Kind: KindNull} }
func Uint(u uint64) Value          { return Value{Kind: KindUint, U: u} }
func Int(i int64) Value            { return Value{Kind: KindInt, I: i} }
func Text(s string) Value          { return Value{Kind: KindText, S: s} }
func Datetime(unixSec int64) Value { return Value{Kind: KindDatetime, I: unixSec} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports whether v and other carry the same kind and value.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindUint:
		return v.U == other.U
	case KindInt, KindDatetime:
		return v.I == other.I
	case KindText:
		return v.S == other.S
	default:
		return false
	}
}

// Less orders v before other. Nulls sort last, matching the engine's
// default ASC-with-nulls-last ordering for SELECT ... ORDER BY. Comparing
// values of different non-null kinds panics: that is a planner bug, not a
// runtime condition callers need to recover from.
func (v Value) Less(other Value) bool {
	if v.IsNull() || other.IsNull() {
		if v.IsNull() && other.IsNull() {
			return false
		}
		return other.IsNull()
	}
	if v.Kind != other.Kind {
		panic(fmt.Sprintf("record: cannot compare %s to %s", v.Kind, other.Kind))
	}
	switch v.Kind {
	case KindUint:
		return v.U < other.U
	case KindInt, KindDatetime:
		return v.I < other.I
	case KindText:
		return v.S < other.S
	default:
		return false
	}
}

// Encode renders v's payload (not its kind, which the schema already
// fixes) as bytes. Numeric kinds use fixed-width big-endian encoding, whose
// bytes can include codec.Separator and codec.NullSentinel; Record.KeyFor
// appends them as is (keys are compared, never parsed), while
// Record.EncodeValue hex-encodes them before storing a row.
func (v Value) Encode() []byte {
	switch v.Kind {
	case KindNull:
		return nil
	case KindUint:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v.U)
		return b[:]
	case KindInt, KindDatetime:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.I))
		return b[:]
	case KindText:
		return []byte(v.S)
	default:
		panic(fmt.Sprintf("record: encode: unknown kind %s", v.Kind))
	}
}

// Decode parses bytes produced by Encode back into a Value of the given
// kind. isNull short-circuits to Null() without inspecting field.
func Decode(kind Kind, field []byte, isNull bool) (Value, error) {
	if isNull {
		return Null(), nil
	}
	switch kind {
	case KindUint:
		if len(field) != 8 {
			return Value{}, fmt.Errorf("record: decode uint: want 8 bytes, got %d", len(field))
		}
		return Uint(binary.BigEndian.Uint64(field)), nil
	case KindInt:
		if len(field) != 8 {
			return Value{}, fmt.Errorf("record: decode int: want 8 bytes, got %d", len(field))
		}
		return Int(int64(binary.BigEndian.Uint64(field))), nil
	case KindDatetime:
		if len(field) != 8 {
			return Value{}, fmt.Errorf("record: decode datetime: want 8 bytes, got %d", len(field))
		}
		return Datetime(int64(binary.BigEndian.Uint64(field))), nil
	case KindText:
		return Text(string(field)), nil
	default:
		return Value{}, fmt.Errorf("record: decode: unknown kind %s", kind)
	}
}
