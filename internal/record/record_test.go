package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("users", []Column{
		{Name: "id", Kind: KindUint},
		{Name: "name", Kind: KindText},
		{Name: "age", Kind: KindInt, Nullable: true},
	}, 0)
	require.NoError(t, err)
	return s
}

func TestValueEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Uint(42),
		Int(-17),
		Text("hello"),
		Datetime(1700000000),
		Null(),
	}
	kinds := []Kind{KindUint, KindInt, KindText, KindDatetime, KindUint}
	for i, v := range cases {
		kind := v.Kind
		if v.IsNull() {
			kind = kinds[i]
		}
		got, err := Decode(kind, v.Encode(), v.IsNull())
		require.NoError(t, err)
		require.True(t, v.Equal(got), "case %d: %+v != %+v", i, v, got)
	}
}

func TestValueLessNullsLast(t *testing.T) {
	require.True(t, Uint(1).Less(Null()))
	require.False(t, Null().Less(Uint(1)))
	require.False(t, Null().Less(Null()))
	require.True(t, Uint(1).Less(Uint(2)))
}

func TestValueLessPanicsOnKindMismatch(t *testing.T) {
	require.Panics(t, func() { Uint(1).Less(Text("x")) })
}

func TestRecordEqualIgnoresPolarity(t *testing.T) {
	a := New(true, []Value{Uint(1), Text("alice")})
	b := New(false, []Value{Uint(1), Text("alice")})
	require.True(t, a.Equal(b))

	c := New(true, []Value{Uint(2), Text("alice")})
	require.False(t, a.Equal(c))
}

func TestRecordNegate(t *testing.T) {
	a := New(true, []Value{Uint(1)})
	b := a.Negate()
	require.False(t, b.Positive)
	require.True(t, a.Equal(b))
	require.True(t, a.Positive, "Negate must not mutate the receiver")
}

func TestRecordValueRoundTrip(t *testing.T) {
	schema := testSchema(t)
	rec := New(true, []Value{Uint(7), Text("bob"), Null()})

	encoded := rec.EncodeValue()
	decoded, err := DecodeValue(schema, encoded)
	require.NoError(t, err)
	require.True(t, rec.Equal(decoded))
}

func TestRecordPrimaryKeyStableAcrossOtherColumns(t *testing.T) {
	schema := testSchema(t)
	a := New(true, []Value{Uint(7), Text("bob"), Int(30)})
	b := New(true, []Value{Uint(7), Text("robert"), Null()})
	require.Equal(t, a.PrimaryKey(schema), b.PrimaryKey(schema))

	c := New(true, []Value{Uint(8), Text("bob"), Int(30)})
	require.NotEqual(t, a.PrimaryKey(schema), c.PrimaryKey(schema))
}
