package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]Column{
		{Name: "id", Type: ColumnInt},
		{Name: "name", Type: ColumnText, Length: 8},
	})
	require.NoError(t, err)
	return s
}

func TestSchema_EncodeDecodeRoundTrip(t *testing.T) {
	s := testSchema(t)
	values := []Value{IntVal(42), TextVal("hello")}

	rec, err := s.EncodeRecord(values, true)
	require.NoError(t, err)
	require.Len(t, rec, s.RecordSize())

	decoded, valid, err := s.DecodeRecord(rec)
	require.NoError(t, err)
	require.True(t, valid)
	require.Equal(t, values, decoded)
}

func TestSchema_TextTruncatesAtNUL(t *testing.T) {
	s := testSchema(t)
	rec, err := s.EncodeRecord([]Value{IntVal(1), TextVal("ab")}, true)
	require.NoError(t, err)

	decoded, _, err := s.DecodeRecord(rec)
	require.NoError(t, err)
	require.Equal(t, "ab", decoded[1].TextValue)
}

func TestSchema_IntColumnCoercesNumericText(t *testing.T) {
	s := testSchema(t)
	v := TextVal("123")
	require.NoError(t, s.NormalizeValue(0, &v))
	require.Equal(t, KindInt, v.Kind)
	require.Equal(t, int32(123), v.IntValue)
}

func TestSchema_IntColumnRejectsNonNumericText(t *testing.T) {
	s := testSchema(t)
	v := TextVal("abc")
	require.Error(t, s.NormalizeValue(0, &v))
}

func TestSchema_TextColumnCoercesInt(t *testing.T) {
	s := testSchema(t)
	v := IntVal(123)
	require.NoError(t, s.NormalizeValue(1, &v))
	require.Equal(t, KindText, v.Kind)
	require.Equal(t, "123", v.TextValue)
}

func TestSchema_TextColumnRejectsOverflow(t *testing.T) {
	s := testSchema(t)
	v := TextVal("waytoolongforthefield")
	require.Error(t, s.NormalizeValue(1, &v))
}

func TestSchema_ValidateValuesRejectsWrongCount(t *testing.T) {
	s := testSchema(t)
	_, err := s.ValidateValues([]Value{IntVal(1)})
	require.Error(t, err)
}

func TestSchema_DecodeRejectsShortRecord(t *testing.T) {
	s := testSchema(t)
	_, _, err := s.DecodeRecord(make([]byte, s.RecordSize()-1))
	require.Error(t, err)
}

func TestSchema_DefaultValues(t *testing.T) {
	s := testSchema(t)
	defaults := s.DefaultValues()
	require.Equal(t, []Value{IntVal(0), TextVal("")}, defaults)
}

func TestSchema_DuplicateColumnRejected(t *testing.T) {
	_, err := NewSchema([]Column{
		{Name: "id", Type: ColumnInt},
		{Name: "ID", Type: ColumnInt},
	})
	require.Error(t, err)
}

func TestSchema_ColumnTypeRoundTrip(t *testing.T) {
	typ, n, err := ParseColumnType("TEXT(12)")
	require.NoError(t, err)
	require.Equal(t, ColumnText, typ)
	require.Equal(t, 12, n)

	c := Column{Name: "v", Type: typ, Length: n}
	require.Equal(t, "v:TEXT(12)", c.String())
}
