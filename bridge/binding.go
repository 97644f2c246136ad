package bridge

import (
	"fmt"

	"github.com/tomyedwab/sqlbridge/codec"
)

// Binding is one typed parameter value. Index is 1-based.
type Binding struct {
	Index  int
	Type   codec.BindType
	Text   string
	Int    int64
	Double float64
	Blob   []byte
}

func NullAt(i int) Binding              { return Binding{Index: i, Type: codec.BindNull} }
func TextAt(i int, v string) Binding    { return Binding{Index: i, Type: codec.BindText, Text: v} }
func IntAt(i int, v int32) Binding      { return Binding{Index: i, Type: codec.BindInt, Int: int64(v)} }
func Int64At(i int, v int64) Binding    { return Binding{Index: i, Type: codec.BindInt64, Int: v} }
func DoubleAt(i int, v float64) Binding { return Binding{Index: i, Type: codec.BindDouble, Double: v} }
func BlobAt(i int, v []byte) Binding    { return Binding{Index: i, Type: codec.BindBlob, Blob: v} }

// ColumnValue is one decoded value of the current row. Index is 0-based.
type ColumnValue struct {
	Index  int
	Type   codec.ColumnType
	Text   string
	Int    int64
	Double float64
	Blob   []byte
}

// Any returns the value as nil, string, int64, float64 or []byte.
func (v ColumnValue) Any() any {
	switch v.Type {
	case codec.ColumnText:
		return v.Text
	case codec.ColumnInteger:
		return v.Int
	case codec.ColumnFloat:
		return v.Double
	case codec.ColumnBlob:
		return v.Blob
	}
	return nil
}

// Binding returns a binding that stores v unchanged at index i.
func (v ColumnValue) Binding(i int) Binding {
	return Binding{Index: i, Type: codec.BindTypeFor(v.Type), Text: v.Text, Int: v.Int, Double: v.Double, Blob: v.Blob}
}

func (v ColumnValue) String() string {
	switch v.Type {
	case codec.ColumnText:
		return v.Text
	case codec.ColumnInteger:
		return fmt.Sprint(v.Int)
	case codec.ColumnFloat:
		return fmt.Sprint(v.Double)
	case codec.ColumnBlob:
		return fmt.Sprintf("x'%x'", v.Blob)
	}
	return "NULL"
}
