package bridge

import (
	"github.com/tomyedwab/sqlbridge/codec"
	"github.com/tomyedwab/sqlbridge/native"
)

// column resolves a column access. Value reads need a current row; name
// and declared type reads only need a prepared statement.
func (r *Registry) column(o any, api string, i int, needRow bool) (slot, bool) {
	_, s, ok := r.columnOwner(o, api, i, needRow)
	return s, ok
}

func (r *Registry) columnOwner(o any, api string, i int, needRow bool) (owner, slot, bool) {
	own, _, s, status := r.stmt(o, api)
	if status != StatusOK {
		return own, slot{}, false
	}
	if needRow && s.state != stateHasRow {
		own.report(api, StatusNotOpen, MsgNoCurrentRow)
		return own, slot{}, false
	}
	if i < 0 || i >= native.ColumnCount(s.tls, s.stmt) {
		own.report(api, native.Range, MsgColumnRange)
		return own, slot{}, false
	}
	return own, s, true
}

func (r *Registry) ColumnName(o any, i int) string {
	s, ok := r.column(o, "column_name", i, false)
	if !ok {
		return ""
	}
	return native.ColumnName(s.tls, s.stmt, i)
}

// ColumnDeclaredType is the declared type of column i, "" for expressions.
func (r *Registry) ColumnDeclaredType(o any, i int) string {
	s, ok := r.column(o, "column_decltype", i, false)
	if !ok {
		return ""
	}
	return native.ColumnDeclType(s.tls, s.stmt, i)
}

// ColumnType is the type tag of the value in column i. A native type
// outside the tag table is reported and yields 0.
func (r *Registry) ColumnType(o any, i int) codec.ColumnType {
	own, s, ok := r.columnOwner(o, "column_type", i, true)
	if !ok {
		return 0
	}
	t, ok := codec.EncodeColumnType(native.ColumnType(s.tls, s.stmt, i))
	if !ok {
		own.report("column_type", StatusNotOpen, MsgUnsupportedType)
		return 0
	}
	return t
}

func (r *Registry) ColumnText(o any, i int) string {
	s, ok := r.column(o, "column_text16", i, true)
	if !ok {
		return ""
	}
	return native.ColumnText(s.tls, s.stmt, i)
}

func (r *Registry) ColumnInt(o any, i int) int32 {
	s, ok := r.column(o, "column_int", i, true)
	if !ok {
		return 0
	}
	return native.ColumnInt(s.tls, s.stmt, i)
}

func (r *Registry) ColumnInt64(o any, i int) int64 {
	s, ok := r.column(o, "column_int64", i, true)
	if !ok {
		return 0
	}
	return native.ColumnInt64(s.tls, s.stmt, i)
}

func (r *Registry) ColumnDouble(o any, i int) float64 {
	s, ok := r.column(o, "column_double", i, true)
	if !ok {
		return 0
	}
	return native.ColumnDouble(s.tls, s.stmt, i)
}

// ColumnBlob copies column i. A zero-length value yields an empty, non-nil
// slice.
func (r *Registry) ColumnBlob(o any, i int) []byte {
	s, ok := r.column(o, "column_blob", i, true)
	if !ok {
		return nil
	}
	return native.ColumnBlob(s.tls, s.stmt, i)
}

// Column decodes column i according to its type tag.
func (r *Registry) Column(o any, i int) ColumnValue {
	v := ColumnValue{Index: i, Type: r.ColumnType(o, i)}
	switch v.Type {
	case codec.ColumnText:
		v.Text = r.ColumnText(o, i)
	case codec.ColumnInteger:
		v.Int = r.ColumnInt64(o, i)
	case codec.ColumnFloat:
		v.Double = r.ColumnDouble(o, i)
	case codec.ColumnBlob:
		v.Blob = r.ColumnBlob(o, i)
	}
	return v
}

// Columns decodes every value of the current row.
func (r *Registry) Columns(o any) []ColumnValue {
	n := r.DataCount(o)
	if n <= 0 {
		return nil
	}
	out := make([]ColumnValue, n)
	for i := range out {
		out[i] = r.Column(o, i)
	}
	return out
}
