package native

import (
	"modernc.org/libc"
	sqlite3 "modernc.org/sqlite/lib"
)

// Prepare16 compiles the first statement of sql. The statement is null when
// sql holds only whitespace or comments.
func Prepare16(tls *libc.TLS, db DB, sql string) (Stmt, int) {
	stmt, _, rc := PrepareTail16(tls, db, sql)
	return stmt, rc
}

// PrepareTail16 compiles the first statement of sql and returns the text
// that was not consumed.
func PrepareTail16(tls *libc.TLS, db DB, sql string) (Stmt, string, int) {
	zSql, nBytes := UTF16(tls, sql)
	defer Free(tls, zSql)

	pp := Malloc(tls, int(2*ptrSize))
	defer Free(tls, pp)
	ppStmt, pzTail := pp, pp+ptrSize
	*(*uintptr)(unsafePointer(ppStmt)) = 0
	*(*uintptr)(unsafePointer(pzTail)) = 0

	rc := sqlite3.Xsqlite3_prepare16_v2(tls, uintptr(db), zSql, int32(nBytes), ppStmt, pzTail)
	stmt := Stmt(readPtr(ppStmt))

	tail := ""
	if t := readPtr(pzTail); t != 0 && t >= zSql {
		if consumed := int(t - zSql); consumed < nBytes {
			tail = GoStringUTF16(t, nBytes-consumed)
		}
	}
	return stmt, tail, int(rc)
}

func Finalize(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_finalize(tls, uintptr(s)))
}

func Step(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_step(tls, uintptr(s)))
}

func Reset(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_reset(tls, uintptr(s)))
}

func ClearBindings(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_clear_bindings(tls, uintptr(s)))
}

// SQL is the text the statement was prepared from.
func SQL(tls *libc.TLS, s Stmt) string {
	return GoString(sqlite3.Xsqlite3_sql(tls, uintptr(s)))
}

// ExpandedSQL is the statement text with bound parameters substituted.
func ExpandedSQL(tls *libc.TLS, s Stmt) string {
	p := sqlite3.Xsqlite3_expanded_sql(tls, uintptr(s))
	defer Free(tls, p)
	return GoString(p)
}

func IsBusy(tls *libc.TLS, s Stmt) bool {
	return sqlite3.Xsqlite3_stmt_busy(tls, uintptr(s)) != 0
}

func IsReadOnly(tls *libc.TLS, s Stmt) bool {
	return sqlite3.Xsqlite3_stmt_readonly(tls, uintptr(s)) != 0
}

func ParameterCount(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_bind_parameter_count(tls, uintptr(s)))
}

// ParameterIndex maps a named parameter such as ":id" to its 1-based index,
// or 0 when no parameter has that name.
func ParameterIndex(tls *libc.TLS, s Stmt, name string) int {
	zName := CString(tls, name)
	defer Free(tls, zName)
	return int(sqlite3.Xsqlite3_bind_parameter_index(tls, uintptr(s), zName))
}

func BindNull(tls *libc.TLS, s Stmt, i int) int {
	return int(sqlite3.Xsqlite3_bind_null(tls, uintptr(s), int32(i)))
}

// BindText binds v as UTF-16 text. An empty string binds empty text, not
// NULL.
func BindText(tls *libc.TLS, s Stmt, i int, v string) int {
	p, nBytes := UTF16(tls, v)
	defer Free(tls, p)
	return int(sqlite3.Xsqlite3_bind_text16(tls, uintptr(s), int32(i), p, int32(nBytes), transient))
}

func BindInt(tls *libc.TLS, s Stmt, i int, v int32) int {
	return int(sqlite3.Xsqlite3_bind_int(tls, uintptr(s), int32(i), v))
}

func BindInt64(tls *libc.TLS, s Stmt, i int, v int64) int {
	return int(sqlite3.Xsqlite3_bind_int64(tls, uintptr(s), int32(i), v))
}

func BindDouble(tls *libc.TLS, s Stmt, i int, v float64) int {
	return int(sqlite3.Xsqlite3_bind_double(tls, uintptr(s), int32(i), v))
}

// BindBlob binds a copy of v. An empty v binds a zero-length blob.
func BindBlob(tls *libc.TLS, s Stmt, i int, v []byte) int {
	if len(v) == 0 {
		return int(sqlite3.Xsqlite3_bind_zeroblob(tls, uintptr(s), int32(i), 0))
	}
	p := Malloc(tls, len(v))
	defer Free(tls, p)
	copy(unsafeBytes(p, len(v)), v)
	return int(sqlite3.Xsqlite3_bind_blob(tls, uintptr(s), int32(i), p, int32(len(v)), transient))
}

func ColumnCount(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_column_count(tls, uintptr(s)))
}

func DataCount(tls *libc.TLS, s Stmt) int {
	return int(sqlite3.Xsqlite3_data_count(tls, uintptr(s)))
}

func ColumnName(tls *libc.TLS, s Stmt, i int) string {
	return GoString(sqlite3.Xsqlite3_column_name(tls, uintptr(s), int32(i)))
}

// ColumnDeclType is the declared type of a result column that maps directly
// onto a table column, "" for expressions.
func ColumnDeclType(tls *libc.TLS, s Stmt, i int) string {
	return GoString(sqlite3.Xsqlite3_column_decltype(tls, uintptr(s), int32(i)))
}

// ColumnType is the native fundamental type of the value in column i.
func ColumnType(tls *libc.TLS, s Stmt, i int) int {
	return int(sqlite3.Xsqlite3_column_type(tls, uintptr(s), int32(i)))
}

// ColumnText reads column i as UTF-16. The byte count must be fetched after
// the text pointer.
func ColumnText(tls *libc.TLS, s Stmt, i int) string {
	p := sqlite3.Xsqlite3_column_text16(tls, uintptr(s), int32(i))
	n := sqlite3.Xsqlite3_column_bytes16(tls, uintptr(s), int32(i))
	return GoStringUTF16(p, int(n))
}

func ColumnInt(tls *libc.TLS, s Stmt, i int) int32 {
	return sqlite3.Xsqlite3_column_int(tls, uintptr(s), int32(i))
}

func ColumnInt64(tls *libc.TLS, s Stmt, i int) int64 {
	return sqlite3.Xsqlite3_column_int64(tls, uintptr(s), int32(i))
}

func ColumnDouble(tls *libc.TLS, s Stmt, i int) float64 {
	return sqlite3.Xsqlite3_column_double(tls, uintptr(s), int32(i))
}

// ColumnBlob copies column i. A zero-length value yields an empty, non-nil
// slice.
func ColumnBlob(tls *libc.TLS, s Stmt, i int) []byte {
	p := sqlite3.Xsqlite3_column_blob(tls, uintptr(s), int32(i))
	n := sqlite3.Xsqlite3_column_bytes(tls, uintptr(s), int32(i))
	return GoBytes(p, int(n))
}
