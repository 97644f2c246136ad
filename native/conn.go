package native

import (
	"modernc.org/libc"
	sqlite3 "modernc.org/sqlite/lib"
)

// Open flags.
const (
	OpenReadOnly  = sqlite3.SQLITE_OPEN_READONLY
	OpenReadWrite = sqlite3.SQLITE_OPEN_READWRITE
	OpenCreate    = sqlite3.SQLITE_OPEN_CREATE
)

// Open is sqlite3_open_v2. The engine may hand back a connection even when
// rc is not OK; it carries the error message and must still be closed.
func Open(tls *libc.TLS, path string, flags int) (DB, int) {
	zName := CString(tls, path)
	defer Free(tls, zName)

	pp := Malloc(tls, int(ptrSize))
	defer Free(tls, pp)
	*(*uintptr)(unsafePointer(pp)) = 0

	rc := sqlite3.Xsqlite3_open_v2(tls, zName, pp, int32(flags), 0)
	return DB(readPtr(pp)), int(rc)
}

// Close is sqlite3_close. It fails with SQLITE_BUSY while statements
// prepared on db are still alive.
func Close(tls *libc.TLS, db DB) int {
	return int(sqlite3.Xsqlite3_close(tls, uintptr(db)))
}

// ErrMsg is the message for the most recent failed call on db.
func ErrMsg(tls *libc.TLS, db DB) string {
	return GoString(sqlite3.Xsqlite3_errmsg(tls, uintptr(db)))
}

// FileName is the path of the main database, "" for in-memory databases.
func FileName(tls *libc.TLS, db DB) string {
	zMain := CString(tls, "main")
	defer Free(tls, zMain)
	return GoString(sqlite3.Xsqlite3_db_filename(tls, uintptr(db), zMain))
}

func LastInsertRowID(tls *libc.TLS, db DB) int64 {
	return sqlite3.Xsqlite3_last_insert_rowid(tls, uintptr(db))
}

func Changes(tls *libc.TLS, db DB) int {
	return int(sqlite3.Xsqlite3_changes(tls, uintptr(db)))
}

func BusyTimeout(tls *libc.TLS, db DB, ms int) int {
	return int(sqlite3.Xsqlite3_busy_timeout(tls, uintptr(db), int32(ms)))
}
