package native

import (
	"sync"
	"unsafe"

	"modernc.org/libc"
	sqlite3 "modernc.org/sqlite/lib"
)

// RowFunc receives one result row of an Exec. NULL values arrive as "".
// Returning false aborts the remaining statements.
type RowFunc func(values, columns []string) bool

// callbacks keeps every in-flight RowFunc reachable while the engine holds
// its id as an opaque pointer argument.
var callbacks = struct {
	mu   sync.RWMutex
	m    map[uintptr]RowFunc
	next uintptr
}{
	m: make(map[uintptr]RowFunc),
}

func registerCallback(fn RowFunc) uintptr {
	callbacks.mu.Lock()
	defer callbacks.mu.Unlock()
	callbacks.next++
	id := callbacks.next
	callbacks.m[id] = fn
	return id
}

func releaseCallback(id uintptr) {
	callbacks.mu.Lock()
	delete(callbacks.m, id)
	callbacks.mu.Unlock()
}

// PendingCallbacks is the number of Exec calls currently holding a RowFunc.
func PendingCallbacks() int {
	callbacks.mu.RLock()
	defer callbacks.mu.RUnlock()
	return len(callbacks.m)
}

// Exec is sqlite3_exec. It runs every statement in sql and hands each result
// row to fn, which may be nil. The engine's diagnostic text is copied and
// freed before returning.
func Exec(tls *libc.TLS, db DB, sql string, fn RowFunc) (int, string) {
	zSql := CString(tls, sql)
	defer Free(tls, zSql)

	pzErr := Malloc(tls, int(ptrSize))
	defer Free(tls, pzErr)
	*(*uintptr)(unsafePointer(pzErr)) = 0

	var xCallback, pArg uintptr
	if fn != nil {
		pArg = registerCallback(fn)
		defer releaseCallback(pArg)
		xCallback = cFuncPointer(execTrampoline)
	}

	rc := sqlite3.Xsqlite3_exec(tls, uintptr(db), zSql, xCallback, pArg, pzErr)

	msg := ""
	if p := readPtr(pzErr); p != 0 {
		msg = GoString(p)
		Free(tls, p)
	}
	return int(rc), msg
}

func execTrampoline(tls *libc.TLS, pArg uintptr, argc int32, argv, azColName uintptr) int32 {
	callbacks.mu.RLock()
	fn := callbacks.m[pArg]
	callbacks.mu.RUnlock()
	if fn == nil {
		return 1
	}

	values := make([]string, argc)
	columns := make([]string, argc)
	for i := range values {
		off := uintptr(i) * ptrSize
		if argv != 0 {
			values[i] = GoString(readPtr(argv + off))
		}
		columns[i] = GoString(readPtr(azColName + off))
	}
	if fn(values, columns) {
		return 0
	}
	return 1
}

// cFuncPointer turns a top-level Go function into a pointer the transpiled
// engine can call back through.
func cFuncPointer[T any](f T) uintptr {
	return *(*uintptr)(unsafe.Pointer(&struct{ f T }{f}))
}

// IsAbort reports whether rc is the status Exec returns after fn asked to
// stop.
func IsAbort(rc int) bool {
	return rc == sqlite3.SQLITE_ABORT
}
