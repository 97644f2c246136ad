// Package native wraps the pieces of the SQLite C API that the bridge drives.
//
// Every pointer handed out here lives in engine memory. Callers own the
// *libc.TLS passed to each function and must not share it between
// goroutines running concurrently.
package native

import (
	"unicode/utf16"
	"unsafe"

	"modernc.org/libc"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB is a native database connection pointer. Zero is null.
type DB uintptr

// Stmt is a native prepared statement pointer. Zero is null.
type Stmt uintptr

// transient tells the engine to copy bound text and blobs before returning.
const transient = ^uintptr(0)

const ptrSize = unsafe.Sizeof(uintptr(0))

// Result codes the bridge acts on.
const (
	OK     = sqlite3.SQLITE_OK
	Error  = sqlite3.SQLITE_ERROR
	Abort  = sqlite3.SQLITE_ABORT
	Busy   = sqlite3.SQLITE_BUSY
	Misuse = sqlite3.SQLITE_MISUSE
	Range  = sqlite3.SQLITE_RANGE
	Row    = sqlite3.SQLITE_ROW
	Done   = sqlite3.SQLITE_DONE
)

// NewTLS allocates the thread-local state every native call needs.
func NewTLS() *libc.TLS {
	return libc.NewTLS()
}

// Malloc allocates n bytes with the engine allocator. A zero size still
// returns a distinct pointer.
func Malloc(tls *libc.TLS, n int) uintptr {
	if n < 1 {
		n = 1
	}
	return sqlite3.Xsqlite3_malloc64(tls, uint64(n))
}

// Free releases memory obtained from Malloc or from the engine.
func Free(tls *libc.TLS, p uintptr) {
	if p != 0 {
		sqlite3.Xsqlite3_free(tls, p)
	}
}

// CString copies s into engine memory with a terminating NUL.
func CString(tls *libc.TLS, s string) uintptr {
	p := Malloc(tls, len(s)+1)
	if p == 0 {
		return 0
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return p
}

// GoString reads a NUL-terminated string. A null pointer reads as "".
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	return libc.GoString(p)
}

// GoBytes copies n bytes starting at p. The result is never nil.
func GoBytes(p uintptr, n int) []byte {
	if p == 0 || n <= 0 {
		return []byte{}
	}
	b := make([]byte, n)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
	return b
}

// UTF16 copies s into engine memory as native-endian UTF-16 and returns the
// buffer together with its length in bytes. The buffer is NUL-terminated
// but the length never counts the terminator, so embedded NULs survive.
func UTF16(tls *libc.TLS, s string) (uintptr, int) {
	units := utf16.Encode([]rune(s))
	p := Malloc(tls, (len(units)+1)*2)
	if p == 0 {
		return 0, 0
	}
	dst := unsafe.Slice((*uint16)(unsafe.Pointer(p)), len(units)+1)
	copy(dst, units)
	dst[len(units)] = 0
	return p, len(units) * 2
}

// GoStringUTF16 decodes nBytes of native-endian UTF-16. It never scans for
// a terminator.
func GoStringUTF16(p uintptr, nBytes int) string {
	if p == 0 || nBytes < 2 {
		return ""
	}
	units := unsafe.Slice((*uint16)(unsafe.Pointer(p)), nBytes/2)
	return string(utf16.Decode(units))
}

// ErrStr is the engine's English description of a result code.
func ErrStr(tls *libc.TLS, rc int) string {
	return GoString(sqlite3.Xsqlite3_errstr(tls, int32(rc)))
}

// SoftHeapLimit sets the process-wide soft heap limit and returns the
// previous one. A negative n only queries.
func SoftHeapLimit(tls *libc.TLS, n int64) int64 {
	return sqlite3.Xsqlite3_soft_heap_limit64(tls, n)
}

// Sleep suspends the calling thread for at least ms milliseconds.
func Sleep(tls *libc.TLS, ms int) int {
	return int(sqlite3.Xsqlite3_sleep(tls, int32(ms)))
}

// LibVersion is the engine's version string, e.g. "3.50.4".
func LibVersion(tls *libc.TLS) string {
	return GoString(sqlite3.Xsqlite3_libversion(tls))
}

func readPtr(p uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(p))
}

func unsafePointer(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}

func unsafeBytes(p uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}
