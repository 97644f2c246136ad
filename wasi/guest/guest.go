//go:build wasip1

// Package guest wires sqlproxy/driver to the host's env module inside a
// WebAssembly guest. Importing it exports alloc_bytes and free_bytes and
// installs the host handler; Open then returns a *sql.DB backed by the
// host's database.
package guest

import (
	"database/sql"
	"fmt"
	"unsafe"

	"github.com/tomyedwab/sqlbridge/sqlproxy/driver"
)

//go:wasmimport env sqlite_host_handler
func sqlite_host_handler(requestPayload string) (responseHandle uint64)

var (
	byteHandles    = make(map[uint32][]byte)
	nextByteHandle = uint32(1)
)

//go:wasmexport alloc_bytes
func allocBytes(size uint32) uint64 {
	if size == 0 {
		size = 1
	}
	bytes := make([]byte, size)
	handle := nextByteHandle
	byteHandles[handle] = bytes
	nextByteHandle++
	return uint64(handle)<<32 | uint64(uintptr(unsafe.Pointer(&bytes[0])))
}

//go:wasmexport free_bytes
func freeBytes(handle uint32) {
	delete(byteHandles, handle)
}

func callHost(payload []byte) ([]byte, error) {
	responseHandle := sqlite_host_handler(string(payload))
	handle := uint32(responseHandle)
	ret := byteHandles[handle]
	freeBytes(handle)
	if responseHandle>>32 != 0 {
		return nil, fmt.Errorf("sqlite_host_handler returned error: %s", string(ret))
	}
	return ret, nil
}

func init() {
	driver.SetHostHandler(callHost)
}

// Open returns a database handle proxied to the host. txID, when set, joins
// a transaction the host started for this call.
func Open(txID string) *sql.DB {
	db := sql.OpenDB(driver.NewConnector(callHost).WithHostTx(txID))
	db.SetMaxOpenConns(1)
	return db
}
