package bridge

import (
	"github.com/tomyedwab/sqlbridge/native"
)

// Open opens the database at path for the connection owner and stores the
// new Handle in its handle field. A read-only open never creates the file.
// On failure the field is left untouched, the engine status is returned and
// the message goes to the owner's error method.
func (r *Registry) Open(o any, path string, readOnly, createIfMissing bool) int {
	own, status := r.owner(o, false)
	if status != StatusOK {
		if r != nil {
			r.logger.Warn("Open rejected", "status", status, "error", StatusError(status))
		}
		return status
	}
	if r.isClosed() {
		own.report("open_v2", native.Misuse, ErrRegistryClosed.Error())
		return native.Misuse
	}
	if _, ok := r.arena.get(own.handle(), kindConn); ok {
		own.report("open_v2", native.Misuse, MsgAlreadyOpen)
		return native.Misuse
	}

	flags := native.OpenReadWrite
	if readOnly {
		flags = native.OpenReadOnly
	} else if createIfMissing {
		flags |= native.OpenCreate
	}

	tls := native.NewTLS()
	db, rc := native.Open(tls, path, flags)
	if rc != native.OK {
		msg := path
		if db != 0 {
			msg = native.ErrMsg(tls, db)
			native.Close(tls, db)
		}
		tls.Close()
		own.report("open_v2", rc, msg)
		r.logger.Debug("Open failed", "path", path, "code", rc, "message", msg)
		return rc
	}

	h := r.arena.alloc(slot{kind: kindConn, tls: tls, db: db})
	own.setHandle(h)
	r.logger.Debug("Database opened", "path", path, "handle", h.String(), "readOnly", readOnly)
	return StatusOK
}

// Close closes the owner's connection. Closing a closed connection succeeds.
// The handle field is cleared only when the engine accepts the close; with
// unfinalized statements it stays set and SQLITE_BUSY is returned.
func (r *Registry) Close(o any) int {
	own, status := r.owner(o, false)
	if status != StatusOK {
		return status
	}
	h := own.handle()
	s, ok := r.arena.get(h, kindConn)
	if !ok {
		return StatusOK
	}
	if s.execDepth > 0 {
		return native.Busy
	}
	if rc := closeConn(s); rc != StatusOK {
		r.logger.Debug("Database close deferred", "handle", h.String(), "code", rc)
		return rc
	}
	r.arena.release(h, kindConn)
	own.setHandle(0)
	r.logger.Debug("Database closed", "handle", h.String())
	return StatusOK
}

func closeConn(s slot) int {
	rc := native.Close(s.tls, s.db)
	if rc == native.OK {
		s.tls.Close()
	}
	return rc
}

// conn resolves the owner's live connection slot.
func (r *Registry) conn(o any) (owner, Handle, slot, int) {
	own, status := r.owner(o, false)
	if status != StatusOK {
		return owner{}, 0, slot{}, status
	}
	h := own.handle()
	s, ok := r.arena.get(h, kindConn)
	if !ok {
		return own, h, slot{}, StatusNotOpen
	}
	return own, h, s, StatusOK
}

// IsOpen reports whether the owner's handle still resolves to a live
// connection. Handles left behind by Shutdown do not.
func (r *Registry) IsOpen(o any) bool {
	_, _, _, status := r.conn(o)
	return status == StatusOK
}

// Error is the engine's message for the last failed call on the
// connection, "" when closed.
func (r *Registry) Error(o any) string {
	_, _, s, status := r.conn(o)
	if status != StatusOK {
		return ""
	}
	return native.ErrMsg(s.tls, s.db)
}

// FileName is the path of the main database, "" when closed or in memory.
func (r *Registry) FileName(o any) string {
	_, _, s, status := r.conn(o)
	if status != StatusOK {
		return ""
	}
	return native.FileName(s.tls, s.db)
}

// LastInsertRowID is the rowid of the most recent insert, or -1 when the
// connection is closed.
func (r *Registry) LastInsertRowID(o any) int64 {
	_, _, s, status := r.conn(o)
	if status != StatusOK {
		return -1
	}
	return native.LastInsertRowID(s.tls, s.db)
}

// BusyTimeout makes the connection retry locked tables for up to ms
// milliseconds. It does nothing when the connection is closed.
func (r *Registry) BusyTimeout(o any, ms int) {
	_, _, s, status := r.conn(o)
	if status != StatusOK {
		return
	}
	native.BusyTimeout(s.tls, s.db, ms)
}

// Changes is the number of rows modified by the most recent statement on
// conn, or -1 when conn does not name an open connection.
func (r *Registry) Changes(conn Handle) int {
	if r == nil {
		return -1
	}
	s, ok := r.arena.get(conn, kindConn)
	if !ok {
		return -1
	}
	return native.Changes(s.tls, s.db)
}

// SoftHeapLimit sets the process-wide soft heap limit and returns the
// previous value. A negative n only queries.
func (r *Registry) SoftHeapLimit(n int64) int64 {
	tls := native.NewTLS()
	defer tls.Close()
	return native.SoftHeapLimit(tls, n)
}

// Sleep blocks for at least ms milliseconds and returns the time actually
// requested from the OS.
func (r *Registry) Sleep(ms int) int {
	tls := native.NewTLS()
	defer tls.Close()
	return native.Sleep(tls, ms)
}

// Version is the engine's library version.
func (r *Registry) Version() string {
	tls := native.NewTLS()
	defer tls.Close()
	return native.LibVersion(tls)
}
