package bridge

import (
	"github.com/tomyedwab/sqlbridge/native"
)

// Exec runs every statement in sql on the owner's connection, handing each
// result row to the owner's row method as strings (NULL reads as ""). A row
// method returning false stops execution; that abort is not an error and
// Exec returns StatusOK. Any other engine failure is reported through the
// owner's error method and its status returned.
func (r *Registry) Exec(o any, sql string) int {
	own, h, s, status := r.conn(o)
	switch status {
	case StatusOK:
	case StatusNotOpen:
		own.report("exec", StatusNotOpen, MsgDatabaseNotOpen)
		return StatusNotOpen
	default:
		return status
	}
	if !own.hasRowMethod() {
		return StatusNoRowMethod
	}
	if s.execDepth > 0 {
		own.report("exec", native.Misuse, MsgExecInProgress)
		return native.Misuse
	}

	r.arena.update(h, kindConn, func(s *slot) { s.execDepth++ })
	defer r.arena.update(h, kindConn, func(s *slot) { s.execDepth-- })

	rc, msg := native.Exec(s.tls, s.db, sql, own.onRow)
	switch {
	case rc == native.OK:
		return StatusOK
	case native.IsAbort(rc):
		return StatusOK
	}
	if msg == "" {
		msg = native.ErrMsg(s.tls, s.db)
	}
	own.report("exec", rc, msg)
	return rc
}
