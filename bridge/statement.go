package bridge

import (
	"github.com/tomyedwab/sqlbridge/codec"
	"github.com/tomyedwab/sqlbridge/native"
)

// stmt resolves the owner's live statement slot. When the statement is not
// prepared it reports api as not open and makes no native call.
func (r *Registry) stmt(o any, api string) (owner, Handle, slot, int) {
	own, status := r.owner(o, true)
	if status != StatusOK {
		return owner{}, 0, slot{}, status
	}
	h := own.handle()
	s, ok := r.arena.get(h, kindStmt)
	if !ok {
		own.report(api, StatusNotOpen, MsgStatementNotOpen)
		return own, h, slot{}, StatusNotOpen
	}
	return own, h, s, StatusOK
}

// Prepare compiles the first statement of sql on conn and stores its
// Handle in the statement owner. A statement the owner already held is
// finalized first. Compile failures go to the owner's detailed error method
// as the engine's description of the code plus the connection's message.
func (r *Registry) Prepare(o any, conn Handle, sql string) int {
	own, status := r.owner(o, true)
	if status != StatusOK {
		return status
	}
	cs, ok := r.arena.get(conn, kindConn)
	if !ok {
		own.report("prepare_v2", StatusNotOpen, MsgNoOpenDatabase)
		return StatusNotOpen
	}
	if old := own.handle(); old != 0 {
		own.setHandle(0)
		if s, ok := r.arena.release(old, kindStmt); ok {
			finalize(s)
		}
	}

	stmt, rc := native.Prepare16(cs.tls, cs.db, sql)
	if rc != native.OK {
		if stmt != 0 {
			native.Finalize(cs.tls, stmt)
		}
		own.reportDetail("prepare_v2", rc, native.ErrStr(cs.tls, rc), native.ErrMsg(cs.tls, cs.db))
		return rc
	}
	if stmt == 0 {
		own.reportDetail("prepare_v2", native.Misuse, native.ErrStr(cs.tls, native.Misuse), "no statement in sql")
		return native.Misuse
	}

	h := r.arena.alloc(slot{kind: kindStmt, tls: cs.tls, db: cs.db, stmt: stmt, conn: conn})
	own.setHandle(h)
	r.logger.Debug("Statement prepared", "handle", h.String(), "conn", conn.String())
	return StatusOK
}

// Finalize destroys the owner's statement. The handle field is cleared
// before the engine is called, so a second Finalize reports not open and
// returns StatusNotOpen. The result is the engine's status, which repeats
// the error of the last failed step.
func (r *Registry) Finalize(o any) int {
	own, h, _, status := r.stmt(o, "finalize")
	if status != StatusOK {
		return status
	}
	own.setHandle(0)
	s, ok := r.arena.release(h, kindStmt)
	if !ok {
		return StatusNotOpen
	}
	rc := finalize(s)
	r.logger.Debug("Statement finalized", "handle", h.String(), "code", rc)
	return rc
}

func finalize(s slot) int {
	return native.Finalize(s.tls, s.stmt)
}

// Reset rewinds the statement so it can be stepped again. Bindings are
// kept.
func (r *Registry) Reset(o any) int {
	_, h, s, status := r.stmt(o, "reset")
	if status != StatusOK {
		return status
	}
	rc := native.Reset(s.tls, s.stmt)
	r.arena.update(h, kindStmt, func(s *slot) { s.state = statePrepared })
	return rc
}

func (r *Registry) ClearBindings(o any) int {
	_, _, s, status := r.stmt(o, "clear_bindings")
	if status != StatusOK {
		return status
	}
	return native.ClearBindings(s.tls, s.stmt)
}

// Step advances the statement by one row. Busy is returned as a tag and
// never reported; retrying is up to the caller.
func (r *Registry) Step(o any) codec.StepResult {
	own, h, s, status := r.stmt(o, "step")
	if status != StatusOK {
		return codec.StepError
	}
	rc := native.Step(s.tls, s.stmt)
	res := codec.EncodeStep(rc)

	state := statePrepared
	switch res {
	case codec.StepRow:
		state = stateHasRow
	case codec.StepDone:
		state = stateDone
	}
	r.arena.update(h, kindStmt, func(s *slot) { s.state = state })

	if res == codec.StepError {
		own.report("step", rc, native.ErrMsg(s.tls, s.db))
	}
	return res
}

// SQL is the text the statement was prepared from.
func (r *Registry) SQL(o any) string {
	_, _, s, status := r.stmt(o, "sql")
	if status != StatusOK {
		return ""
	}
	return native.SQL(s.tls, s.stmt)
}

// ExpandedSQL is the statement text with the current bindings substituted.
func (r *Registry) ExpandedSQL(o any) string {
	_, _, s, status := r.stmt(o, "expanded_sql")
	if status != StatusOK {
		return ""
	}
	return native.ExpandedSQL(s.tls, s.stmt)
}

// IsBusy reports whether the statement has been stepped but not run to
// completion or reset.
func (r *Registry) IsBusy(o any) bool {
	_, _, s, status := r.stmt(o, "stmt_busy")
	if status != StatusOK {
		return false
	}
	return native.IsBusy(s.tls, s.stmt)
}

func (r *Registry) IsReadOnly(o any) bool {
	_, _, s, status := r.stmt(o, "stmt_readonly")
	if status != StatusOK {
		return false
	}
	return native.IsReadOnly(s.tls, s.stmt)
}

func (r *Registry) ParameterCount(o any) int {
	_, _, s, status := r.stmt(o, "bind_parameter_count")
	if status != StatusOK {
		return 0
	}
	return native.ParameterCount(s.tls, s.stmt)
}

// ColumnCount is the number of result columns, -1 when not prepared.
func (r *Registry) ColumnCount(o any) int {
	_, _, s, status := r.stmt(o, "column_count")
	if status != StatusOK {
		return -1
	}
	return native.ColumnCount(s.tls, s.stmt)
}

// DataCount is the number of values in the current row, -1 when not
// prepared.
func (r *Registry) DataCount(o any) int {
	_, _, s, status := r.stmt(o, "data_count")
	if status != StatusOK {
		return -1
	}
	return native.DataCount(s.tls, s.stmt)
}
