package bridge

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tomyedwab/sqlbridge/codec"
	"github.com/tomyedwab/sqlbridge/native"
)

type reported struct {
	api     string
	code    int
	message string
	detail  string
}

type testConn struct {
	Handle Handle `bridge:"handle"`

	errors    []reported
	rows      [][]string
	columns   []string
	stopAfter int
}

func (c *testConn) ReportError(api string, code int, message string) {
	c.errors = append(c.errors, reported{api: api, code: code, message: message})
}

func (c *testConn) OnRow(values, columns []string) bool {
	c.rows = append(c.rows, values)
	c.columns = columns
	return c.stopAfter == 0 || len(c.rows) < c.stopAfter
}

type testStmt struct {
	Handle Handle `bridge:"handle"`

	errors []reported
}

func (s *testStmt) ReportError(api string, code int, message string) {
	s.errors = append(s.errors, reported{api: api, code: code, message: message})
}

func (s *testStmt) ReportErrorDetail(api string, code int, message, detail string) {
	s.errors = append(s.errors, reported{api: api, code: code, message: message, detail: detail})
}

func (s *testStmt) lastError() reported {
	if len(s.errors) == 0 {
		return reported{}
	}
	return s.errors[len(s.errors)-1]
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := reg.InitConnectionClass(ClassOf(&testConn{})); err != nil {
		t.Fatalf("InitConnectionClass: %v", err)
	}
	if err := reg.InitStatementClass(ClassOf(&testStmt{})); err != nil {
		t.Fatalf("InitStatementClass: %v", err)
	}
	t.Cleanup(func() {
		if err := reg.Shutdown(); err != nil {
			t.Errorf("registry close: %v", err)
		}
	})
	return reg
}

func openConn(t *testing.T, reg *Registry, path string) *testConn {
	t.Helper()
	c := &testConn{}
	if rc := reg.Open(c, path, false, true); rc != StatusOK {
		t.Fatalf("Open(%s) = %d, errors %v", path, rc, c.errors)
	}
	return c
}

func mustExec(t *testing.T, reg *Registry, c *testConn, sql string) {
	t.Helper()
	if rc := reg.Exec(c, sql); rc != StatusOK {
		t.Fatalf("Exec(%q) = %d, errors %v", sql, rc, c.errors)
	}
}

func mustPrepare(t *testing.T, reg *Registry, c *testConn, sql string) *testStmt {
	t.Helper()
	s := &testStmt{}
	if rc := reg.Prepare(s, c.Handle, sql); rc != StatusOK {
		t.Fatalf("Prepare(%q) = %d, errors %v", sql, rc, s.errors)
	}
	return s
}

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "bridge.db")
}

func TestInsertThenSelect(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	mustExec(t, reg, c, "CREATE TABLE t(a TEXT)")

	ins := mustPrepare(t, reg, c, "INSERT INTO t VALUES (?)")
	if rc := reg.BindText(ins, 1, "hello"); rc != StatusOK {
		t.Fatalf("BindText = %d", rc)
	}
	if got := reg.Step(ins); got != codec.StepDone {
		t.Fatalf("insert step = %v", got)
	}
	if rc := reg.Finalize(ins); rc != StatusOK {
		t.Fatalf("Finalize = %d", rc)
	}
	if got := reg.Changes(c.Handle); got != 1 {
		t.Errorf("Changes = %d, want 1", got)
	}
	if got := reg.LastInsertRowID(c); got != 1 {
		t.Errorf("LastInsertRowID = %d, want 1", got)
	}

	sel := mustPrepare(t, reg, c, "SELECT a FROM t")
	if got := reg.Step(sel); got != codec.StepRow {
		t.Fatalf("select step = %v", got)
	}
	if got := reg.ColumnType(sel, 0); got != codec.ColumnText {
		t.Errorf("ColumnType = %v", got)
	}
	if got := reg.ColumnText(sel, 0); got != "hello" {
		t.Errorf("ColumnText = %q", got)
	}
	if got := reg.Step(sel); got != codec.StepDone {
		t.Errorf("second step = %v", got)
	}
	reg.Finalize(sel)

	if rc := reg.Close(c); rc != StatusOK {
		t.Fatalf("Close = %d", rc)
	}
	if c.Handle != 0 {
		t.Errorf("handle not cleared after close")
	}
	if len(c.errors) != 0 || len(sel.errors) != 0 || len(ins.errors) != 0 {
		t.Errorf("unexpected reports: %v %v %v", c.errors, ins.errors, sel.errors)
	}
}

func TestExecAbortIsNotAnError(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))
	c.stopAfter = 1

	if rc := reg.Exec(c, "SELECT 1 UNION ALL SELECT 2"); rc != StatusOK {
		t.Fatalf("Exec = %d", rc)
	}
	if len(c.rows) != 1 || c.rows[0][0] != "1" {
		t.Errorf("rows = %v", c.rows)
	}
	if len(c.errors) != 0 {
		t.Errorf("abort was reported: %v", c.errors)
	}
}

func TestExecDeliversColumnsAndNulls(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	mustExec(t, reg, c, "SELECT 'a' AS first, NULL AS second")
	if len(c.rows) != 1 {
		t.Fatalf("rows = %v", c.rows)
	}
	if c.rows[0][0] != "a" || c.rows[0][1] != "" {
		t.Errorf("values = %#v", c.rows[0])
	}
	if c.columns[0] != "first" || c.columns[1] != "second" {
		t.Errorf("columns = %#v", c.columns)
	}
}

func TestExecReportsEngineErrors(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	rc := reg.Exec(c, "SELECT * FROM nope")
	if rc != native.Error {
		t.Fatalf("Exec = %d, want %d", rc, native.Error)
	}
	if len(c.errors) != 1 {
		t.Fatalf("errors = %v", c.errors)
	}
	if e := c.errors[0]; e.api != "exec" || e.code != native.Error || e.message != "no such table: nope" {
		t.Errorf("reported %+v", e)
	}
	if got := reg.Error(c); got != "no such table: nope" {
		t.Errorf("Error = %q", got)
	}
}

func TestExecOnClosedConnection(t *testing.T) {
	reg := newTestRegistry(t)
	c := &testConn{}

	if rc := reg.Exec(c, "SELECT 1"); rc != StatusNotOpen {
		t.Fatalf("Exec = %d", rc)
	}
	if len(c.errors) != 1 || c.errors[0].code != StatusNotOpen || c.errors[0].message != MsgDatabaseNotOpen {
		t.Errorf("errors = %v", c.errors)
	}
	if got := reg.LastInsertRowID(c); got != -1 {
		t.Errorf("LastInsertRowID = %d", got)
	}
	if rc := reg.Close(c); rc != StatusOK {
		t.Errorf("Close of closed connection = %d", rc)
	}
}

func TestFinalizeTwice(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	s := mustPrepare(t, reg, c, "SELECT 1")
	if rc := reg.Finalize(s); rc != StatusOK {
		t.Fatalf("first Finalize = %d", rc)
	}
	if rc := reg.Finalize(s); rc != StatusNotOpen {
		t.Fatalf("second Finalize = %d, want %d", rc, StatusNotOpen)
	}
	if e := s.lastError(); e.api != "finalize" || e.code != -1 || e.message != MsgStatementNotOpen {
		t.Errorf("reported %+v", e)
	}
}

func TestUnpreparedStatementIsNotOpen(t *testing.T) {
	reg := newTestRegistry(t)
	s := &testStmt{}

	checks := []struct {
		name string
		run  func() bool
	}{
		{"step", func() bool { return reg.Step(s) == codec.StepError }},
		{"bind", func() bool { return reg.BindInt(s, 1, 1) == StatusNotOpen }},
		{"column_text", func() bool { return reg.ColumnText(s, 0) == "" }},
		{"column_count", func() bool { return reg.ColumnCount(s) == -1 }},
		{"data_count", func() bool { return reg.DataCount(s) == -1 }},
		{"parameter_count", func() bool { return reg.ParameterCount(s) == 0 }},
		{"is_busy", func() bool { return !reg.IsBusy(s) }},
		{"is_read_only", func() bool { return !reg.IsReadOnly(s) }},
		{"reset", func() bool { return reg.Reset(s) == StatusNotOpen }},
		{"expanded_sql", func() bool { return reg.ExpandedSQL(s) == "" }},
	}
	for _, check := range checks {
		before := len(s.errors)
		if !check.run() {
			t.Errorf("%s: unexpected result", check.name)
		}
		if len(s.errors) != before+1 {
			t.Errorf("%s: not reported", check.name)
			continue
		}
		if e := s.lastError(); e.code != -1 || e.message != MsgStatementNotOpen {
			t.Errorf("%s: reported %+v", check.name, e)
		}
	}
}

func TestColumnNeedsCurrentRow(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))
	s := mustPrepare(t, reg, c, "SELECT 1")
	defer reg.Finalize(s)

	if got := reg.ColumnInt(s, 0); got != 0 {
		t.Errorf("ColumnInt before step = %d", got)
	}
	if e := s.lastError(); e.message != MsgNoCurrentRow {
		t.Errorf("reported %+v", e)
	}

	reg.Step(s)
	if got := reg.ColumnInt(s, 0); got != 1 {
		t.Errorf("ColumnInt = %d", got)
	}
	if got := reg.ColumnInt(s, 3); got != 0 {
		t.Errorf("ColumnInt out of range = %d", got)
	}
	if e := s.lastError(); e.code != native.Range || e.message != MsgColumnRange {
		t.Errorf("reported %+v", e)
	}

	reg.Step(s)
	if got := reg.ColumnInt(s, 0); got != 0 {
		t.Errorf("ColumnInt after done = %d", got)
	}
}

func TestRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))
	mustExec(t, reg, c, "CREATE TABLE v(x)")

	tests := []struct {
		name string
		bind Binding
		want ColumnValue
	}{
		{"null", NullAt(1), ColumnValue{Type: codec.ColumnNull}},
		{"ascii", TextAt(1, "plain"), ColumnValue{Type: codec.ColumnText, Text: "plain"}},
		{"empty text", TextAt(1, ""), ColumnValue{Type: codec.ColumnText, Text: ""}},
		{"non-ascii", TextAt(1, "Grüße, 世界 🙂"), ColumnValue{Type: codec.ColumnText, Text: "Grüße, 世界 🙂"}},
		{"embedded nul", TextAt(1, "a\x00b"), ColumnValue{Type: codec.ColumnText, Text: "a\x00b"}},
		{"int32 min", IntAt(1, -1<<31), ColumnValue{Type: codec.ColumnInteger, Int: -1 << 31}},
		{"int64 max", Int64At(1, 1<<63-1), ColumnValue{Type: codec.ColumnInteger, Int: 1<<63 - 1}},
		{"double", DoubleAt(1, 3.25), ColumnValue{Type: codec.ColumnFloat, Double: 3.25}},
		{"blob", BlobAt(1, []byte{0, 1, 2, 0xff}), ColumnValue{Type: codec.ColumnBlob, Blob: []byte{0, 1, 2, 0xff}}},
		{"empty blob", BlobAt(1, []byte{}), ColumnValue{Type: codec.ColumnBlob, Blob: []byte{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustExec(t, reg, c, "DELETE FROM v")

			ins := mustPrepare(t, reg, c, "INSERT INTO v VALUES (?)")
			if rc := reg.Bind(ins, tt.bind); rc != StatusOK {
				t.Fatalf("Bind = %d, errors %v", rc, ins.errors)
			}
			if got := reg.Step(ins); got != codec.StepDone {
				t.Fatalf("insert = %v, errors %v", got, ins.errors)
			}
			reg.Finalize(ins)

			sel := mustPrepare(t, reg, c, "SELECT x FROM v")
			defer reg.Finalize(sel)
			if got := reg.Step(sel); got != codec.StepRow {
				t.Fatalf("select = %v", got)
			}
			got := reg.Column(sel, 0)
			if got.Type != tt.want.Type {
				t.Fatalf("type = %v, want %v", got.Type, tt.want.Type)
			}
			switch got.Type {
			case codec.ColumnText:
				if got.Text != tt.want.Text {
					t.Errorf("text = %q, want %q", got.Text, tt.want.Text)
				}
			case codec.ColumnInteger:
				if got.Int != tt.want.Int {
					t.Errorf("int = %d, want %d", got.Int, tt.want.Int)
				}
			case codec.ColumnFloat:
				if got.Double != tt.want.Double {
					t.Errorf("double = %v, want %v", got.Double, tt.want.Double)
				}
			case codec.ColumnBlob:
				if got.Blob == nil || string(got.Blob) != string(tt.want.Blob) {
					t.Errorf("blob = %#v, want %#v", got.Blob, tt.want.Blob)
				}
			}
			if len(sel.errors) != 0 {
				t.Errorf("unexpected reports %v", sel.errors)
			}
		})
	}
}

func TestBusyIsPropagated(t *testing.T) {
	reg := newTestRegistry(t)
	path := tempPath(t)
	a := openConn(t, reg, path)
	b := openConn(t, reg, path)

	mustExec(t, reg, a, "CREATE TABLE t(x); INSERT INTO t VALUES (1)")
	s := mustPrepare(t, reg, b, "SELECT x FROM t")
	defer reg.Finalize(s)

	mustExec(t, reg, a, "BEGIN EXCLUSIVE; INSERT INTO t VALUES (2)")
	if got := reg.Step(s); got != codec.StepBusy {
		t.Fatalf("Step under exclusive lock = %v, want busy", got)
	}
	if len(s.errors) != 0 {
		t.Errorf("busy was reported: %v", s.errors)
	}

	mustExec(t, reg, a, "COMMIT")
	reg.Reset(s)
	var n int
	for reg.Step(s) == codec.StepRow {
		n++
	}
	if n != 2 {
		t.Errorf("rows after commit = %d, want 2", n)
	}
}

func TestCloseKeepsHandleWhileStatementsLive(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))
	s := mustPrepare(t, reg, c, "SELECT 1")

	h := c.Handle
	if rc := reg.Close(c); rc != native.Busy {
		t.Fatalf("Close with live statement = %d, want %d", rc, native.Busy)
	}
	if c.Handle != h {
		t.Fatalf("handle changed after failed close")
	}
	reg.Finalize(s)
	if rc := reg.Close(c); rc != StatusOK {
		t.Fatalf("Close = %d", rc)
	}
	if c.Handle != 0 {
		t.Errorf("handle not cleared")
	}
}

func TestStaleHandleNeverResolves(t *testing.T) {
	reg := newTestRegistry(t)
	path := tempPath(t)
	first := openConn(t, reg, path)
	stale := first.Handle
	reg.Close(first)

	second := openConn(t, reg, path)
	if second.Handle == stale {
		t.Fatalf("handle reused without a new generation")
	}
	if second.Handle.slot() != stale.slot() {
		t.Logf("slot not reused: %s vs %s", second.Handle, stale)
	}
	if got := reg.Changes(stale); got != -1 {
		t.Errorf("Changes(stale) = %d", got)
	}

	s := &testStmt{}
	if rc := reg.Prepare(s, stale, "SELECT 1"); rc != StatusNotOpen {
		t.Fatalf("Prepare on stale connection = %d", rc)
	}
	if e := s.lastError(); e.api != "prepare_v2" || e.message != MsgNoOpenDatabase {
		t.Errorf("reported %+v", e)
	}
}

func TestOpenFailures(t *testing.T) {
	reg := newTestRegistry(t)

	missing := filepath.Join(t.TempDir(), "missing.db")
	c := &testConn{}
	if rc := reg.Open(c, missing, true, false); rc == StatusOK {
		t.Fatalf("read-only open of missing file succeeded")
	}
	if c.Handle != 0 {
		t.Errorf("handle set after failed open")
	}
	if len(c.errors) != 1 || c.errors[0].api != "open_v2" {
		t.Errorf("errors = %v", c.errors)
	}

	c = &testConn{}
	if rc := reg.Open(c, filepath.Join(t.TempDir(), "no", "such", "dir.db"), false, true); rc == StatusOK {
		t.Fatalf("open in missing directory succeeded")
	}

	c = openConn(t, reg, tempPath(t))
	if rc := reg.Open(c, tempPath(t), false, true); rc != native.Misuse {
		t.Errorf("reopen = %d", rc)
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	reg := newTestRegistry(t)
	path := tempPath(t)
	w := openConn(t, reg, path)
	mustExec(t, reg, w, "CREATE TABLE t(x)")

	ro := &testConn{}
	if rc := reg.Open(ro, path, true, true); rc != StatusOK {
		t.Fatalf("read-only open = %d %v", rc, ro.errors)
	}
	if rc := reg.Exec(ro, "INSERT INTO t VALUES (1)"); rc == StatusOK {
		t.Fatalf("insert on read-only connection succeeded")
	}
}

func TestPrepareFailureUsesDetail(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	s := &testStmt{}
	rc := reg.Prepare(s, c.Handle, "SELEC 1")
	if rc != native.Error {
		t.Fatalf("Prepare = %d", rc)
	}
	e := s.lastError()
	if e.api != "prepare_v2" || e.message != "SQL logic error" || e.detail != `near "SELEC": syntax error` {
		t.Errorf("reported %+v", e)
	}
	if s.Handle != 0 {
		t.Errorf("handle set after failed prepare")
	}
}

func TestStatementIntrospection(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))
	mustExec(t, reg, c, "CREATE TABLE t(id INTEGER PRIMARY KEY, name TEXT)")

	ins := mustPrepare(t, reg, c, "INSERT INTO t(id, name) VALUES (?1, :name)")
	if reg.IsReadOnly(ins) {
		t.Errorf("insert reported read-only")
	}
	if got := reg.ParameterCount(ins); got != 2 {
		t.Errorf("ParameterCount = %d", got)
	}
	if got := reg.BindParameterIndex(ins, ":name"); got != 2 {
		t.Errorf("BindParameterIndex = %d", got)
	}
	reg.BindInt64(ins, 1, 7)
	reg.BindText(ins, 2, "x")
	if got := reg.ExpandedSQL(ins); got != "INSERT INTO t(id, name) VALUES (7, 'x')" {
		t.Errorf("ExpandedSQL = %q", got)
	}
	reg.Step(ins)
	if rc := reg.ClearBindings(ins); rc != StatusOK {
		t.Errorf("ClearBindings = %d", rc)
	}
	reg.Finalize(ins)

	sel := mustPrepare(t, reg, c, "SELECT id, name, 1 + 1 AS two FROM t")
	defer reg.Finalize(sel)
	if !reg.IsReadOnly(sel) {
		t.Errorf("select not read-only")
	}
	if got := reg.ColumnCount(sel); got != 3 {
		t.Errorf("ColumnCount = %d", got)
	}
	if got := reg.ColumnName(sel, 2); got != "two" {
		t.Errorf("ColumnName = %q", got)
	}
	if got := reg.ColumnDeclaredType(sel, 0); got != "INTEGER" {
		t.Errorf("ColumnDeclaredType(0) = %q", got)
	}
	if got := reg.ColumnDeclaredType(sel, 2); got != "" {
		t.Errorf("ColumnDeclaredType(2) = %q", got)
	}
	if got := reg.DataCount(sel); got != 0 {
		t.Errorf("DataCount before step = %d", got)
	}
	if reg.Step(sel) != codec.StepRow {
		t.Fatalf("no row")
	}
	if got := reg.DataCount(sel); got != 3 {
		t.Errorf("DataCount = %d", got)
	}
	if !reg.IsBusy(sel) {
		t.Errorf("IsBusy false mid-iteration")
	}
	if vals := reg.Columns(sel); len(vals) != 3 || vals[1].Text != "x" || vals[2].Int != 2 {
		t.Errorf("Columns = %+v", vals)
	}
	reg.Reset(sel)
	if reg.IsBusy(sel) {
		t.Errorf("IsBusy true after reset")
	}
	if got := reg.SQL(sel); got != "SELECT id, name, 1 + 1 AS two FROM t" {
		t.Errorf("SQL = %q", got)
	}
}

func TestCursor(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	cur := reg.Query(c.Handle, `
		CREATE TABLE t(a, b);
		INSERT INTO t VALUES (1, NULL), (2, 'two');
		SELECT a, b FROM t ORDER BY a;
		SELECT 'x' AS c;
	`)
	var rows [][]string
	for values, err := range cur.All() {
		if err != nil {
			t.Fatalf("cursor: %v", err)
		}
		rows = append(rows, values)
	}
	want := [][]string{{"1", ""}, {"2", "two"}, {"x"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
			}
		}
	}
	if n := reg.Stats().Statements; n != 0 {
		t.Errorf("statements left after cursor = %d", n)
	}

	bad := reg.Query(c.Handle, "SELECT * FROM nope")
	if bad.Next() {
		t.Fatalf("Next on bad query succeeded")
	}
	var bErr *Error
	if !errors.As(bad.Err(), &bErr) || bErr.Code != native.Error {
		t.Errorf("Err = %v", bad.Err())
	}
}

func TestCursorStopsEarly(t *testing.T) {
	reg := newTestRegistry(t)
	c := openConn(t, reg, tempPath(t))

	cur := reg.Query(c.Handle, "SELECT 1 UNION ALL SELECT 2 UNION ALL SELECT 3")
	if !cur.Next() || cur.Values()[0] != "1" {
		t.Fatalf("first row = %v", cur.Values())
	}
	cur.Close()
	if cur.Next() {
		t.Errorf("Next after Close")
	}
	if rc := reg.Close(c); rc != StatusOK {
		t.Errorf("Close after cursor Close = %d", rc)
	}
}

func TestRegistrySentinels(t *testing.T) {
	var nilReg *Registry
	if rc := nilReg.Open(&testConn{}, "x.db", false, true); rc != StatusNoRegistry {
		t.Errorf("nil registry Open = %d", rc)
	}
	if rc := nilReg.Close(&testConn{}); rc != StatusNoRegistry {
		t.Errorf("nil registry Close = %d", rc)
	}
	if rc := nilReg.Exec(&testConn{}, "SELECT 1"); rc != StatusNoRegistry {
		t.Errorf("nil registry Exec = %d", rc)
	}
	if rc := nilReg.Prepare(&testStmt{}, 1, "SELECT 1"); rc != StatusNoRegistry {
		t.Errorf("nil registry Prepare = %d", rc)
	}
	if err := nilReg.Shutdown(); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("nil registry Shutdown = %v", err)
	}

	reg := NewRegistry(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer reg.Shutdown()

	if rc := reg.Open(&testConn{}, "x.db", false, true); rc != StatusClassNotRegistered {
		t.Errorf("unregistered Open = %d", rc)
	}

	type noField struct{ Other int64 }
	err := reg.InitConnectionClass(ClassOf(&noField{}))
	if !errors.Is(err, ErrNoHandleField) || !errors.Is(err, ErrNoErrorMethod) {
		t.Errorf("InitConnectionClass(noField) = %v", err)
	}
	if rc := reg.Open(&noField{}, "x.db", false, true); rc != StatusNoHandleField {
		t.Errorf("Open without handle field = %d", rc)
	}

	type noMethods struct {
		Handle Handle `bridge:"handle"`
	}
	if err := reg.InitConnectionClass(ClassOf(&noMethods{})); !errors.Is(err, ErrNoErrorMethod) {
		t.Errorf("InitConnectionClass(noMethods) = %v", err)
	}
	if rc := reg.Open(&noMethods{}, "x.db", false, true); rc != StatusNoErrorMethod {
		t.Errorf("Open without error method = %d", rc)
	}

	// A connection class is not a statement class.
	if err := reg.InitStatementClass(ClassOf(&testConn{})); !errors.Is(err, ErrNoDetailMethod) {
		t.Errorf("InitStatementClass(testConn) = %v", err)
	}
	if rc := reg.Prepare(&testConn{}, 0, "SELECT 1"); rc != StatusNoDetailMethod {
		t.Errorf("Prepare with connection owner = %d", rc)
	}

	if err := reg.InitConnectionClass(Class{Type: nil}); err == nil {
		t.Errorf("nil class type accepted")
	}
	if StatusError(StatusNoRowMethod) != ErrNoRowMethod || StatusError(native.Busy) != nil {
		t.Errorf("StatusError mapping wrong")
	}
}

type quietConn struct {
	Handle int64 `bridge:"db"`
	last   string
}

func (q *quietConn) ReportError(api string, code int, message string) { q.last = message }

func TestClassWithoutRowMethod(t *testing.T) {
	reg := newTestRegistry(t)
	c := Class{Type: reflect.TypeOf(&quietConn{}), HandleField: "db", ErrorMethod: "ReportError"}
	if err := reg.InitConnectionClass(c); err != nil {
		t.Fatalf("InitConnectionClass: %v", err)
	}

	q := &quietConn{}
	if rc := reg.Open(q, tempPath(t), false, true); rc != StatusOK {
		t.Fatalf("Open = %d (%s)", rc, q.last)
	}
	if q.Handle == 0 {
		t.Fatalf("signed handle field not set")
	}
	if rc := reg.Exec(q, "SELECT 1"); rc != StatusNoRowMethod {
		t.Errorf("Exec without row method = %d", rc)
	}
	if rc := reg.Close(q); rc != StatusOK || q.Handle != 0 {
		t.Errorf("Close = %d, handle %d", rc, q.Handle)
	}
}

func TestRegistryShutdownReleasesEverything(t *testing.T) {
	reg := NewRegistry(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	reg.InitConnectionClass(ClassOf(&testConn{}))
	reg.InitStatementClass(ClassOf(&testStmt{}))

	c := openConn(t, reg, tempPath(t))
	s := mustPrepare(t, reg, c, "SELECT 1")
	if st := reg.Stats(); st.Connections != 1 || st.Statements != 1 || st.Classes != 2 {
		t.Fatalf("Stats = %+v", st)
	}

	if err := reg.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if st := reg.Stats(); st.Connections != 0 || st.Statements != 0 {
		t.Errorf("Stats after shutdown = %+v", st)
	}
	if got := reg.Step(s); got != codec.StepError {
		t.Errorf("Step after shutdown = %v", got)
	}
	if rc := reg.Open(&testConn{}, tempPath(t), false, true); rc != native.Misuse {
		t.Errorf("Open after shutdown = %d", rc)
	}
}

func TestGlobals(t *testing.T) {
	reg := newTestRegistry(t)
	if reg.Version() == "" {
		t.Errorf("empty version")
	}
	prev := reg.SoftHeapLimit(-1)
	reg.SoftHeapLimit(8 << 20)
	if got := reg.SoftHeapLimit(prev); got != 8<<20 {
		t.Errorf("SoftHeapLimit = %d", got)
	}
	if reg.Sleep(1) < 0 {
		t.Errorf("Sleep returned a negative value")
	}

	c := openConn(t, reg, tempPath(t))
	if got := filepath.Base(reg.FileName(c)); got != "bridge.db" {
		t.Errorf("FileName = %q", got)
	}
	reg.BusyTimeout(c, 50)
}

func TestStatementLifecycleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(Config{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))})
	reg.InitConnectionClass(ClassOf(&testConn{}))
	reg.InitStatementClass(ClassOf(&testStmt{}))
	defer reg.Shutdown()

	c := openConn(t, reg, tempPath(t))
	s := mustPrepare(t, reg, c, "SELECT 1")
	if !reg.IsOpen(c) {
		t.Errorf("IsOpen = false for an open connection")
	}
	reg.Finalize(s)

	out := buf.String()
	for _, msg := range []string{"Database opened", "Statement prepared", "Statement finalized"} {
		if !strings.Contains(out, msg) {
			t.Errorf("log is missing %q", msg)
		}
	}
}
