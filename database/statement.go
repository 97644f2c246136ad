package database

import (
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/codec"
)

// Statement is a prepared statement on a Database.
type Statement struct {
	Handle bridge.Handle `bridge:"handle"`
	reporter

	db      *Database
	columns []string
}

// Result summarizes a statement run to completion.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

func (st *Statement) ReportErrorDetail(api string, code int, message, detail string) {
	st.last = &Error{API: api, Code: code, Message: message, Detail: detail}
}

// Prepare compiles the first statement in query. The statement is finalized
// by Close or, at the latest, by Database.Close.
func (db *Database) Prepare(query string) (*Statement, error) {
	st := &Statement{db: db}
	if rc := db.reg.Prepare(st, db.Handle, query); rc != bridge.StatusOK {
		return nil, st.check("prepare", rc)
	}
	db.stmts[st] = struct{}{}
	return st, nil
}

// Close finalizes the statement. Closing twice is a no-op.
func (st *Statement) Close() error {
	if st.Handle == 0 {
		return nil
	}
	delete(st.db.stmts, st)
	// Finalize repeats the status of the last failed step, which Step has
	// already returned.
	st.db.reg.Finalize(st)
	st.last = nil
	return nil
}

// Bind binds args by position: the nth argument binds parameter n.
// sql.NamedArg values bind to the parameter of that name instead.
func (st *Statement) Bind(args ...any) error {
	for i, arg := range args {
		idx := i + 1
		if named, ok := arg.(sql.NamedArg); ok {
			idx = st.namedIndex(named.Name)
			if idx == 0 {
				return fmt.Errorf("database: no parameter named %q", named.Name)
			}
			arg = named.Value
		}
		b, err := binding(idx, arg)
		if err != nil {
			return err
		}
		if rc := st.db.reg.Bind(st, b); rc != bridge.StatusOK {
			return st.check("bind", rc)
		}
	}
	return nil
}

func (st *Statement) namedIndex(name string) int {
	for _, prefix := range []string{":", "@", "$"} {
		if i := st.db.reg.BindParameterIndex(st, prefix+name); i > 0 {
			return i
		}
	}
	return 0
}

// binding converts a Go value to its bridge form.
func binding(i int, v any) (bridge.Binding, error) {
	switch v := v.(type) {
	case nil:
		return bridge.NullAt(i), nil
	case string:
		return bridge.TextAt(i, v), nil
	case []byte:
		if v == nil {
			return bridge.NullAt(i), nil
		}
		return bridge.BlobAt(i, v), nil
	case int:
		return bridge.Int64At(i, int64(v)), nil
	case int32:
		return bridge.IntAt(i, v), nil
	case int64:
		return bridge.Int64At(i, v), nil
	case uint32:
		return bridge.Int64At(i, int64(v)), nil
	case bool:
		if v {
			return bridge.IntAt(i, 1), nil
		}
		return bridge.IntAt(i, 0), nil
	case float32:
		return bridge.DoubleAt(i, float64(v)), nil
	case float64:
		return bridge.DoubleAt(i, v), nil
	case time.Time:
		return bridge.TextAt(i, v.Format(time.RFC3339Nano)), nil
	case bridge.Binding:
		v.Index = i
		return v, nil
	}
	return bridge.Binding{}, fmt.Errorf("%w: %T at parameter %d", ErrUnsupportedArg, v, i)
}

// Step advances to the next row and reports whether one is available.
// ErrBusy means the database was locked; the statement may be stepped
// again.
func (st *Statement) Step() (bool, error) {
	switch st.db.reg.Step(st) {
	case codec.StepRow:
		return true, nil
	case codec.StepDone:
		return false, nil
	case codec.StepBusy:
		return false, ErrBusy
	}
	return false, st.check("step", bridge.StatusNotOpen)
}

// Reset rewinds the statement and clears its bindings.
func (st *Statement) Reset() error {
	if rc := st.db.reg.Reset(st); rc == bridge.StatusNotOpen {
		return st.check("reset", rc)
	}
	st.last = nil
	if rc := st.db.reg.ClearBindings(st); rc != bridge.StatusOK {
		return st.check("clear_bindings", rc)
	}
	return nil
}

// Columns are the result column names.
func (st *Statement) Columns() []string {
	if st.columns == nil {
		n := st.db.reg.ColumnCount(st)
		st.columns = make([]string, 0, max(n, 0))
		for i := 0; i < n; i++ {
			st.columns = append(st.columns, st.db.reg.ColumnName(st, i))
		}
	}
	return st.columns
}

// DeclaredTypes are the declared types of the result columns, "" for
// expressions.
func (st *Statement) DeclaredTypes() []string {
	n := st.db.reg.ColumnCount(st)
	types := make([]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		types = append(types, st.db.reg.ColumnDeclaredType(st, i))
	}
	return types
}

// Values decodes the current row as nil, string, int64, float64 or []byte.
func (st *Statement) Values() []any {
	cols := st.db.reg.Columns(st)
	values := make([]any, len(cols))
	for i, c := range cols {
		values[i] = c.Any()
	}
	return values
}

// Scan copies the current row into dest.
func (st *Statement) Scan(dest ...any) error {
	cols := st.db.reg.Columns(st)
	if cols == nil {
		return fmt.Errorf("database: scan: %s", bridge.MsgNoCurrentRow)
	}
	if len(dest) != len(cols) {
		return fmt.Errorf("database: scan: expected %d destinations, got %d", len(cols), len(dest))
	}
	for i, c := range cols {
		if err := assign(dest[i], c); err != nil {
			return fmt.Errorf("database: scan column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest any, c bridge.ColumnValue) error {
	switch d := dest.(type) {
	case *string:
		*d = c.String()
	case *int64:
		*d = integer(c)
	case *int:
		*d = int(integer(c))
	case *bool:
		*d = integer(c) != 0
	case *float64:
		if c.Type == codec.ColumnInteger {
			*d = float64(c.Int)
		} else {
			*d = c.Double
		}
	case *[]byte:
		if c.Type == codec.ColumnBlob {
			*d = c.Blob
		} else if c.Type != codec.ColumnNull {
			*d = []byte(c.String())
		} else {
			*d = nil
		}
	case *sql.NullString:
		d.Valid = c.Type != codec.ColumnNull
		d.String = c.String()
	case *any:
		*d = c.Any()
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedArg, dest)
	}
	return nil
}

func integer(c bridge.ColumnValue) int64 {
	if c.Type == codec.ColumnFloat {
		return int64(c.Double)
	}
	return c.Int
}

// Rows steps the statement to completion. Breaking out of the loop leaves
// the statement positioned on the last row seen.
func (st *Statement) Rows() iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		for {
			ok, err := st.Step()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(st.Values(), nil) {
				return
			}
		}
	}
}

// Exec resets the statement, binds args and steps it until done.
func (st *Statement) Exec(args ...any) (Result, error) {
	if err := st.Reset(); err != nil {
		return Result{}, err
	}
	if err := st.Bind(args...); err != nil {
		return Result{}, err
	}
	for {
		ok, err := st.Step()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
	}
	return Result{
		LastInsertID: st.db.LastInsertRowID(),
		RowsAffected: int64(st.db.Changes()),
	}, nil
}

// Query resets the statement, binds args and iterates its rows.
func (st *Statement) Query(args ...any) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		if err := st.Reset(); err != nil {
			yield(nil, err)
			return
		}
		if err := st.Bind(args...); err != nil {
			yield(nil, err)
			return
		}
		st.Rows()(yield)
	}
}

func (st *Statement) SQL() string         { return st.db.reg.SQL(st) }
func (st *Statement) ExpandedSQL() string { return st.db.reg.ExpandedSQL(st) }
func (st *Statement) ReadOnly() bool      { return st.db.reg.IsReadOnly(st) }
func (st *Statement) Busy() bool          { return st.db.reg.IsBusy(st) }
func (st *Statement) NumInput() int       { return st.db.reg.ParameterCount(st) }

// Run prepares query, executes it with args and finalizes it.
func (db *Database) Run(query string, args ...any) (Result, error) {
	st, err := db.Prepare(query)
	if err != nil {
		return Result{}, err
	}
	defer st.Close()
	return st.Exec(args...)
}

// Query prepares query and iterates its rows, finalizing the statement when
// the loop ends.
func (db *Database) Query(query string, args ...any) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		st, err := db.Prepare(query)
		if err != nil {
			yield(nil, err)
			return
		}
		defer st.Close()
		st.Query(args...)(yield)
	}
}

// QueryRow returns the first row of query, or ErrNoRows.
func (db *Database) QueryRow(query string, args ...any) ([]any, error) {
	for row, err := range db.Query(query, args...) {
		return row, err
	}
	return nil, ErrNoRows
}
