package bridge

import (
	"iter"

	"github.com/tomyedwab/sqlbridge/native"
)

// Cursor pulls the result rows of a script one at a time, in the same
// string form Exec hands to a row method. Stopping early is just not
// calling Next again; Close releases the statement in flight.
type Cursor struct {
	r    *Registry
	conn Handle
	rest string
	stmt Handle

	columns []string
	values  []string
	err     error
	done    bool
}

// Query starts a Cursor over every statement in sql on conn.
func (r *Registry) Query(conn Handle, sql string) *Cursor {
	c := &Cursor{r: r, conn: conn, rest: sql}
	if r == nil {
		c.err = ErrNoRegistry
		c.done = true
	}
	return c
}

// Next advances to the next row, preparing the following statement of the
// script as each one completes.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	for {
		if c.stmt == 0 {
			if !c.prepareNext() {
				c.done = true
				return false
			}
			continue
		}
		s, ok := c.r.arena.get(c.stmt, kindStmt)
		if !ok {
			c.fail(&Error{API: "step", Code: StatusNotOpen, Message: MsgStatementNotOpen})
			return false
		}
		switch rc := native.Step(s.tls, s.stmt); rc {
		case native.Row:
			c.values = make([]string, len(c.columns))
			for i := range c.values {
				c.values[i] = native.ColumnText(s.tls, s.stmt, i)
			}
			return true
		case native.Done:
			c.release()
		default:
			c.fail(&Error{API: "step", Code: rc, Message: native.ErrMsg(s.tls, s.db)})
			return false
		}
	}
}

func (c *Cursor) prepareNext() bool {
	for c.rest != "" {
		cs, ok := c.r.arena.get(c.conn, kindConn)
		if !ok {
			c.err = &Error{API: "prepare_v2", Code: StatusNotOpen, Message: MsgNoOpenDatabase}
			return false
		}
		stmt, tail, rc := native.PrepareTail16(cs.tls, cs.db, c.rest)
		if rc != native.OK {
			c.err = &Error{API: "prepare_v2", Code: rc, Message: native.ErrMsg(cs.tls, cs.db)}
			return false
		}
		if tail == c.rest && stmt == 0 {
			return false
		}
		c.rest = tail
		if stmt == 0 {
			continue
		}
		c.stmt = c.r.arena.alloc(slot{kind: kindStmt, tls: cs.tls, db: cs.db, stmt: stmt, conn: c.conn})
		c.columns = make([]string, native.ColumnCount(cs.tls, stmt))
		for i := range c.columns {
			c.columns[i] = native.ColumnName(cs.tls, stmt, i)
		}
		return true
	}
	return false
}

func (c *Cursor) fail(err error) {
	c.err = err
	c.done = true
	c.release()
}

func (c *Cursor) release() {
	if c.stmt == 0 {
		return
	}
	if s, ok := c.r.arena.release(c.stmt, kindStmt); ok {
		finalize(s)
	}
	c.stmt = 0
}

// Columns names the columns of the statement producing the current row.
func (c *Cursor) Columns() []string { return c.columns }

// Values is the current row. NULL reads as "".
func (c *Cursor) Values() []string { return c.values }

// Err is the first failure met by Next.
func (c *Cursor) Err() error { return c.err }

// Close finalizes the statement in flight. It is safe to call repeatedly.
func (c *Cursor) Close() error {
	c.done = true
	if c.r != nil {
		c.release()
	}
	return nil
}

// All iterates the remaining rows and closes the cursor when done. A
// failure is yielded once as the last element.
func (c *Cursor) All() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.Values(), nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}
