// Package driver implements database/sql/driver on top of the proxy
// protocol in sqlproxy/types.
//
// Every call is serialized to JSON and handed to a host function, which
// executes it against a bridged database and returns the JSON response.
// Inside a WebAssembly guest the host function is an import; see
// wasi/guest. Elsewhere, NewConnector takes the function directly:
//
//	db := sqlx.NewDb(sql.OpenDB(driver.NewConnector(host.HandleRequest)), "sqlproxy")
//
// The host serves a single connection, so pools should be limited with
// SetMaxOpenConns(1). A non-empty DSN names a transaction the host already started; Begin
// then joins it instead of starting a new one.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

// HostFunc sends a request payload to the host and returns its response.
type HostFunc func(requestPayload []byte) (responsePayload []byte, err error)

// CallHost is the handler used by connections opened through the registered
// "sqlproxy" driver name.
var CallHost HostFunc

// SetHostHandler sets the function used to proxy queries to the host. It
// must be called before sql.Open("sqlproxy", ...).
func SetHostHandler(handler HostFunc) {
	CallHost = handler
}

const DriverName = "sqlproxy"

var ErrNoHost = errors.New("sqlproxy: host handler is not set")

func init() {
	sql.Register(DriverName, &Driver{})
}

// HostError is a failure reported by the host.
type HostError struct {
	Command string
	Code    int
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("sqlproxy: host %s error: %s", e.Command, e.Message)
}

// Driver is the SQL driver for the proxy.
type Driver struct{}

// Open returns a new connection using CallHost. name, if non-empty, is a
// transaction ID passed from the host environment.
func (d *Driver) Open(name string) (driver.Conn, error) {
	if CallHost == nil {
		return nil, ErrNoHost
	}
	return &Conn{call: CallHost, HostTxID: name}, nil
}

// Connector opens connections through a fixed host function.
type Connector struct {
	call     HostFunc
	hostTxID string
}

func NewConnector(call HostFunc) *Connector {
	return &Connector{call: call}
}

// WithHostTx returns a connector whose connections join the host-started
// transaction txID.
func (c *Connector) WithHostTx(txID string) *Connector {
	return &Connector{call: c.call, hostTxID: txID}
}

func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	if c.call == nil {
		return nil, ErrNoHost
	}
	return &Conn{call: c.call, HostTxID: c.hostTxID}, nil
}

func (c *Connector) Driver() driver.Driver { return &Driver{} }

type failer interface {
	Failed() (string, int, bool)
}

// Conn implements the driver.Conn interface.
type Conn struct {
	call HostFunc
	// HostTxID is a transaction initiated by the host and passed via DSN.
	HostTxID    string
	currentTxID string
}

// roundTrip sends req and decodes the response into resp.
func (c *Conn) roundTrip(req types.SQLRequest, resp failer) error {
	reqPayload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlproxy: failed to marshal %s request: %w", req.Command, err)
	}
	respPayload, err := c.call(reqPayload)
	if err != nil {
		return fmt.Errorf("sqlproxy: CallHost for %s failed: %w", req.Command, err)
	}
	if err := json.Unmarshal(respPayload, resp); err != nil {
		return fmt.Errorf("sqlproxy: failed to unmarshal %s response: %w", req.Command, err)
	}
	if msg, code, failed := resp.Failed(); failed {
		return &HostError{Command: req.Command, Code: code, Message: msg}
	}
	return nil
}

// Prepare returns a prepared statement, suitable for query or execution.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	var resp types.GeneralResponse
	if err := c.roundTrip(types.SQLRequest{Command: types.CmdPrepare, SQL: query, TxID: c.currentTxID}, &resp); err != nil {
		return nil, err
	}
	if resp.StmtID == "" {
		return nil, fmt.Errorf("sqlproxy: host did not return a StmtID for prepare")
	}
	return &Stmt{conn: c, query: query, stmtID: resp.StmtID, numInput: resp.NumInput}, nil
}

// Close resets the host's statements and pending transaction.
func (c *Conn) Close() error {
	return c.roundTrip(types.SQLRequest{Command: types.CmdCloseConn}, &types.GeneralResponse{})
}

// Ping checks that the host answers.
func (c *Conn) Ping(context.Context) error {
	return c.roundTrip(types.SQLRequest{Command: types.CmdPing}, &types.GeneralResponse{})
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx maps sql.LevelSerializable to an IMMEDIATE transaction; every
// other isolation level uses DEFERRED.
func (c *Conn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.currentTxID != "" {
		return nil, fmt.Errorf("sqlproxy: transaction already active on this connection (TxID: %s)", c.currentTxID)
	}
	if c.HostTxID != "" {
		c.currentTxID = c.HostTxID
		return &Tx{conn: c, txID: c.HostTxID, hostOwned: true}, nil
	}

	mode := "DEFERRED"
	if sql.IsolationLevel(opts.Isolation) == sql.LevelSerializable {
		mode = "IMMEDIATE"
	}
	var resp types.GeneralResponse
	if err := c.roundTrip(types.SQLRequest{Command: types.CmdBeginTx, TxMode: mode}, &resp); err != nil {
		return nil, err
	}
	if resp.TxID == "" {
		return nil, fmt.Errorf("sqlproxy: host did not return a transaction ID for begin_tx")
	}
	c.currentTxID = resp.TxID
	return &Tx{conn: c, txID: resp.TxID}, nil
}

// Stmt implements driver.Stmt and the context variants that carry named
// arguments.
type Stmt struct {
	conn     *Conn
	query    string
	stmtID   string
	numInput int
}

func (s *Stmt) Close() error {
	if s.stmtID == "" {
		return nil
	}
	err := s.conn.roundTrip(types.SQLRequest{Command: types.CmdCloseStmt, StmtID: s.stmtID}, &types.GeneralResponse{})
	s.stmtID = ""
	return err
}

// NumInput returns the number of parameters reported by the host.
func (s *Stmt) NumInput() int {
	return s.numInput
}

func encodeArgs(args []driver.NamedValue) ([]types.Arg, error) {
	out := make([]types.Arg, len(args))
	for i, nv := range args {
		a, err := types.ArgOf(nv.Name, nv.Value)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func (s *Stmt) request(command string, args []driver.NamedValue) (types.SQLRequest, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return types.SQLRequest{}, err
	}
	return types.SQLRequest{Command: command, StmtID: s.stmtID, TxID: s.conn.currentTxID, Args: encoded}, nil
}

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}

func (s *Stmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	req, err := s.request(types.CmdExec, args)
	if err != nil {
		return nil, err
	}
	var resp types.ExecResponse
	if err := s.conn.roundTrip(req, &resp); err != nil {
		return nil, err
	}
	return &sqlProxyResult{lastInsertID: resp.LastInsertID, rowsAffected: resp.RowsAffected}, nil
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}

func (s *Stmt) QueryContext(_ context.Context, args []driver.NamedValue) (driver.Rows, error) {
	req, err := s.request(types.CmdQuery, args)
	if err != nil {
		return nil, err
	}
	var resp types.QueryResponse
	if err := s.conn.roundTrip(req, &resp); err != nil {
		return nil, err
	}
	return &sqlProxyRows{columns: resp.Columns, data: resp.Rows}, nil
}

// Tx implements the driver.Tx interface.
type Tx struct {
	conn      *Conn
	txID      string
	hostOwned bool
}

func (t *Tx) end(command string) error {
	if t.txID == "" {
		return fmt.Errorf("sqlproxy: transaction already committed or rolled back")
	}
	txID := t.txID
	// The transaction is over from the client's side whatever the host
	// answers.
	t.conn.currentTxID = ""
	t.txID = ""
	if t.hostOwned {
		// The host started it and decides how it ends.
		return nil
	}
	if err := t.conn.roundTrip(types.SQLRequest{Command: command, TxID: txID}, &types.GeneralResponse{}); err != nil {
		return fmt.Errorf("%w (TxID: %s)", err, txID)
	}
	return nil
}

func (t *Tx) Commit() error   { return t.end(types.CmdCommit) }
func (t *Tx) Rollback() error { return t.end(types.CmdRollback) }

type sqlProxyResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r *sqlProxyResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r *sqlProxyResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// sqlProxyRows iterates rows the host returned all at once.
type sqlProxyRows struct {
	columns []string
	data    [][]types.Cell
	next    int
}

func (r *sqlProxyRows) Columns() []string { return r.columns }

func (r *sqlProxyRows) Close() error {
	r.data = nil
	r.next = 0
	return nil
}

func (r *sqlProxyRows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.next]
	if len(row) != len(dest) {
		return fmt.Errorf("sqlproxy: column count mismatch. Expected %d, got %d", len(dest), len(row))
	}
	for i, cell := range row {
		dest[i] = cell.Value()
	}
	r.next++
	return nil
}

var (
	_ driver.Connector        = (*Connector)(nil)
	_ driver.ConnBeginTx      = (*Conn)(nil)
	_ driver.Pinger           = (*Conn)(nil)
	_ driver.StmtExecContext  = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
)
