// Package host executes proxy requests against a database.Database.
package host

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tomyedwab/sqlbridge/database"
	"github.com/tomyedwab/sqlbridge/sqlproxy/types"
)

var (
	ErrStmtNotFound = errors.New("statement not found")
	ErrTxNotFound   = errors.New("transaction not found or already closed")
	ErrTxActive     = errors.New("transaction already active")
)

// SQLHost handles proxy requests for one database connection. It manages
// prepared statements and the connection's single transaction. Requests are
// serialized.
type SQLHost struct {
	db     *database.Database
	logger *slog.Logger

	mu    sync.Mutex
	stmts map[string]*database.Statement
	txID  string
}

// NewSQLHost creates a new SQLHost instance for an open database.
func NewSQLHost(db *database.Database, logger *slog.Logger) *SQLHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLHost{
		db:     db,
		logger: logger,
		stmts:  make(map[string]*database.Statement),
	}
}

// HandleRequest processes a raw request payload and returns a raw response
// payload. Operational failures are encoded in the response.
func (h *SQLHost) HandleRequest(requestPayload []byte) ([]byte, error) {
	var req types.SQLRequest
	if err := json.Unmarshal(requestPayload, &req); err != nil {
		return types.MarshalError(fmt.Sprintf("failed to unmarshal request: %v", err), 0), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var resp any
	var opErr error
	switch req.Command {
	case types.CmdPrepare:
		resp, opErr = h.handlePrepare(&req)
	case types.CmdQuery:
		resp, opErr = h.handleQuery(&req)
	case types.CmdExec:
		resp, opErr = h.handleExec(&req)
	case types.CmdBeginTx:
		resp, opErr = h.handleBeginTx(&req)
	case types.CmdCommit:
		resp, opErr = h.handleCommit(&req)
	case types.CmdRollback:
		resp, opErr = h.handleRollback(&req)
	case types.CmdCloseStmt:
		resp, opErr = h.handleCloseStmt(&req)
	case types.CmdCloseConn:
		resp, opErr = h.handleCloseConn(&req)
	case types.CmdPing:
		resp = types.GeneralResponse{Version: h.db.Version()}
	default:
		opErr = fmt.Errorf("unknown command: %s", req.Command)
	}

	if opErr != nil {
		h.logger.Debug("Proxy request failed", "command", req.Command, "error", opErr)
		code := 0
		var dbErr *database.Error
		if errors.As(opErr, &dbErr) {
			code = dbErr.Code
		}
		return types.MarshalError(opErr.Error(), code), nil
	}
	return json.Marshal(resp)
}

func (h *SQLHost) checkTx(txID string) error {
	if txID != "" && txID != h.txID {
		return fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	return nil
}

func bindArgs(args []types.Arg) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := a.Value()
		if err != nil {
			return nil, err
		}
		if a.Name != "" {
			v = sql.Named(a.Name, v)
		}
		out[i] = v
	}
	return out, nil
}

func (h *SQLHost) handlePrepare(req *types.SQLRequest) (types.GeneralResponse, error) {
	if err := h.checkTx(req.TxID); err != nil {
		return types.GeneralResponse{}, err
	}
	st, err := h.db.Prepare(req.SQL)
	if err != nil {
		return types.GeneralResponse{}, fmt.Errorf("prepare failed: %w", err)
	}
	stmtID := uuid.NewString()
	h.stmts[stmtID] = st
	return types.GeneralResponse{StmtID: stmtID, NumInput: st.NumInput()}, nil
}

// statement returns the request's prepared statement, or a temporary one for
// direct SQL which the caller must close.
func (h *SQLHost) statement(req *types.SQLRequest) (st *database.Statement, temporary bool, err error) {
	if err := h.checkTx(req.TxID); err != nil {
		return nil, false, err
	}
	if req.StmtID != "" {
		st, ok := h.stmts[req.StmtID]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrStmtNotFound, req.StmtID)
		}
		return st, false, nil
	}
	st, err = h.db.Prepare(req.SQL)
	if err != nil {
		return nil, false, fmt.Errorf("prepare failed: %w", err)
	}
	return st, true, nil
}

func (h *SQLHost) handleExec(req *types.SQLRequest) (types.ExecResponse, error) {
	st, temporary, err := h.statement(req)
	if err != nil {
		return types.ExecResponse{}, err
	}
	if temporary {
		defer st.Close()
	}
	args, err := bindArgs(req.Args)
	if err != nil {
		return types.ExecResponse{}, err
	}
	res, err := st.Exec(args...)
	if err != nil {
		return types.ExecResponse{}, fmt.Errorf("exec failed: %w", err)
	}
	return types.ExecResponse{LastInsertID: res.LastInsertID, RowsAffected: res.RowsAffected}, nil
}

func (h *SQLHost) handleQuery(req *types.SQLRequest) (types.QueryResponse, error) {
	st, temporary, err := h.statement(req)
	if err != nil {
		return types.QueryResponse{}, err
	}
	if temporary {
		defer st.Close()
	}
	args, err := bindArgs(req.Args)
	if err != nil {
		return types.QueryResponse{}, err
	}

	resp := types.QueryResponse{Columns: st.Columns(), Rows: [][]types.Cell{}}
	for row, err := range st.Query(args...) {
		if err != nil {
			return types.QueryResponse{}, fmt.Errorf("query failed: %w", err)
		}
		cells := make([]types.Cell, len(row))
		for i, v := range row {
			cells[i] = types.CellOf(v)
		}
		resp.Rows = append(resp.Rows, cells)
	}
	return resp, nil
}

func (h *SQLHost) begin(mode string) (string, error) {
	if h.txID != "" {
		return "", fmt.Errorf("%w: %s", ErrTxActive, h.txID)
	}
	m := database.Deferred
	switch mode {
	case "", "DEFERRED":
	case "IMMEDIATE":
		m = database.Immediate
	case "EXCLUSIVE":
		m = database.Exclusive
	default:
		return "", fmt.Errorf("unknown transaction mode: %s", mode)
	}
	if err := h.db.Begin(m); err != nil {
		return "", fmt.Errorf("begin transaction failed: %w", err)
	}
	h.txID = uuid.NewString()
	return h.txID, nil
}

// BeginTx starts a transaction on behalf of a guest and returns its ID. The
// guest joins it by opening the driver with the ID as its DSN.
func (h *SQLHost) BeginTx(mode database.TxMode) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.begin(mode.String())
}

func (h *SQLHost) handleBeginTx(req *types.SQLRequest) (types.GeneralResponse, error) {
	txID, err := h.begin(req.TxMode)
	if err != nil {
		return types.GeneralResponse{}, err
	}
	return types.GeneralResponse{TxID: txID}, nil
}

func (h *SQLHost) endTx(txID string, end func() error, what string) (types.GeneralResponse, error) {
	if txID == "" || txID != h.txID {
		return types.GeneralResponse{}, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	h.txID = ""
	if err := end(); err != nil {
		return types.GeneralResponse{}, fmt.Errorf("%s failed: %w", what, err)
	}
	return types.GeneralResponse{}, nil
}

func (h *SQLHost) handleCommit(req *types.SQLRequest) (types.GeneralResponse, error) {
	return h.endTx(req.TxID, h.db.Commit, "commit")
}

func (h *SQLHost) handleRollback(req *types.SQLRequest) (types.GeneralResponse, error) {
	return h.endTx(req.TxID, h.db.Rollback, "rollback")
}

// handleCloseStmt is idempotent: closing an unknown statement succeeds.
func (h *SQLHost) handleCloseStmt(req *types.SQLRequest) (types.GeneralResponse, error) {
	st, ok := h.stmts[req.StmtID]
	if !ok {
		return types.GeneralResponse{}, nil
	}
	delete(h.stmts, req.StmtID)
	if err := st.Close(); err != nil {
		return types.GeneralResponse{}, fmt.Errorf("close statement failed: %w", err)
	}
	return types.GeneralResponse{}, nil
}

// handleCloseConn resets the host: statements are finalized and a pending
// transaction is rolled back. The database itself stays open.
func (h *SQLHost) handleCloseConn(*types.SQLRequest) (types.GeneralResponse, error) {
	h.reset()
	return types.GeneralResponse{}, nil
}

func (h *SQLHost) reset() {
	for id, st := range h.stmts {
		st.Close()
		delete(h.stmts, id)
	}
	if h.txID != "" {
		if err := h.db.Rollback(); err != nil {
			h.logger.Warn("Rollback on reset failed", "txID", h.txID, "error", err)
		}
		h.txID = ""
	}
}

// Close releases everything the host holds on the database.
func (h *SQLHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
}
