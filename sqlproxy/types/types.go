// Package types holds the JSON envelopes exchanged between the proxy driver
// and the host. Values carry their codec tag so integers, floats, text and
// blobs survive the trip without JSON's number and string ambiguity.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tomyedwab/sqlbridge/codec"
)

const (
	CmdPrepare   = "prepare"
	CmdQuery     = "query"
	CmdExec      = "exec"
	CmdBeginTx   = "begin_tx"
	CmdCommit    = "commit"
	CmdRollback  = "rollback"
	CmdCloseStmt = "close_stmt"
	CmdCloseConn = "close_conn"
	CmdPing      = "ping"
)

// SQLRequest defines the structure for requests sent to the host.
type SQLRequest struct {
	Command string `json:"command"`
	SQL     string `json:"sql,omitempty"`
	Args    []Arg  `json:"args,omitempty"`
	StmtID  string `json:"stmt_id,omitempty"`
	TxID    string `json:"tx_id,omitempty"`
	// TxMode is "DEFERRED", "IMMEDIATE" or "EXCLUSIVE" for begin_tx.
	TxMode string `json:"tx_mode,omitempty"`
}

// Failure is the error part shared by every response.
type Failure struct {
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

func (f Failure) Failed() (string, int, bool) { return f.Error, f.Code, f.Error != "" }

// GeneralResponse is used for commands that don't return rows (prepare,
// begin_tx, commit, rollback, close).
type GeneralResponse struct {
	StmtID   string `json:"stmt_id,omitempty"`
	TxID     string `json:"tx_id,omitempty"`
	NumInput int    `json:"num_input,omitempty"`
	Version  string `json:"version,omitempty"`
	Failure
}

type QueryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
	Failure
}

type ExecResponse struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
	Failure
}

// Arg is one bound parameter. Name, when set, binds by parameter name.
type Arg struct {
	Type   codec.BindType `json:"t"`
	Name   string         `json:"n,omitempty"`
	Text   string         `json:"s,omitempty"`
	Int    int64          `json:"i,omitempty"`
	Double float64        `json:"f,omitempty"`
	Blob   []byte         `json:"b,omitempty"`
}

// ArgOf encodes a driver value. time.Time travels as RFC3339Nano text.
func ArgOf(name string, v any) (Arg, error) {
	a := Arg{Name: name}
	switch v := v.(type) {
	case nil:
		a.Type = codec.BindNull
	case string:
		a.Type, a.Text = codec.BindText, v
	case []byte:
		if v == nil {
			a.Type = codec.BindNull
		} else {
			a.Type, a.Blob = codec.BindBlob, v
		}
	case int64:
		a.Type, a.Int = codec.BindInt64, v
	case int:
		a.Type, a.Int = codec.BindInt64, int64(v)
	case bool:
		a.Type = codec.BindInt
		if v {
			a.Int = 1
		}
	case float64:
		a.Type, a.Double = codec.BindDouble, v
	case time.Time:
		a.Type, a.Text = codec.BindText, v.Format(time.RFC3339Nano)
	default:
		return Arg{}, fmt.Errorf("sqlproxy: unsupported argument type %T", v)
	}
	return a, nil
}

// Value decodes the argument for binding.
func (a Arg) Value() (any, error) {
	switch a.Type {
	case codec.BindNull:
		return nil, nil
	case codec.BindText:
		return a.Text, nil
	case codec.BindInt, codec.BindInt64:
		return a.Int, nil
	case codec.BindDouble:
		return a.Double, nil
	case codec.BindBlob:
		if a.Blob == nil {
			return []byte{}, nil
		}
		return a.Blob, nil
	}
	return nil, fmt.Errorf("sqlproxy: argument %w: %d", codec.ErrUnknownTag, a.Type)
}

// Cell is one value of a result row.
type Cell struct {
	Type   codec.ColumnType `json:"t"`
	Text   string           `json:"s,omitempty"`
	Int    int64            `json:"i,omitempty"`
	Double float64          `json:"f,omitempty"`
	Blob   []byte           `json:"b,omitempty"`
}

// CellOf encodes a decoded column value (nil, string, int64, float64 or
// []byte).
func CellOf(v any) Cell {
	switch v := v.(type) {
	case string:
		return Cell{Type: codec.ColumnText, Text: v}
	case int64:
		return Cell{Type: codec.ColumnInteger, Int: v}
	case float64:
		return Cell{Type: codec.ColumnFloat, Double: v}
	case []byte:
		return Cell{Type: codec.ColumnBlob, Blob: v}
	}
	return Cell{Type: codec.ColumnNull}
}

func (c Cell) Value() any {
	switch c.Type {
	case codec.ColumnText:
		return c.Text
	case codec.ColumnInteger:
		return c.Int
	case codec.ColumnFloat:
		return c.Double
	case codec.ColumnBlob:
		if c.Blob == nil {
			return []byte{}
		}
		return c.Blob
	}
	return nil
}

// MarshalError encodes a failure response for any command.
func MarshalError(msg string, code int) []byte {
	payload, err := json.Marshal(GeneralResponse{Failure: Failure{Error: msg, Code: code}})
	if err != nil {
		return []byte(`{"error":"sqlproxy: failed to marshal error response"}`)
	}
	return payload
}
