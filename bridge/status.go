package bridge

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/sqlbridge/native"
)

// StatusOK is the neutral success status.
const StatusOK = native.OK

// Setup and handle-state sentinels. They are negative so they never collide
// with the engine's own result codes.
const (
	StatusNotOpen            = -1
	StatusNoRegistry         = -2
	StatusClassNotRegistered = -3
	StatusNoHandleField      = -4
	StatusNoErrorMethod      = -5
	StatusNoDetailMethod     = -6
	StatusNoRowMethod        = -7
)

// Messages reported through the owner's error method for handle-state
// failures.
const (
	MsgStatementNotOpen = "statement not open"
	MsgDatabaseNotOpen  = "database not open"
	MsgNoOpenDatabase   = "No open database"
	MsgAlreadyOpen      = "database already open"
	MsgNoCurrentRow     = "no current row"
	MsgColumnRange      = "column index out of range"
	MsgUnsupportedType  = "unsupported column type"
	MsgExecInProgress   = "exec in progress"
)

var (
	ErrNotOpen            = errors.New("bridge: handle not open")
	ErrNoRegistry         = errors.New("bridge: registry not initialized")
	ErrClassNotRegistered = errors.New("bridge: owner class not registered")
	ErrNoHandleField      = errors.New("bridge: handle field not found")
	ErrNoErrorMethod      = errors.New("bridge: error method not found")
	ErrNoDetailMethod     = errors.New("bridge: detailed error method not found")
	ErrNoRowMethod        = errors.New("bridge: row method not found")
	ErrRegistryClosed     = errors.New("bridge: registry closed")
)

// StatusError maps a sentinel status to its error. Engine result codes map
// to nil; callers learn about those through the owner's error method.
func StatusError(status int) error {
	switch status {
	case StatusNotOpen:
		return ErrNotOpen
	case StatusNoRegistry:
		return ErrNoRegistry
	case StatusClassNotRegistered:
		return ErrClassNotRegistered
	case StatusNoHandleField:
		return ErrNoHandleField
	case StatusNoErrorMethod:
		return ErrNoErrorMethod
	case StatusNoDetailMethod:
		return ErrNoDetailMethod
	case StatusNoRowMethod:
		return ErrNoRowMethod
	}
	return nil
}

// Error is an engine failure surfaced by the pull-based APIs, which have no
// owner to report through.
type Error struct {
	API     string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: %s failed (%d): %s", e.API, e.Code, e.Message)
}
