package database

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/native"
)

var (
	ErrBusy              = errors.New("database: busy")
	ErrEmptyDatabase     = errors.New("database: database is empty and CreateIfMissing is false")
	ErrIntegrity         = errors.New("database: integrity check failed")
	ErrActiveTransaction = errors.New("database: cannot close with an active transaction")
	ErrNoRows            = errors.New("database: no rows in result set")
	ErrUnsupportedArg    = errors.New("database: unsupported argument type")
	ErrInvalidVersion    = errors.New("database: user version must be >= 1")
)

// Error is a failure reported by the engine for one bridge call.
type Error struct {
	API     string
	Code    int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("database: %s (%d): %s: %s", e.API, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("database: %s (%d): %s", e.API, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrBusy) and errors.Is(err, bridge.ErrNotOpen)
// match engine failures.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBusy:
		return e.Code == native.Busy
	case bridge.ErrNotOpen:
		return e.Code == bridge.StatusNotOpen
	}
	return false
}

// reporter collects what the bridge reports on an owner until the status
// of the call is checked.
type reporter struct {
	last *Error
}

func (r *reporter) ReportError(api string, code int, message string) {
	r.last = &Error{API: api, Code: code, Message: message}
}

// check turns a bridge status into an error, preferring whatever the bridge
// reported during the call.
func (r *reporter) check(api string, status int) error {
	last := r.last
	r.last = nil
	if status == bridge.StatusOK {
		return nil
	}
	if last != nil {
		return last
	}
	if err := bridge.StatusError(status); err != nil {
		return fmt.Errorf("database: %s: %w", api, err)
	}
	return &Error{API: api, Code: status, Message: "engine error"}
}
