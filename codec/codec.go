// Package codec holds the small-integer tag tables shared by both sides of
// the bridge. The values are part of the wire contract and never change
// within a Version.
package codec

import (
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite/lib"
)

// Version identifies the tag tables below.
const Version = 1

// ErrUnknownTag is returned when a tag outside the table is decoded.
var ErrUnknownTag = errors.New("codec: unknown tag")

// StepResult is the outcome of advancing a statement by one row.
type StepResult int

const (
	StepError StepResult = 1
	StepDone  StepResult = 2
	StepRow   StepResult = 3
	StepBusy  StepResult = 4
)

func (s StepResult) String() string {
	switch s {
	case StepError:
		return "error"
	case StepDone:
		return "done"
	case StepRow:
		return "row"
	case StepBusy:
		return "busy"
	}
	return fmt.Sprintf("StepResult(%d)", int(s))
}

// EncodeStep maps a native step status to its tag. Anything that is not a
// row, completion or busy status is an error.
func EncodeStep(rc int) StepResult {
	switch rc {
	case sqlite3.SQLITE_DONE:
		return StepDone
	case sqlite3.SQLITE_ROW:
		return StepRow
	case sqlite3.SQLITE_BUSY:
		return StepBusy
	}
	return StepError
}

// DecodeStep validates a step tag received from the other side.
func DecodeStep(tag int) (StepResult, error) {
	if tag < int(StepError) || tag > int(StepBusy) {
		return 0, fmt.Errorf("%w: step %d", ErrUnknownTag, tag)
	}
	return StepResult(tag), nil
}

// ColumnType is the dynamic type of a value in the current row.
type ColumnType int

const (
	ColumnNull    ColumnType = 1
	ColumnText    ColumnType = 2
	ColumnInteger ColumnType = 3
	ColumnFloat   ColumnType = 4
	ColumnBlob    ColumnType = 5
)

func (c ColumnType) String() string {
	switch c {
	case ColumnNull:
		return "null"
	case ColumnText:
		return "text"
	case ColumnInteger:
		return "integer"
	case ColumnFloat:
		return "float"
	case ColumnBlob:
		return "blob"
	}
	return fmt.Sprintf("ColumnType(%d)", int(c))
}

// EncodeColumnType maps one of the engine's fundamental types to its tag.
// Unknown native types are reported, never coerced.
func EncodeColumnType(native int) (ColumnType, bool) {
	switch native {
	case sqlite3.SQLITE_NULL:
		return ColumnNull, true
	case sqlite3.SQLITE_TEXT:
		return ColumnText, true
	case sqlite3.SQLITE_INTEGER:
		return ColumnInteger, true
	case sqlite3.SQLITE_FLOAT:
		return ColumnFloat, true
	case sqlite3.SQLITE_BLOB:
		return ColumnBlob, true
	}
	return 0, false
}

// DecodeColumnType validates a column-type tag.
func DecodeColumnType(tag int) (ColumnType, error) {
	if tag < int(ColumnNull) || tag > int(ColumnBlob) {
		return 0, fmt.Errorf("%w: column type %d", ErrUnknownTag, tag)
	}
	return ColumnType(tag), nil
}

// BindType tags a parameter binding.
type BindType int

const (
	BindNull   BindType = 1
	BindText   BindType = 2
	BindInt    BindType = 3
	BindInt64  BindType = 4
	BindDouble BindType = 5
	BindBlob   BindType = 6
)

func (b BindType) String() string {
	switch b {
	case BindNull:
		return "null"
	case BindText:
		return "text"
	case BindInt:
		return "int"
	case BindInt64:
		return "int64"
	case BindDouble:
		return "double"
	case BindBlob:
		return "blob"
	}
	return fmt.Sprintf("BindType(%d)", int(b))
}

// DecodeBindType validates a binding tag.
func DecodeBindType(tag int) (BindType, error) {
	if tag < int(BindNull) || tag > int(BindBlob) {
		return 0, fmt.Errorf("%w: bind type %d", ErrUnknownTag, tag)
	}
	return BindType(tag), nil
}

// BindTypeFor returns the binding tag that carries values of column type c
// without loss.
func BindTypeFor(c ColumnType) BindType {
	switch c {
	case ColumnText:
		return BindText
	case ColumnInteger:
		return BindInt64
	case ColumnFloat:
		return BindDouble
	case ColumnBlob:
		return BindBlob
	}
	return BindNull
}
