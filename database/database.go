// Package database is the caller side of the bridge: Database and Statement
// own native handles and turn what the bridge reports into Go errors.
package database

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/native"
)

const (
	MemoryPath           = ":memory:"
	DefaultBusyTimeout   = time.Second
	DefaultSoftHeapLimit = 4 << 20

	catalogTable    = "sqlite_master"
	closeRetries    = 3
	closeRetryDelay = 250 * time.Millisecond
)

// Options controls how Open prepares a connection.
type Options struct {
	ReadOnly        bool
	CreateIfMissing bool
	// BusyTimeout defaults to DefaultBusyTimeout; a negative value disables
	// retrying locked tables.
	BusyTimeout time.Duration
	// SoftHeapLimit defaults to DefaultSoftHeapLimit. It is process-wide.
	SoftHeapLimit  int64
	IntegrityCheck bool
	// UserVersion, when positive, is the schema version the caller expects.
	// Upgrade runs when the stored version differs and returns true to
	// record UserVersion.
	UserVersion int
	Upgrade     func(db *Database, from, to int) (bool, error)
	Logger      *slog.Logger
}

// Database is an open connection.
type Database struct {
	Handle bridge.Handle `bridge:"handle"`
	reporter

	reg     *bridge.Registry
	logger  *slog.Logger
	path    string
	onRow   func(Row) bool
	txDepth int
	stmts   map[*Statement]struct{}
}

// Row is one result row of Exec, in the engine's text form.
type Row struct {
	Columns []string
	Values  []string
}

// Get returns the value of the named column.
func (r Row) Get(name string) (string, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return "", false
}

// Register makes Database and Statement known to reg.
func Register(reg *bridge.Registry) error {
	if err := reg.InitConnectionClass(bridge.ClassOf(&Database{})); err != nil {
		return fmt.Errorf("database: register connection class: %w", err)
	}
	if err := reg.InitStatementClass(bridge.ClassOf(&Statement{})); err != nil {
		return fmt.Errorf("database: register statement class: %w", err)
	}
	return nil
}

// Open opens path, or an in-memory database when path is empty, and runs
// the setup steps in opts. Any setup failure closes the connection again.
func Open(reg *bridge.Registry, path string, opts Options) (*Database, error) {
	if err := Register(reg); err != nil {
		return nil, err
	}
	if path == "" {
		path = MemoryPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db := &Database{reg: reg, logger: logger, path: path, stmts: make(map[*Statement]struct{})}
	if rc := reg.Open(db, path, opts.ReadOnly, opts.CreateIfMissing); rc != bridge.StatusOK {
		return nil, db.check("open_v2", rc)
	}

	if err := db.setup(opts); err != nil {
		if rc := reg.Close(db); rc != bridge.StatusOK {
			return nil, fmt.Errorf("database: open %s: %w (close failed with %d)", path, err, rc)
		}
		return nil, err
	}
	logger.Info("Database opened", "path", path, "readOnly", opts.ReadOnly)
	return db, nil
}

func (db *Database) setup(opts Options) error {
	timeout := opts.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	}
	if timeout > 0 {
		db.reg.BusyTimeout(db, int(timeout.Milliseconds()))
	}
	limit := opts.SoftHeapLimit
	if limit == 0 {
		limit = DefaultSoftHeapLimit
	}
	db.reg.SoftHeapLimit(limit)

	tables, err := db.TableCount()
	if err != nil {
		return err
	}
	if tables == 0 && !opts.CreateIfMissing && db.path != MemoryPath {
		return ErrEmptyDatabase
	}
	if opts.IntegrityCheck {
		if err := db.IntegrityCheck(); err != nil {
			return err
		}
	}
	if opts.UserVersion > 0 {
		current, err := db.UserVersion()
		if err != nil {
			return err
		}
		if current != opts.UserVersion && opts.Upgrade != nil {
			ok, err := opts.Upgrade(db, current, opts.UserVersion)
			if err != nil {
				return fmt.Errorf("database: upgrade from %d to %d: %w", current, opts.UserVersion, err)
			}
			if ok {
				if err := db.SetUserVersion(opts.UserVersion); err != nil {
					return err
				}
				db.logger.Info("Database upgraded", "path", db.path, "from", current, "to", opts.UserVersion)
			}
		}
	}
	return nil
}

// Close finalizes the statements still tracked and closes the connection,
// retrying while the engine reports it busy.
func (db *Database) Close() error {
	if db.txDepth > 0 {
		return ErrActiveTransaction
	}
	for st := range db.stmts {
		st.Close()
	}

	rc := db.reg.Close(db)
	retries := 0
	for ; rc == native.Busy && retries < closeRetries; retries++ {
		db.reg.Sleep(int(closeRetryDelay.Milliseconds()))
		rc = db.reg.Close(db)
	}
	if rc != bridge.StatusOK {
		if rc < 0 {
			return db.check("close", rc)
		}
		msg := "close failed"
		if retries > 0 {
			msg = fmt.Sprintf("close failed after %d retries", retries)
		}
		return &Error{API: "close", Code: rc, Message: msg}
	}
	db.logger.Info("Database closed", "path", db.path)
	return nil
}

// OnRow receives Exec rows from the bridge.
func (db *Database) OnRow(values, columns []string) bool {
	if db.onRow == nil {
		return true
	}
	return db.onRow(Row{Columns: columns, Values: values})
}

// Exec runs a script. fn, when set, sees every result row and returns false
// to stop early.
func (db *Database) Exec(script string, fn func(Row) bool) error {
	prev := db.onRow
	db.onRow = fn
	defer func() { db.onRow = prev }()
	return db.check("exec", db.reg.Exec(db, script))
}

// Pragma runs "PRAGMA text;" and hands its rows to fn.
func (db *Database) Pragma(text string, fn func(Row) bool) error {
	return db.Exec("PRAGMA "+text+";", fn)
}

func (db *Database) pragmaInt(name string) (int, error) {
	var v int
	var convErr error
	err := db.Pragma(name, func(r Row) bool {
		if len(r.Values) == 1 {
			v, convErr = strconv.Atoi(r.Values[0])
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	return v, convErr
}

func (db *Database) UserVersion() (int, error) {
	return db.pragmaInt("user_version")
}

func (db *Database) SetUserVersion(v int) error {
	if v < 1 {
		return ErrInvalidVersion
	}
	return db.Pragma(fmt.Sprintf("user_version = %d", v), nil)
}

// TableCount counts the schema objects in the catalog. Reading it fails on
// files that are not databases.
func (db *Database) TableCount() (int, error) {
	var n int
	var convErr error
	err := db.Exec("select count(*) from "+catalogTable+";", func(r Row) bool {
		n, convErr = strconv.Atoi(r.Values[0])
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, convErr
}

func (db *Database) IntegrityCheck() error {
	var result string
	err := db.Pragma("integrity_check", func(r Row) bool {
		result = r.Values[0]
		return false
	})
	if err != nil {
		return err
	}
	if result != "ok" {
		db.logger.Warn("Integrity check failed", "path", db.path, "result", result)
		return fmt.Errorf("%w: %s", ErrIntegrity, result)
	}
	return nil
}

func (db *Database) FileName() string       { return db.reg.FileName(db) }
func (db *Database) ErrorMessage() string   { return db.reg.Error(db) }
func (db *Database) LastInsertRowID() int64 { return db.reg.LastInsertRowID(db) }
func (db *Database) Changes() int           { return db.reg.Changes(db.Handle) }
func (db *Database) Version() string        { return db.reg.Version() }
func (db *Database) IsOpen() bool           { return db.reg.IsOpen(db) }

// Registry is the registry the database was opened on.
func (db *Database) Registry() *bridge.Registry { return db.reg }
