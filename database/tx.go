package database

import (
	"errors"
	"fmt"
)

// TxMode is the locking mode of BEGIN.
type TxMode int

const (
	Deferred TxMode = iota
	Immediate
	Exclusive
)

func (m TxMode) String() string {
	switch m {
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	}
	return "DEFERRED"
}

func (db *Database) Begin(mode TxMode) error {
	if err := db.Exec("BEGIN "+mode.String()+";", nil); err != nil {
		return err
	}
	db.txDepth++
	return nil
}

func (db *Database) Commit() error {
	if err := db.Exec("COMMIT;", nil); err != nil {
		return err
	}
	db.txDepth = 0
	return nil
}

// Rollback abandons the whole transaction, savepoints included.
func (db *Database) Rollback() error {
	if err := db.Exec("ROLLBACK;", nil); err != nil {
		return err
	}
	db.txDepth = 0
	return nil
}

func (db *Database) Savepoint(name string) error {
	if err := db.Exec("SAVEPOINT "+quoteIdent(name)+";", nil); err != nil {
		return err
	}
	db.txDepth++
	return nil
}

func (db *Database) Release(name string) error {
	if err := db.Exec("RELEASE "+quoteIdent(name)+";", nil); err != nil {
		return err
	}
	db.txDepth = max(db.txDepth-1, 0)
	return nil
}

// RollbackTo undoes the work since the savepoint, which stays open.
func (db *Database) RollbackTo(name string) error {
	return db.Exec("ROLLBACK TO SAVEPOINT "+quoteIdent(name)+";", nil)
}

// InTransaction reports whether Begin or Savepoint left a transaction open.
func (db *Database) InTransaction() bool { return db.txDepth > 0 }

// Transaction runs fn inside a transaction. Outside a transaction it uses
// BEGIN with mode; nested calls use a savepoint. fn's error rolls back the
// level it ran at.
func (db *Database) Transaction(mode TxMode, fn func() error) error {
	if db.txDepth == 0 {
		if err := db.Begin(mode); err != nil {
			return err
		}
		if err := fn(); err != nil {
			if rbErr := db.Rollback(); rbErr != nil {
				return errors.Join(fmt.Errorf("database: transaction: %w", err), rbErr)
			}
			return fmt.Errorf("database: transaction: %w", err)
		}
		return db.Commit()
	}

	name := fmt.Sprintf("sp%d", db.txDepth)
	if err := db.Savepoint(name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		rbErr := db.RollbackTo(name)
		relErr := db.Release(name)
		return errors.Join(fmt.Errorf("database: savepoint %s: %w", name, err), rbErr, relErr)
	}
	return db.Release(name)
}

func quoteIdent(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}
