package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomyedwab/sqlbridge/bridge"
)

// Kind is the Go-side family of a declared column type.
type Kind int

const (
	KindString Kind = iota
	KindShort
	KindInt
	KindLong
	KindBigInteger
	KindFloat
	KindDouble
	KindDecimal
	KindDate
	KindDateTime
	KindBoolean
	KindBlob
	KindClob
)

var kindNames = [...]string{
	KindString:     "string",
	KindShort:      "short",
	KindInt:        "int",
	KindLong:       "long",
	KindBigInteger: "biginteger",
	KindFloat:      "float",
	KindDouble:     "double",
	KindDecimal:    "decimal",
	KindDate:       "date",
	KindDateTime:   "datetime",
	KindBoolean:    "boolean",
	KindBlob:       "blob",
	KindClob:       "clob",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// DeclaredType is a parsed column declaration such as "DECIMAL(10,2)".
type DeclaredType struct {
	Name      string
	Kind      Kind
	Precision int
	Scale     int
}

var (
	integerTypes = map[string]bool{
		"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true, "MEDIUMINT": true,
		"BIGINT": true, "UNSIGNED BIG INT": true, "INT2": true, "INT8": true,
	}
	floatTypes = map[string]bool{
		"REAL": true, "DOUBLE": true, "DOUBLE PRECISION": true, "FLOAT": true,
	}
	decimalTypes = map[string]bool{
		"NUMERIC": true, "DECIMAL": true,
	}
	stringTypes = map[string]bool{
		"CHAR": true, "CHARACTER": true, "VARCHAR": true, "VARYING CHARACTER": true,
		"NCHAR": true, "NATIVE CHARACTER": true, "NVARCHAR": true, "TEXT": true,
	}
)

// ParseDeclaredType maps a column declaration to a Kind. Names outside the
// known lists fall back to the engine's affinity rules; an empty
// declaration is a blob.
func ParseDeclaredType(decl string) (DeclaredType, error) {
	name := strings.ToUpper(strings.TrimSpace(decl))
	var dt DeclaredType
	if open := strings.IndexByte(name, '('); open >= 0 {
		end := strings.LastIndexByte(name, ')')
		if end < open {
			return dt, fmt.Errorf("database: unbalanced parentheses in type %q", decl)
		}
		parts := strings.Split(name[open+1:end], ",")
		if len(parts) > 2 {
			return dt, fmt.Errorf("database: too many precision values in type %q", decl)
		}
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return dt, fmt.Errorf("database: bad precision in type %q: %w", decl, err)
			}
			nums[i] = n
		}
		dt.Precision = nums[0]
		if len(nums) == 2 {
			dt.Scale = nums[1]
		}
		name = strings.TrimSpace(name[:open])
	}
	dt.Name = strings.Join(strings.Fields(name), " ")

	switch {
	case integerTypes[dt.Name] && dt.Scale == 0:
		dt.Kind = integerKind(dt.Precision)
	case integerTypes[dt.Name], floatTypes[dt.Name], decimalTypes[dt.Name]:
		dt.Kind = decimalKind(dt.Precision, floatTypes[dt.Name])
	case stringTypes[dt.Name]:
		dt.Kind = KindString
	case dt.Name == "DATE":
		dt.Kind = KindDate
	case dt.Name == "DATETIME", dt.Name == "TIMESTAMP":
		dt.Kind = KindDateTime
	case dt.Name == "BOOLEAN":
		dt.Kind = KindBoolean
	case dt.Name == "BLOB", dt.Name == "":
		dt.Kind = KindBlob
	case dt.Name == "CLOB":
		dt.Kind = KindClob
	default:
		dt.Kind = affinityKind(dt.Name)
	}
	return dt, nil
}

func integerKind(precision int) Kind {
	switch {
	case precision == 0:
		return KindLong
	case precision <= 4:
		return KindShort
	case precision <= 9:
		return KindInt
	case precision <= 18:
		return KindLong
	}
	return KindBigInteger
}

func decimalKind(precision int, float bool) Kind {
	switch {
	case precision == 0 && float:
		return KindDouble
	case precision >= 1 && precision <= 6:
		return KindFloat
	case precision >= 7 && precision <= 16:
		return KindDouble
	}
	return KindDecimal
}

func affinityKind(name string) Kind {
	switch {
	case strings.Contains(name, "INT"):
		return KindLong
	case strings.Contains(name, "CHAR"), strings.Contains(name, "TEXT"):
		return KindString
	case strings.Contains(name, "CLOB"):
		return KindClob
	case strings.Contains(name, "BLOB"):
		return KindBlob
	case strings.Contains(name, "REAL"), strings.Contains(name, "FLOA"), strings.Contains(name, "DOUB"):
		return KindDouble
	}
	return KindDecimal
}

// Column describes one column of a table.
type Column struct {
	Index       int
	Name        string
	Declaration string
	Type        DeclaredType
	NotNull     bool
	Default     string
	PrimaryKey  bool
}

type Index struct {
	Name string
	SQL  string
}

// Table describes a user table in the schema.
type Table struct {
	Name    string
	SQL     string
	Columns []Column
	Indexes []Index
}

// Tables reads the user tables of the main schema with their columns and
// indexes.
func (db *Database) Tables() ([]Table, error) {
	var tables []Table
	byName := make(map[string]int)

	cur := db.reg.Query(db.Handle, "SELECT type, name, tbl_name, coalesce(sql, '') FROM "+catalogTable+
		" WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%' ORDER BY type DESC, name")
	defer cur.Close()
	for cur.Next() {
		v := cur.Values()
		switch v[0] {
		case "table":
			byName[v[1]] = len(tables)
			tables = append(tables, Table{Name: v[1], SQL: v[3]})
		case "index":
			if i, ok := byName[v[2]]; ok {
				tables[i].Indexes = append(tables[i].Indexes, Index{Name: v[1], SQL: v[3]})
			}
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("database: read catalog: %w", err)
	}

	for i := range tables {
		cols, err := db.columns(tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}
	return tables, nil
}

func (db *Database) columns(table string) ([]Column, error) {
	var cols []Column
	var parseErr error
	err := db.Pragma("table_info("+quoteIdent(table)+")", func(r Row) bool {
		// cid, name, type, notnull, dflt_value, pk
		c := Column{Name: r.Values[1], Declaration: r.Values[2], NotNull: r.Values[3] == "1", Default: r.Values[4], PrimaryKey: r.Values[5] != "0"}
		c.Index, _ = strconv.Atoi(r.Values[0])
		if c.Type, parseErr = ParseDeclaredType(c.Declaration); parseErr != nil {
			return false
		}
		cols = append(cols, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, fmt.Errorf("database: table %s: %w", table, parseErr)
	}
	return cols, nil
}

// Cursor runs sql one statement at a time on the connection, as the
// pull-based counterpart of Exec.
func (db *Database) Cursor(sql string) *bridge.Cursor {
	return db.reg.Query(db.Handle, sql)
}
