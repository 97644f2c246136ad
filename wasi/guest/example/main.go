//go:build wasip1

// Command example is a guest for "sqlbridge run". It lists the rows of the
// table named by its first argument through the proxied database/sql
// driver.
//
//	GOOS=wasip1 GOARCH=wasm go build -o example.wasm ./wasi/guest/example
//	sqlbridge --db app.db run example.wasm users
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/sqlbridge/sqlproxy/driver"
	"github.com/tomyedwab/sqlbridge/wasi/guest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: example TABLE")
		os.Exit(2)
	}
	db := sqlx.NewDb(guest.Open(""), driver.DriverName)
	defer db.Close()

	table := `"` + strings.ReplaceAll(os.Args[1], `"`, `""`) + `"`
	rows, err := db.Queryx("SELECT * FROM " + table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(row)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "rows failed: %v\n", err)
		os.Exit(1)
	}
}
