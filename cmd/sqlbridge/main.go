// Command sqlbridge runs SQL against a database through the bridge, or runs
// a WebAssembly guest whose database/sql calls are proxied to it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/tomyedwab/sqlbridge/bridge"
	"github.com/tomyedwab/sqlbridge/codec"
	"github.com/tomyedwab/sqlbridge/database"
	sqlhost "github.com/tomyedwab/sqlbridge/sqlproxy/host"
	wasihost "github.com/tomyedwab/sqlbridge/wasi/host"
)

// Globals are the flags shared by every command.
type Globals struct {
	DB       string `name:"db" env:"SQLBRIDGE_DB" help:"Database path; empty for an in-memory database" type:"path"`
	Create   bool   `help:"Create the database if it does not exist"`
	ReadOnly bool   `name:"read-only" help:"Open the database read-only"`
	Check    bool   `help:"Run an integrity check after opening"`
	LogLevel string `name:"log-level" enum:"debug,info,warn,error" default:"info" help:"Log level"`

	out io.Writer
}

// cli defines the command-line interface for sqlbridge.
type cli struct {
	Globals

	Exec    ExecCmd    `cmd:"" help:"Run an SQL script and print result rows"`
	Query   QueryCmd   `cmd:"" help:"Run one statement with arguments and print rows as JSON"`
	Tables  TablesCmd  `cmd:"" help:"Describe the tables in the database"`
	Run     RunCmd     `cmd:"" help:"Run a WebAssembly guest against the database"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func (g *Globals) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// open opens the configured database on a fresh registry. The returned
// function closes both.
func (g *Globals) open() (*database.Database, func(), error) {
	logger := g.logger()
	reg := bridge.NewRegistry(bridge.Config{Logger: logger})
	db, err := database.Open(reg, g.DB, database.Options{
		ReadOnly:        g.ReadOnly,
		CreateIfMissing: g.Create,
		IntegrityCheck:  g.Check,
		Logger:          logger,
	})
	if err != nil {
		reg.Shutdown()
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("Close failed", "error", err)
		}
		if err := reg.Shutdown(); err != nil {
			logger.Error("Registry close failed", "error", err)
		}
	}, nil
}

// ExecCmd runs a script through the row callback.
type ExecCmd struct {
	SQL string `arg:"" help:"SQL script; '-' reads it from stdin"`
}

func (c *ExecCmd) Run(g *Globals) error {
	script := c.SQL
	if script == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		script = string(b)
	}
	db, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	var header []string
	return db.Exec(script, func(r database.Row) bool {
		if strings.Join(r.Columns, "\t") != strings.Join(header, "\t") {
			header = r.Columns
			fmt.Fprintln(w, strings.Join(header, "\t"))
		}
		fmt.Fprintln(w, strings.Join(r.Values, "\t"))
		return true
	})
}

// QueryCmd prepares one statement and binds its arguments as text.
type QueryCmd struct {
	SQL  string   `arg:"" help:"SQL statement"`
	Args []string `arg:"" optional:"" help:"Statement arguments, bound as text"`
}

func (c *QueryCmd) Run(g *Globals) error {
	db, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		args[i] = a
	}
	st, err := db.Prepare(c.SQL)
	if err != nil {
		return err
	}
	defer st.Close()

	enc := json.NewEncoder(g.out)
	columns := st.Columns()
	for row, err := range st.Query(args...) {
		if err != nil {
			return err
		}
		obj := make(map[string]any, len(columns))
		for i, v := range row {
			obj[columns[i]] = v
		}
		if err := enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}

type TablesCmd struct{}

func (c *TablesCmd) Run(g *Globals) error {
	db, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	tables, err := db.Tables()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, t := range tables {
		fmt.Fprintf(w, "%s\n", t.Name)
		for _, col := range t.Columns {
			flags := ""
			if col.PrimaryKey {
				flags += " pk"
			}
			if col.NotNull {
				flags += " not-null"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", col.Name, col.Declaration, col.Type.Kind, strings.TrimSpace(flags))
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(w, "  index %s\n", idx.Name)
		}
	}
	return nil
}

// RunCmd runs a wasip1 guest. The guest reaches the database through the
// sqlproxy driver; see package wasi/guest.
type RunCmd struct {
	Wasm string   `arg:"" help:"Path to the guest .wasm file" type:"existingfile"`
	Args []string `arg:"" optional:"" help:"Arguments passed to the guest"`
}

func (c *RunCmd) Run(g *Globals) error {
	wasmBytes, err := os.ReadFile(c.Wasm)
	if err != nil {
		return fmt.Errorf("failed to read WASM file %s: %w", c.Wasm, err)
	}
	db, closeDB, err := g.open()
	if err != nil {
		return err
	}
	defer closeDB()

	logger := g.logger()
	proxy := sqlhost.NewSQLHost(db, logger)
	defer proxy.Close()

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	if _, err := wasihost.Instantiate(ctx, r, wasihost.Config{Handler: proxy, Logger: logger}); err != nil {
		return err
	}

	cfg := wazero.NewModuleConfig().
		WithName(c.Wasm).
		WithArgs(append([]string{c.Wasm}, c.Args...)...).
		WithStdin(os.Stdin).
		WithStdout(g.out).
		WithStderr(os.Stderr).
		WithSysWalltime().
		WithSysNanotime()
	_, err = r.InstantiateWithConfig(ctx, wasmBytes, cfg)
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("guest exited with code %d", exitErr.ExitCode())
	}
	return err
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	reg := bridge.NewRegistry(bridge.Config{Logger: g.logger()})
	defer reg.Shutdown()
	fmt.Fprintf(g.out, "sqlite %s\ntag codec v%d\n", reg.Version(), codec.Version)
	return nil
}

func options(c *cli) []kong.Option {
	return []kong.Option{
		kong.Name("sqlbridge"),
		kong.Description("Run SQL through the SQLite bridge"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&c.Globals),
	}
}

func main() {
	c := cli{Globals: Globals{out: os.Stdout}}
	ctx := kong.Parse(&c, options(&c)...)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
