package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/dbtools/cmd/build"
	"github.com/lepinkainen/dbtools/cmd/dump"
	"github.com/lepinkainen/dbtools/cmd/transplant"
	"github.com/lepinkainen/dbtools/internal/anonymize"
	"github.com/lepinkainen/dbtools/internal/cmdutil"
	"github.com/lepinkainen/dbtools/internal/config"
	"github.com/lepinkainen/dbtools/internal/datastore"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/describe"
	"github.com/lepinkainen/dbtools/internal/export"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/lepinkainen/dbtools/internal/normalize"
	"github.com/lepinkainen/dbtools/internal/source"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
)

var (
	runBuild      = build.Run
	runDump       = dump.Run
	runTransplant = transplant.Run
	runAnonymize  = anonymize.Anonymize

	stdout io.Writer = os.Stdout
)

// CLI represents the complete command structure for the dbtools application
type CLI struct {
	// Global flags
	Verbose     int      `short:"v" type:"counter" help:"Log more; repeat for debug output"`
	Quiet       bool     `short:"q" help:"Only log warnings and errors"`
	CommitEvery int      `help:"Commit after this many modifications" default:"${commit_every}"`
	Extensions  []string `help:"SQLite extensions to load into every connection"`

	Build      BuildCmd      `cmd:"" help:"Build a SQLite database out of data files"`
	Normalize  NormalizeCmd  `cmd:"" help:"Normalize table names, column names and column types in place"`
	Anonymize  AnonymizeCmd  `cmd:"" help:"Write a copy of a database with its values replaced"`
	Dump       DumpCmd       `cmd:"" help:"Write a database out as a SQL script"`
	Describe   DescribeCmd   `cmd:"" help:"Summarize the tables and columns of databases"`
	Export     ExportCmd     `cmd:"" help:"Run a directory of SQL queries and save the results as CSV, JSON and Excel files"`
	Transplant TransplantCmd `cmd:"" help:"Copy the tables of a database into PostgreSQL or another SQLite file"`
}

// BuildCmd represents the build command
type BuildCmd struct {
	Out       string   `short:"o" help:"Output database (defaults to the first file with a .sqlite extension)"`
	Normalize bool     `short:"n" help:"Normalize the result"`
	SQL       bool     `help:"Also write a SQL dump next to the output"`
	XZ        bool     `help:"Compress the SQL dump with xz"`
	Markdown  bool     `help:"Print the summary as a markdown list"`
	Files     []string `arg:"" sep:"none" name:"file" help:"Input files, each followed by its table modifiers (!table, !!table, =name, prefix_, _suffix)"`
}

// NormalizeCmd represents the normalize command
type NormalizeCmd struct {
	Database string `arg:"" help:"SQLite database to normalize"`
}

// AnonymizeCmd represents the anonymize command
type AnonymizeCmd struct {
	Database string   `arg:"" help:"SQLite database to anonymize"`
	Out      string   `short:"o" help:"Output database (defaults to <database>.anon.sqlite)"`
	Anon     []string `short:"a" help:"Columns to anonymize as table.column, table. or .column (default every column)"`
}

// DumpCmd represents the dump command
type DumpCmd struct {
	Database  string `arg:"" help:"SQLite database to dump"`
	Out       string `short:"o" help:"Output script (defaults to <database>.sql)"`
	MaxWidth  int    `help:"Maximum width of the values of one INSERT (-1 for no limit)" default:"${dump_max_width}"`
	MaxRows   int    `help:"Maximum rows of one INSERT (-1 for no limit)" default:"${dump_max_rows}"`
	XZ        bool   `help:"Compress the script with xz"`
	Overwrite bool   `help:"Replace an existing output file"`
}

// DescribeCmd represents the describe command
type DescribeCmd struct {
	Format string   `short:"f" help:"Output format (${formats})" default:"${describe_format}"`
	Jobs   int      `short:"j" help:"Files described concurrently" default:"4"`
	Files  []string `arg:"" sep:"none" name:"file" help:"SQLite databases to describe"`
}

// ExportCmd represents the export command
type ExportCmd struct {
	Database  string `arg:"" help:"SQLite database to query"`
	SQL       string `short:"s" help:"Directory holding the .sql query files" default:"."`
	Overwrite bool   `help:"Rewrite results that already exist"`
}

// TransplantCmd represents the transplant command
type TransplantCmd struct {
	Database  string   `arg:"" help:"SQLite database to copy"`
	To        string   `short:"t" help:"postgres:// URL or SQLite file to copy into (defaults to postgres.url)"`
	Schema    string   `help:"PostgreSQL schema of the new tables" default:"${postgres_schema}"`
	Drop      bool     `help:"Drop tables that already exist in the target"`
	Tables    []string `help:"Only copy these tables"`
	BatchSize int      `help:"Rows sent to the target at once" default:"${batch_size}"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(slog.LevelInfo)
	initConfig()

	// Create CLI instance
	var cli CLI

	// Parse command line with Kong
	kctx := kong.Parse(&cli, kongOptions()...)

	initLogging(logLevel(&cli))
	// Update global config based on parsed flags
	updateGlobalConfig(&cli)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	// Execute the selected command
	if err := kctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func kongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("dbtools"),
		kong.Description("Build, normalize, anonymize and inspect SQLite databases."),
		kong.UsageOnError(),
		kong.Vars{
			"commit_every":    strconv.Itoa(config.CommitEvery),
			"dump_max_width":  strconv.Itoa(config.DumpMaxWidth),
			"dump_max_rows":   strconv.Itoa(config.DumpMaxRows),
			"describe_format": config.DescribeFormat,
			"formats":         strings.Join(describe.Formats, ", "),
			"postgres_schema": config.PostgresSchema,
			"batch_size":      strconv.Itoa(datastore.DefaultBatchSize),
		},
	}
}

func initConfig() {
	viper.SetEnvPrefix("DBTOOLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Enable environment variable support
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
		slog.Debug("Config file not found, using defaults")
	}

	// Initialize global config
	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	// Update config based on CLI flags
	if cli.CommitEvery > 0 {
		config.SetCommitEvery(cli.CommitEvery)
		viper.Set("commit_every", cli.CommitEvery)
	}
	if len(cli.Extensions) > 0 {
		config.SetExtensions(cli.Extensions)
		viper.Set("extensions", cli.Extensions)
	}
}

func logLevel(cli *CLI) slog.Level {
	switch {
	case cli.Quiet:
		return slog.LevelWarn
	case cli.Verbose > 0:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func initLogging(level slog.Level) {
	// Create a human-readable handler for logging
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}

// Run methods for each command

func (b *BuildCmd) Run(ctx context.Context) error {
	sources, err := source.ParseArgs(b.Files)
	if err != nil {
		return err
	}
	ingestOpts, err := cmdutil.IngestOptions()
	if err != nil {
		return err
	}

	result, err := runBuild(ctx, build.Params{
		Sources:   sources,
		Output:    b.Out,
		Normalize: b.Normalize,
		SQL:       b.SQL || b.XZ,
		XZ:        b.XZ,
		MaxWidth:  config.DumpMaxWidth,
		MaxRows:   config.DumpMaxRows,
		Ingest:    ingestOpts,
		DB:        cmdutil.DBOptions(),
	})
	if err != nil {
		return err
	}

	if b.Markdown {
		_, err = fmt.Fprint(stdout, source.Markdown(result.Summaries))
	} else {
		_, err = fmt.Fprint(stdout, source.Terminal(result.Summaries))
	}
	if err != nil {
		return err
	}
	slog.Info("Database written", "path", fileutil.RelHome(result.Output), "normalized", len(result.Normalized))
	return nil
}

func (n *NormalizeCmd) Run() error {
	if err := fileutil.RequireFile(n.Database); err != nil {
		return err
	}
	db, err := dblite.Open(n.Database, cmdutil.DBOptions()...)
	if err != nil {
		return err
	}

	tables, err := normalize.Normalize(db)
	if err != nil {
		_ = db.Close(false)
		return err
	}
	if len(tables) == 0 {
		slog.Info("Nothing to normalize", "path", n.Database)
	} else {
		slog.Info("Tables normalized", "path", n.Database, "tables", strings.Join(tables, ", "))
	}
	return db.Close(false)
}

func (a *AnonymizeCmd) Run() error {
	out := a.Out
	if out == "" {
		out = anonymize.OutputPath(a.Database)
	}
	result, err := runAnonymize(a.Database, out, a.Anon, cmdutil.DBOptions()...)
	if err != nil {
		return err
	}
	slog.Info("Anonymized copy written",
		"path", result.Output,
		"tables", len(result.Targets),
		"strings", result.Strings,
		"numbers", result.Numbers)
	return nil
}

func (d *DumpCmd) Run() error {
	path, err := runDump(dump.Params{
		Input:     d.Database,
		Output:    d.Out,
		MaxWidth:  d.MaxWidth,
		MaxRows:   d.MaxRows,
		XZ:        d.XZ,
		Overwrite: d.Overwrite,
		DB:        cmdutil.DBOptions(),
	})
	if err != nil {
		return err
	}
	slog.Info("Dump written", "path", path)
	return nil
}

func (d *DescribeCmd) Run(ctx context.Context) error {
	files, err := describe.DescribeAll(ctx, d.Files, d.Jobs, cmdutil.DBOptions()...)
	if err != nil {
		return err
	}
	return describe.Render(stdout, files, d.Format)
}

func (e *ExportCmd) Run() error {
	if err := fileutil.RequireFile(e.Database); err != nil {
		return err
	}
	db, err := dblite.Open(e.Database, cmdutil.DBOptions(dblite.WithReadOnly())...)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(false) }()

	results, err := export.Run(db, e.SQL, e.Overwrite)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Skipped {
			slog.Info("Skipped existing results", "query", r.Query)
			continue
		}
		slog.Info("Query exported", "query", r.Query, "rows", r.Rows, "csv", r.CSV, "json", r.JSON, "xlsx", r.XLSX)
	}
	return nil
}

func (t *TransplantCmd) Run(ctx context.Context) error {
	to := t.To
	if to == "" {
		to = config.PostgresURL
	}
	results, err := runTransplant(ctx, transplant.Params{
		Input:     t.Database,
		To:        to,
		Schema:    t.Schema,
		Drop:      t.Drop,
		Tables:    t.Tables,
		BatchSize: t.BatchSize,
		DB:        cmdutil.DBOptions(),
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.Info("Table transplanted", "table", r.Table, "rows", r.Rows)
	}
	return nil
}
