// Package ingest loads tabular files into in-memory SQLite stores.
//
// Supported inputs: SQLite databases, SQL scripts (optionally xz
// compressed), CSV/TSV files, Excel workbooks, Access databases (through
// mdbtools) and zip archives holding any of them.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/ulikunitz/xz"
)

// Kinds of input
const (
	KindSQLite = "sqlite"
	KindSQL    = "sql"
	KindSQLXZ  = "sql.xz"
	KindCSV    = "csv"
	KindTSV    = "tsv"
	KindXLSX   = "xlsx"
	KindZip    = "zip"
	KindMDB    = "mdb"
)

// Options configures how files are read.
type Options struct {
	CSV csvutil.Options
	// DB options for the in-memory stores.
	DB []dblite.Option
	// MaxRows bounds INSERT batches when several stores are merged.
	MaxRows int
}

// Kind classifies path by extension; "" when it is not supported.
func Kind(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".sql.xz") {
		return KindSQLXZ
	}
	switch fileutil.Ext(path) {
	case "sqlite", "sqlite3", "db":
		return KindSQLite
	case "sql":
		return KindSQL
	case "csv":
		return KindCSV
	case "tsv":
		return KindTSV
	case "xlsx", "xlsm":
		return KindXLSX
	case "zip":
		return KindZip
	case "mdb", "accdb":
		return KindMDB
	}
	return ""
}

// Supported reports whether Open understands path.
func Supported(path string) bool {
	return Kind(path) != ""
}

// Open loads path into a new in-memory database. The caller closes it.
func Open(ctx context.Context, path string, opts Options) (*dblite.DB, error) {
	if err := fileutil.RequireFile(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := Kind(path)
	slog.Debug("ingest", "file", path, "kind", kind)

	switch kind {
	case KindSQLite:
		return openSQLite(path, opts)
	case KindSQL:
		return openScript(path, opts, false)
	case KindSQLXZ:
		return openScript(path, opts, true)
	case KindCSV:
		return openCSV(path, opts, opts.CSV.Comma)
	case KindTSV:
		return openCSV(path, opts, '\t')
	case KindXLSX:
		return openXLSX(ctx, path, opts)
	case KindZip:
		return openZip(ctx, path, opts)
	case KindMDB:
		return openMDB(ctx, path, opts)
	}
	return nil, dberrors.NewInvalidConfigurationErrorf("don't know how to read %s", path)
}

func newMemory(opts Options) (*dblite.DB, error) {
	return dblite.Open(dblite.Memory, opts.DB...)
}

func openSQLite(path string, opts Options) (*dblite.DB, error) {
	src, err := dblite.Open(path, dblite.WithReadOnly())
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close(false) }()

	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	if err := src.Backup(mem); err != nil {
		_ = mem.Close(false)
		return nil, err
	}
	return mem, nil
}

func openScript(path string, opts Options, compressed bool) (*dblite.DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if compressed {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read xz stream %s: %w", path, err)
		}
		r = xr
	}
	script, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	if err := mem.ExecuteScript(string(script)); err != nil {
		_ = mem.Close(false)
		return nil, err
	}
	return mem, nil
}

// fold adds the tables of src to dst. The first source is copied whole.
func fold(dst, src *dblite.DB, first bool, opts Options) error {
	if first {
		return src.Backup(dst)
	}
	maxRows := opts.MaxRows
	if maxRows == 0 {
		maxRows = dblite.NoLimit
	}
	return src.Merge(dst, dblite.NoLimit, maxRows)
}
