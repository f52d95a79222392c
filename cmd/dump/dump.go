// Package dump writes SQLite databases out as SQL scripts.
package dump

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lepinkainen/dbtools/internal/cmdutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/ulikunitz/xz"
)

// Params holds the parameters of one dump
type Params struct {
	Input string
	// Output defaults to Input with its extension replaced by .sql (.sql.xz)
	Output    string
	MaxWidth  int
	MaxRows   int
	XZ        bool
	Overwrite bool
	DB        []dblite.Option
}

// Ext is the extension of a dump file
func Ext(compressed bool) string {
	if compressed {
		return ".sql.xz"
	}
	return ".sql"
}

// Run dumps p.Input and returns the path written
func Run(p Params) (string, error) {
	if err := fileutil.RequireFile(p.Input); err != nil {
		return "", err
	}
	out := &cmdutil.OutputConfig{Input: p.Input, Output: p.Output, Ext: Ext(p.XZ), Overwrite: p.Overwrite}
	if err := cmdutil.ResolveOutput(out); err != nil {
		return "", err
	}

	db, err := dblite.Open(p.Input, append(p.DB, dblite.WithReadOnly())...)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close(false) }()

	if err := WriteFile(db, out.Output, p.XZ, p.MaxWidth, p.MaxRows); err != nil {
		return "", err
	}
	return out.Output, nil
}

// WriteFile writes the dump script of db to path, xz compressed when
// compress is set. A partially written file is removed.
func WriteFile(db *dblite.DB, path string, compress bool, maxWidth, maxRows int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := write(db, f, compress, maxWidth, maxRows); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if info, statErr := os.Stat(path); statErr == nil {
		slog.Info("dump written", "path", path, "bytes", info.Size())
	}
	return nil
}

func write(db *dblite.DB, f io.Writer, compress bool, maxWidth, maxRows int) error {
	var sink io.Writer = f
	var zw *xz.Writer
	if compress {
		var err error
		if zw, err = xz.NewWriter(f); err != nil {
			return fmt.Errorf("failed to start xz stream: %w", err)
		}
		sink = zw
	}

	if err := db.WriteDump(sink, maxWidth, maxRows); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to finish xz stream: %w", err)
		}
	}
	return nil
}
