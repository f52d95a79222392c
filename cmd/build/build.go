// Package build assembles one SQLite database out of several data files.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lepinkainen/dbtools/cmd/dump"
	"github.com/lepinkainen/dbtools/internal/cmdutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/ingest"
	"github.com/lepinkainen/dbtools/internal/normalize"
	"github.com/lepinkainen/dbtools/internal/source"
)

// Params holds the parameters of one build
type Params struct {
	Sources []source.Source
	// Output defaults to the first source with a .sqlite extension
	Output    string
	Normalize bool
	// SQL also writes a dump next to Output
	SQL      bool
	XZ       bool
	MaxWidth int
	MaxRows  int
	Ingest   ingest.Options
	DB       []dblite.Option
}

// Result describes a finished build
type Result struct {
	Output     string
	Dump       string
	Normalized []string
	Summaries  []source.Summary
}

// Run builds p.Output. Nothing is left behind when it fails.
func Run(ctx context.Context, p Params) (*Result, error) {
	if len(p.Sources) == 0 {
		return nil, dberrors.NewInvalidConfigurationError("nothing to build: no input files")
	}
	out := &cmdutil.OutputConfig{Input: p.Sources[0].File, Output: p.Output, Ext: ".sqlite", RequireExt: ".sqlite"}
	if err := cmdutil.ResolveOutput(out); err != nil {
		return nil, err
	}
	result := &Result{Output: out.Output}
	if p.SQL {
		dumpOut := &cmdutil.OutputConfig{Input: out.Output, Ext: dump.Ext(p.XZ)}
		if err := cmdutil.ResolveOutput(dumpOut); err != nil {
			return nil, err
		}
		result.Dump = dumpOut.Output
	}

	db, err := dblite.Open(result.Output, p.DB...)
	if err != nil {
		return nil, err
	}
	if err := build(ctx, db, p, result); err != nil {
		_ = db.Close(false)
		return nil, errors.Join(err, remove(result.Output, result.Dump))
	}
	if err := db.Close(false); err != nil {
		return nil, errors.Join(err, remove(result.Output, result.Dump))
	}
	slog.Info("database built", "output", result.Output, "sources", len(p.Sources))
	return result, nil
}

func build(ctx context.Context, db *dblite.DB, p Params, result *Result) error {
	for i, src := range p.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary, err := add(ctx, db, src, i == 0, p)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", src.File, err)
		}
		result.Summaries = append(result.Summaries, summary)
	}

	if p.Normalize {
		normalized, err := normalize.Normalize(db)
		if err != nil {
			return err
		}
		result.Normalized = normalized
	}

	if result.Dump != "" {
		if err := db.Commit(); err != nil {
			return err
		}
		return dump.WriteFile(db, result.Dump, p.XZ, p.MaxWidth, p.MaxRows)
	}
	return nil
}

// add copies one source into db. The first source is backed up wholesale,
// later ones are replayed from their dump.
func add(ctx context.Context, db *dblite.DB, src source.Source, first bool, p Params) (source.Summary, error) {
	loaded, err := source.Load(ctx, src, p.Ingest)
	if err != nil {
		return source.Summary{}, err
	}
	defer func() { _ = loaded.Close() }()

	slog.Info("adding source", "file", src.File, "tables", len(loaded.Kept()))
	if first {
		err = loaded.DB.Backup(db)
	} else {
		err = loaded.DB.Merge(db, p.MaxWidth, p.MaxRows)
	}
	if err != nil {
		return source.Summary{}, err
	}
	return loaded.Summary(), nil
}

func remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		for _, f := range []string{p, p + "-journal"} {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", f, err))
			}
		}
	}
	return errors.Join(errs...)
}
