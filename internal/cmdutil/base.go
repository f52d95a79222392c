package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lepinkainen/dbtools/internal/config"
	"github.com/lepinkainen/dbtools/internal/csvutil"
	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/lepinkainen/dbtools/internal/ingest"
)

// OutputConfig holds the common output file settings of commands that
// derive one file from another
type OutputConfig struct {
	// Input is the file the output is derived from
	Input string
	// Output is the explicit destination; empty derives it from Input
	Output string
	// Ext replaces the extension of Input when Output is empty, e.g. ".sql"
	Ext string
	// RequireExt, when set, is the extension Output must carry
	RequireExt string
	Overwrite  bool
}

// ResolveOutput fills in cfg.Output, checks it can be written and creates
// its directory
func ResolveOutput(cfg *OutputConfig) error {
	output := cfg.Output
	if output == "" {
		if cfg.Input == "" {
			return dberrors.NewInvalidConfigurationError("no input to derive the output name from")
		}
		output = fileutil.TrimExt(cfg.Input) + cfg.Ext
	}
	output = filepath.Clean(output)

	if cfg.RequireExt != "" && filepath.Ext(output) != cfg.RequireExt {
		return dberrors.NewInvalidConfigurationErrorf("output %s must end in %s", output, cfg.RequireExt)
	}
	if cfg.Input != "" && filepath.Clean(cfg.Input) == output {
		return dberrors.NewInvalidConfigurationErrorf("output %s would overwrite its input", output)
	}
	if !cfg.Overwrite {
		if err := fileutil.RequireAbsent(output); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	cfg.Output = output
	return nil
}

// DBOptions returns the dblite options from the global configuration
// followed by extra
func DBOptions(extra ...dblite.Option) []dblite.Option {
	opts := []dblite.Option{dblite.WithCommitEvery(config.CommitEvery)}
	if len(config.Extensions) > 0 {
		opts = append(opts, dblite.WithExtensions(config.Extensions...))
	}
	return append(opts, extra...)
}

// IngestOptions returns how input files are read according to the global
// configuration
func IngestOptions() (ingest.Options, error) {
	comma, err := csvutil.ParseDelimiter(config.CSVDelimiter)
	if err != nil {
		return ingest.Options{}, err
	}
	return ingest.Options{
		CSV:     csvutil.Options{Encoding: config.CSVEncoding, Comma: comma},
		DB:      DBOptions(),
		MaxRows: config.DumpMaxRows,
	}, nil
}
