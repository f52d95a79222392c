// Package anonymize copies a SQLite database replacing the distinct values
// of selected columns with surrogates. Equal values get equal surrogates
// across all tables, so joins, multiplicities and null positions survive.
package anonymize

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
)

// FuncName is the SQL function that performs the substitution.
const FuncName = "mk_anon"

const (
	relaxPragmas = `PRAGMA foreign_keys = OFF;
PRAGMA recursive_triggers = OFF;
PRAGMA synchronous = OFF;
PRAGMA journal_mode = OFF;`
	restorePragmas = `PRAGMA foreign_keys = ON;
PRAGMA recursive_triggers = ON;
PRAGMA synchronous = FULL;
PRAGMA journal_mode = DELETE;`
)

// Result summarizes a run.
type Result struct {
	Output      string
	Targets     map[string][]string
	Strings     int
	Numbers     int
	Fingerprint string
}

// OutputPath is the default destination for src: "data.sqlite" -> "data.anon.sqlite".
func OutputPath(src string) string {
	return fileutil.TrimExt(src) + ".anon.sqlite"
}

// Anonymize writes an anonymized copy of src to out. out must not exist;
// it is removed again if anything fails.
func Anonymize(src, out string, selectors []string, opts ...dblite.Option) (*Result, error) {
	if err := fileutil.RequireFile(src); err != nil {
		return nil, err
	}
	if err := fileutil.RequireAbsent(out); err != nil {
		return nil, err
	}
	sel, err := ParseSelection(selectors)
	if err != nil {
		return nil, err
	}

	source, err := dblite.Open(src, dblite.WithReadOnly())
	if err != nil {
		return nil, err
	}
	defer func() { _ = source.Close(false) }()

	universe, err := Scan(source, sel)
	if err != nil {
		return nil, err
	}
	if universe.Empty() {
		return nil, dberrors.NewNothingToAnonymizeError(src)
	}

	mapping := BuildMapping(universe)
	result := &Result{
		Output:      out,
		Targets:     universe.Targets,
		Strings:     len(universe.Strings),
		Numbers:     len(universe.Numbers),
		Fingerprint: universe.Fingerprint(),
	}
	slog.Info("anonymizing", "source", src, "tables", len(universe.Targets),
		"strings", result.Strings, "numbers", result.Numbers, "fingerprint", result.Fingerprint[:16])

	dst, err := dblite.Open(out, opts...)
	if err != nil {
		return nil, err
	}
	if err := Apply(source, dst, universe, mapping); err != nil {
		_ = dst.Close(false)
		return nil, errors.Join(err, removeOutput(out))
	}
	if err := dst.Close(true); err != nil {
		return nil, errors.Join(err, removeOutput(out))
	}
	return result, nil
}

// Apply clones source into dst and rewrites the target columns of dst
// through mapping, with foreign keys, triggers and journaling relaxed
// for the duration.
func Apply(source, dst *dblite.DB, universe *Universe, mapping *Mapping) error {
	err := dst.RegisterFunction(FuncName, 1, func(args ...any) (any, error) {
		return mapping.Lookup(args[0])
	})
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", FuncName, err)
	}
	if err := source.Backup(dst); err != nil {
		return fmt.Errorf("failed to copy %s: %w", source.Path(), err)
	}

	if err := dst.ExecuteScript(relaxPragmas); err != nil {
		return err
	}
	for _, stmt := range universe.Statements(FuncName) {
		slog.Debug("rewriting", "statement", stmt)
		if err := dst.Execute(stmt); err != nil {
			return err
		}
	}
	return dst.ExecuteScript(restorePragmas)
}

func removeOutput(path string) error {
	for _, p := range []string{path, path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}
