package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

var mdbTools = []string{"mdb-schema", "mdb-tables", "mdb-export"}

// mdb-schema emits bare varchar columns; they are loaded as TEXT
var bareVarchar = regexp.MustCompile(`(?m)\bvarchar($|,)`)

// HasRelations reports whether an mdb-schema script adds foreign key
// constraints with ALTER TABLE, which SQLite cannot run.
func HasRelations(schema string) bool {
	for line := range strings.Lines(schema) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ALTER TABLE ") && strings.Contains(line, "ADD CONSTRAINT") {
			return true
		}
	}
	return false
}

// FixSchema rewrites mdb-schema output for SQLite.
func FixSchema(schema string) string {
	return bareVarchar.ReplaceAllString(schema, "TEXT$1")
}

func runTool(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

func openMDB(ctx context.Context, path string, opts Options) (*dblite.DB, error) {
	for _, tool := range mdbTools {
		if _, err := exec.LookPath(tool); err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return nil, dberrors.NewInvalidConfigurationErrorf("reading %s requires mdbtools (%s not found)", path, tool)
			}
			return nil, err
		}
	}

	schema, err := runTool(ctx, "mdb-schema", path, "sqlite")
	if err != nil {
		return nil, err
	}
	if HasRelations(schema) {
		if schema, err = runTool(ctx, "mdb-schema", "--no-relations", path, "sqlite"); err != nil {
			return nil, err
		}
	}

	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*dblite.DB, error) {
		_ = mem.Close(false)
		return nil, err
	}

	if err := mem.ExecuteScript(FixSchema(schema)); err != nil {
		return fail(err)
	}

	tables, err := runTool(ctx, "mdb-tables", "-1", path)
	if err != nil {
		return fail(err)
	}
	for table := range strings.Lines(tables) {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		data, err := runTool(ctx, "mdb-export", "-I", "sqlite", "-D", "%Y-%m-%d %H:%M", path, table)
		if err != nil {
			return fail(err)
		}
		if data = strings.TrimSpace(data); data == "" {
			continue
		}
		if err := mem.ExecuteScript(data); err != nil {
			return fail(fmt.Errorf("failed to load table %s: %w", table, err))
		}
	}
	return mem, nil
}
