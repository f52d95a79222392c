package source

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lepinkainen/dbtools/internal/dblite"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/ingest"
)

// Table is one table of a loaded source.
type Table struct {
	// Name in the source file.
	Name string
	// Final name after renames and prefix/suffix, "" when dropped.
	Renamed string
	Dropped bool
}

// Loaded is a source read into memory with its modifiers applied.
type Loaded struct {
	Source Source
	DB     *dblite.DB
	Tables []Table
}

// Close releases the in-memory store.
func (l *Loaded) Close() error {
	return l.DB.Close(false)
}

// Load reads src and applies its table modifiers. The caller closes the
// result.
func Load(ctx context.Context, src Source, opts ingest.Options) (*Loaded, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	db, err := ingest.Open(ctx, src.File, opts)
	if err != nil {
		return nil, err
	}
	loaded := &Loaded{Source: src, DB: db}
	if err := loaded.apply(); err != nil {
		_ = db.Close(false)
		return nil, err
	}
	return loaded, nil
}

func (l *Loaded) apply() error {
	src := l.Source
	all, err := l.DB.Tables()
	if err != nil {
		return err
	}
	all = slices.Clone(all)

	for _, t := range slices.Concat(src.Exclude, src.Include) {
		if !slices.Contains(all, t) {
			slog.Warn("table not found", "file", src.File, "table", t)
		}
	}

	var kept []string
	for _, t := range all {
		drop := slices.Contains(src.Exclude, t) || (len(src.Include) > 0 && !slices.Contains(src.Include, t))
		if !drop {
			kept = append(kept, t)
			continue
		}
		l.Tables = append(l.Tables, Table{Name: t, Dropped: true})
		if err := l.DB.Execute(fmt.Sprintf("DROP TABLE IF EXISTS %s", dblite.QuoteIdent(t))); err != nil {
			return err
		}
	}

	if len(src.Rename) > len(kept) {
		return dberrors.NewInvalidConfigurationErrorf("%s: %d new names for %d tables", src.File, len(src.Rename), len(kept))
	}

	for i, t := range kept {
		name := t
		if i < len(src.Rename) {
			name = src.Rename[i]
		}
		name = src.Prefix + name + src.Suffix
		if name != t {
			if err := l.DB.Execute(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", dblite.QuoteIdent(t), dblite.QuoteIdent(name))); err != nil {
				return err
			}
		}
		l.Tables = append(l.Tables, Table{Name: t, Renamed: name})
	}

	slices.SortFunc(l.Tables, func(a, b Table) int { return cmp.Compare(a.Name, b.Name) })
	slog.Debug("source loaded", "file", src.File, "kept", len(kept), "dropped", len(all)-len(kept))
	return nil
}

// Kept returns the final names of the tables that survived.
func (l *Loaded) Kept() []string {
	var out []string
	for _, t := range l.Tables {
		if !t.Dropped {
			out = append(out, t.Renamed)
		}
	}
	return out
}

// Dropped returns the names of the removed tables.
func (l *Loaded) Dropped() []string {
	var out []string
	for _, t := range l.Tables {
		if t.Dropped {
			out = append(out, t.Name)
		}
	}
	return out
}
