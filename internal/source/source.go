// Package source describes the input files of a build and the table
// modifiers that follow them on the command line.
package source

import (
	"path/filepath"
	"slices"
	"strings"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"github.com/lepinkainen/dbtools/internal/fileutil"
	"github.com/lepinkainen/dbtools/internal/ingest"
)

// Source is one input file plus the table selection applied to it.
// Values are immutable; the With* methods return validated copies.
type Source struct {
	File    string
	Exclude []string
	Include []string
	Rename  []string
	Prefix  string
	Suffix  string
}

// Option modifies a Source under construction.
type Option func(*Source)

// Exclude drops the named tables.
func Exclude(tables ...string) Option {
	return func(s *Source) { s.Exclude = union(s.Exclude, tables) }
}

// Include keeps only the named tables.
func Include(tables ...string) Option {
	return func(s *Source) { s.Include = union(s.Include, tables) }
}

// Rename assigns new names to the kept tables in name order.
func Rename(names ...string) Option {
	return func(s *Source) { s.Rename = append(slices.Clone(s.Rename), names...) }
}

// Prefix is prepended to every kept table name.
func Prefix(p string) Option {
	return func(s *Source) { s.Prefix = p }
}

// Suffix is appended to every kept table name.
func Suffix(sfx string) Option {
	return func(s *Source) { s.Suffix = sfx }
}

// New returns a validated Source for file.
func New(file string, opts ...Option) (Source, error) {
	return Source{File: file}.With(opts...)
}

// With returns a copy of s with opts applied.
func (s Source) With(opts ...Option) (Source, error) {
	nw := Source{
		File:    s.File,
		Exclude: slices.Clone(s.Exclude),
		Include: slices.Clone(s.Include),
		Rename:  slices.Clone(s.Rename),
		Prefix:  s.Prefix,
		Suffix:  s.Suffix,
	}
	for _, opt := range opts {
		opt(&nw)
	}
	if err := nw.Validate(); err != nil {
		return Source{}, err
	}
	return nw, nil
}

// WithExclude adds tables to the exclusion list.
func (s Source) WithExclude(tables ...string) (Source, error) { return s.With(Exclude(tables...)) }

// WithInclude adds tables to the inclusion list.
func (s Source) WithInclude(tables ...string) (Source, error) { return s.With(Include(tables...)) }

// WithRename appends new table names.
func (s Source) WithRename(names ...string) (Source, error) { return s.With(Rename(names...)) }

// WithPrefix replaces the table prefix.
func (s Source) WithPrefix(p string) (Source, error) { return s.With(Prefix(p)) }

// WithSuffix replaces the table suffix.
func (s Source) WithSuffix(sfx string) (Source, error) { return s.With(Suffix(sfx)) }

// Validate rejects sources that both exclude and include tables.
func (s Source) Validate() error {
	if s.File == "" {
		return dberrors.NewInvalidConfigurationError("source without a file")
	}
	if len(s.Exclude) > 0 && len(s.Include) > 0 {
		return dberrors.NewInvalidConfigurationErrorf("%s: exclude and include can't be combined", s.File)
	}
	return nil
}

// Name is the base name of the file.
func (s Source) Name() string {
	return filepath.Base(s.File)
}

func union(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseArgs turns command line tokens into sources. A token naming an
// existing file starts a new source; the modifiers after it apply to it:
//
//	!t     exclude table t
//	!!t    keep only t (repeatable)
//	=name  rename the next kept table, in name order
//	pre_   prefix every table with pre_
//	_suf   suffix every table with _suf
func ParseArgs(args []string) ([]Source, error) {
	var sources []Source
	seen := make(map[string]bool)

	for _, arg := range args {
		if fileutil.FileExists(arg) {
			if !ingest.Supported(arg) {
				return nil, dberrors.NewInvalidConfigurationErrorf("%s is not a supported input", arg)
			}
			if seen[arg] {
				continue
			}
			seen[arg] = true
			src, err := New(arg)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}

		opt, err := parseModifier(arg)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return nil, dberrors.NewInvalidConfigurationErrorf("modifier %s can't be used before a file", arg)
		}
		last := len(sources) - 1
		if sources[last], err = sources[last].With(opt); err != nil {
			return nil, err
		}
	}

	if len(sources) == 0 {
		return nil, dberrors.NewInvalidConfigurationError("no input files")
	}
	return sources, nil
}

func parseModifier(arg string) (Option, error) {
	named := func(name string, opt func(string) Option) (Option, error) {
		if name == "" {
			return nil, dberrors.NewInvalidConfigurationErrorf("modifier %s needs a name", arg)
		}
		return opt(name), nil
	}

	switch {
	case strings.HasPrefix(arg, "!!"):
		return named(arg[2:], func(n string) Option { return Include(n) })
	case strings.HasPrefix(arg, "!"):
		return named(arg[1:], func(n string) Option { return Exclude(n) })
	case strings.HasPrefix(arg, "="):
		return named(arg[1:], func(n string) Option { return Rename(n) })
	case strings.HasSuffix(arg, "_"):
		return named(strings.Trim(arg, "_"), func(string) Option { return Prefix(arg) })
	case strings.HasPrefix(arg, "_"):
		return named(strings.Trim(arg, "_"), func(string) Option { return Suffix(arg) })
	}
	return nil, dberrors.NewNotFoundError(arg)
}
