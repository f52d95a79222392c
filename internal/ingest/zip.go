package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lepinkainen/dbtools/internal/dblite"
)

// openZip ingests every supported member of the archive, nested archives
// included, and folds them into one store.
func openZip(ctx context.Context, path string, opts Options) (*dblite.DB, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	dir, err := os.MkdirTemp("", "dbtools-zip-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	mem, err := newMemory(opts)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*dblite.DB, error) {
		_ = mem.Close(false)
		return nil, err
	}

	first := true
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if !Supported(f.Name) {
			slog.Warn("skipping zip member", "zip", path, "member", f.Name)
			continue
		}

		// members are flattened into numbered directories so crafted names
		// cannot escape dir and equal base names cannot collide
		target := filepath.Join(dir, strconv.Itoa(i), filepath.Base(f.Name))
		if err := extract(f, target); err != nil {
			return fail(err)
		}

		sub, err := Open(ctx, target, opts)
		if err != nil {
			return fail(fmt.Errorf("%s in %s: %w", f.Name, path, err))
		}
		err = fold(mem, sub, first, opts)
		_ = sub.Close(false)
		if err != nil {
			return fail(fmt.Errorf("failed to merge %s from %s: %w", f.Name, path, err))
		}
		first = false
	}
	return mem, nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
