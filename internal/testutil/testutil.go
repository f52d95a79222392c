// Package testutil provides sandboxed file system and SQLite fixtures for
// dbtools tests.
package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/lepinkainen/dbtools/internal/dblite"
)

// TestEnv is a temporary directory that every path handed out is checked
// against. It is removed when the test completes.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

// NewTestEnv creates a new sandboxed test environment.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{
		t:       t,
		rootDir: t.TempDir(),
	}
}

// RootDir returns the root directory of the test environment.
func (e *TestEnv) RootDir() string {
	return e.rootDir
}

// Path returns an absolute path inside the environment and fails the test
// if elem would escape it.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()

	cleanPath := filepath.Clean(filepath.Join(e.rootDir, filepath.Join(elem...)))
	root := filepath.Clean(e.rootDir)
	if cleanPath != root && !strings.HasPrefix(cleanPath, root+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", cleanPath, e.rootDir)
	}
	return cleanPath
}

// WriteFile writes content to path, creating parent directories.
func (e *TestEnv) WriteFile(path string, content []byte) string {
	e.t.Helper()

	absPath := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", absPath, err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		e.t.Fatalf("failed to write file %q: %v", absPath, err)
	}
	return absPath
}

// WriteFileString writes a string to path and returns its absolute path.
func (e *TestEnv) WriteFileString(path, content string) string {
	e.t.Helper()
	return e.WriteFile(path, []byte(content))
}

// ReadFileString reads a file of the environment.
func (e *TestEnv) ReadFileString(path string) string {
	e.t.Helper()

	content, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read file %q: %v", path, err)
	}
	return string(content)
}

// MkdirAll creates a directory and its parents.
func (e *TestEnv) MkdirAll(path string) string {
	e.t.Helper()

	absPath := e.Path(path)
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		e.t.Fatalf("failed to create directory %q: %v", absPath, err)
	}
	return absPath
}

// FileExists checks if a file exists within the test environment.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()
	_, err := os.Stat(e.Path(path))
	return err == nil
}

// ListFiles returns the sorted entry names of a directory.
func (e *TestEnv) ListFiles(path string) []string {
	e.t.Helper()

	entries, err := os.ReadDir(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read directory %q: %v", path, err)
	}
	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	slices.Sort(files)
	return files
}

// Chdir changes the working directory until the test completes.
func (e *TestEnv) Chdir(path string) {
	e.t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		e.t.Fatalf("failed to get current directory: %v", err)
	}
	if err := os.Chdir(e.Path(path)); err != nil {
		e.t.Fatalf("failed to change directory to %q: %v", path, err)
	}
	e.t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			e.t.Errorf("failed to restore directory to %q: %v", origDir, err)
		}
	})
}

// SetEnv sets an environment variable and restores it when the test completes.
func (e *TestEnv) SetEnv(key, value string) {
	e.t.Helper()

	oldValue, hadValue := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		e.t.Fatalf("failed to set environment variable %q: %v", key, err)
	}
	e.t.Cleanup(func() {
		if hadValue {
			_ = os.Setenv(key, oldValue)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// SQLiteFile creates a database file at path populated by script.
func (e *TestEnv) SQLiteFile(path, script string) string {
	e.t.Helper()

	absPath := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", absPath, err)
	}
	db, err := dblite.Open(absPath)
	if err != nil {
		e.t.Fatalf("failed to create database %q: %v", absPath, err)
	}
	if err := db.ExecuteScript(script); err != nil {
		_ = db.Close(false)
		e.t.Fatalf("failed to populate %q: %v", absPath, err)
	}
	if err := db.Close(false); err != nil {
		e.t.Fatalf("failed to close %q: %v", absPath, err)
	}
	return absPath
}

// ZipFile writes a zip archive holding files (member name -> content).
func (e *TestEnv) ZipFile(path string, files map[string]string) string {
	e.t.Helper()

	absPath := e.Path(path)
	f, err := os.Create(absPath)
	if err != nil {
		e.t.Fatalf("failed to create %q: %v", absPath, err)
	}
	defer func() { _ = f.Close() }()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			e.t.Fatalf("failed to add %q to %q: %v", name, absPath, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			e.t.Fatalf("failed to write %q to %q: %v", name, absPath, err)
		}
	}
	if err := zw.Close(); err != nil {
		e.t.Fatalf("failed to finish %q: %v", absPath, err)
	}
	return absPath
}
