package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
)

// FileExists checks if a file exists at the given path
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// RequireFile returns a NotFoundError unless filePath is an existing file
func RequireFile(filePath string) error {
	if !FileExists(filePath) {
		return dberrors.NewNotFoundError(filePath)
	}
	return nil
}

// RequireAbsent refuses to reuse an output path. Outputs are never overwritten.
func RequireAbsent(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return dberrors.NewInvalidConfigurationErrorf("%s already exists", filePath)
	}
	return nil
}

// TrimExt removes the last extension from path ("a/b.db" -> "a/b")
func TrimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Ext returns the lower-cased extension of path without the dot
func Ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// BaseName returns the file name of path without its extension
func BaseName(path string) string {
	return TrimExt(filepath.Base(path))
}

// RelHome shortens paths under $HOME to ~
func RelHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(filepath.Separator)) {
		return "~" + path[len(home):]
	}
	return path
}

// WriteFileWithOverwrite writes data to a file, respecting the overwrite flag
// Returns true if the file was written, false if it was skipped
func WriteFileWithOverwrite(filePath string, data []byte, perm os.FileMode, overwrite bool) (bool, error) {
	if FileExists(filePath) && !overwrite {
		return false, nil
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}

	if err := os.WriteFile(filePath, data, perm); err != nil {
		return false, err
	}

	return true, nil
}

// WriteJSONFile writes data as JSON to a file, respecting the overwrite flag
// Returns true if the file was written, false if it was skipped
func WriteJSONFile(data any, filePath string, overwrite bool) (bool, error) {
	if FileExists(filePath) && !overwrite {
		slog.Info("JSON file already exists, skipping", "filename", filePath, "overwrite", overwrite)
		return false, nil
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	slog.Info("Writing JSON file", "filename", filePath, "overwrite", overwrite)
	return WriteFileWithOverwrite(filePath, jsonData, 0644, true)
}
