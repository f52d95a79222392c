package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options configures CSV decoding.
type Options struct {
	// Encoding is a WHATWG encoding label ("utf-8", "windows-1252", "latin1"...).
	// Empty means UTF-8. A byte order mark always wins over it.
	Encoding string
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// ParseDelimiter turns a configured delimiter ("," ";" "\t" "tab") into a rune.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, dberrors.NewInvalidConfigurationErrorf("invalid CSV delimiter %q", s)
	}
	return r[0], nil
}

// NewReader returns a lenient csv.Reader over r decoded to UTF-8.
func NewReader(r io.Reader, opts Options) (*csv.Reader, error) {
	label := opts.Encoding
	if label == "" {
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, dberrors.NewInvalidConfigurationErrorf("unknown CSV encoding %q", opts.Encoding)
	}

	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())))
	reader.Comma = ','
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, nil
}

// ProcessCSV reads filename, passes the header to onHeader (which may be
// nil) and every data record to onRecord. The header is the first row with
// a non-blank cell; blank records are skipped. It returns the header.
func ProcessCSV(filename string, opts Options, onHeader, onRecord func(record []string) error) ([]string, error) {
	csvFile, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = csvFile.Close() }()

	reader, err := NewReader(csvFile, opts)
	if err != nil {
		return nil, err
	}

	var header []string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return header, fmt.Errorf("failed to read %s line %d: %w", filename, line, err)
		}
		if Blank(record) {
			continue
		}
		if header == nil {
			header = record
			slog.Debug("csv header", "file", filename, "line", line, "columns", len(header))
			if onHeader != nil {
				if err := onHeader(header); err != nil {
					return header, err
				}
			}
			continue
		}
		if err := onRecord(record); err != nil {
			return header, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
	}
	if header == nil {
		return nil, fmt.Errorf("CSV file %s has no header", filename)
	}
	return header, nil
}

// Blank reports whether every cell of record is empty or whitespace.
func Blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
