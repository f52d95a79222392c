package describe

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	dberrors "github.com/lepinkainen/dbtools/internal/errors"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatMarkdown, FormatJSON, FormatYAML}

const legend = `* ` + "`Type = int!`" + `: the column stores reals but every value is integral
* ` + "`Type = int?`" + `: the column stores text but every value is a numeric code
* ` + "`Distinct`" + `: number of different values that are neither null nor empty
* ` + "`Empty`" + `: number of rows where the column is null or empty
`

// Render writes files to w in format.
func Render(w io.Writer, files []*File, format string) error {
	switch format {
	case FormatMarkdown, "":
		_, err := io.WriteString(w, Markdown(files))
		return err
	case FormatJSON:
		data, err := json.MarshalIndent(files, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(files); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	}
	return dberrors.NewInvalidConfigurationErrorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

const lineFormat = "| %-14s | %-4s | %9s | %9s | %8s | %5s |\n"

// Markdown renders files as one markdown section per file and a table per
// database table.
func Markdown(files []*File) string {
	var b strings.Builder
	b.WriteString(legend)
	for _, f := range files {
		fmt.Fprintf(&b, "\n# %s\n\nblake3 `%s`, %d bytes\n", f.Name(), f.Checksum, f.Size)
		for _, t := range f.Tables {
			fmt.Fprintf(&b, "\n## %s (%d rows)\n\n", t.Name, t.Rows)
			fmt.Fprintf(&b, lineFormat, "Column", "Type", "Min", "Max", "Distinct", "Empty")
			fmt.Fprintf(&b, "|:%s|:%s|%s:|%s:|%s:|%s:|\n",
				strings.Repeat("-", 15), strings.Repeat("-", 5),
				strings.Repeat("-", 10), strings.Repeat("-", 10),
				strings.Repeat("-", 9), strings.Repeat("-", 6))
			for _, c := range t.Columns {
				fmt.Fprintf(&b, lineFormat,
					cell(c.Name), cell(c.Type), cell(c.Min), cell(c.Max),
					cell(c.Distinct), cell(c.Empty))
			}
		}
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(v any) string {
	if v == nil {
		return ""
	}
	return cellEscaper.Replace(fmt.Sprint(v))
}
