package source

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lepinkainen/dbtools/internal/fileutil"
)

// Summary lists what happened to the tables of one source.
type Summary struct {
	File   string
	Tables []Table
}

// Summary returns the table outcome of l.
func (l *Loaded) Summary() Summary {
	return Summary{File: l.Source.File, Tables: l.Tables}
}

var markdownEscaper = strings.NewReplacer(`~`, `\~`)

// Markdown renders summaries as a nested list. Dropped tables are struck
// through.
func Markdown(summaries []Summary) string {
	var b strings.Builder
	for _, s := range summaries {
		b.WriteString("* " + fileutil.RelHome(s.File) + "\n")
		for _, t := range s.Tables {
			name := markdownEscaper.Replace(t.Name)
			switch {
			case t.Dropped:
				b.WriteString("    * ~~" + name + "~~\n")
			case t.Renamed != t.Name:
				b.WriteString("    * " + name + " -> " + markdownEscaper.Replace(t.Renamed) + "\n")
			default:
				b.WriteString("    * " + name + "\n")
			}
		}
	}
	return b.String()
}

type styles struct {
	file    lipgloss.Style
	table   lipgloss.Style
	renamed lipgloss.Style
	dropped lipgloss.Style
}

func newStyles() styles {
	return styles{
		file: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("110")),
		table: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		renamed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		dropped: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("241")),
	}
}

// Terminal renders summaries for an interactive terminal.
func Terminal(summaries []Summary) string {
	st := newStyles()
	var b strings.Builder
	for _, s := range summaries {
		b.WriteString(st.file.Render(fileutil.RelHome(s.File)) + "\n")
		for _, t := range s.Tables {
			switch {
			case t.Dropped:
				b.WriteString("  " + st.dropped.Render(t.Name) + "\n")
			case t.Renamed != t.Name:
				b.WriteString("  " + st.table.Render(t.Name) + " → " + st.renamed.Render(t.Renamed) + "\n")
			default:
				b.WriteString("  " + st.table.Render(t.Name) + "\n")
			}
		}
	}
	return b.String()
}
