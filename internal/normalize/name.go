package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Prefixes applied to normalized names that do not start with a letter.
const (
	TablePrefix  = "t"
	ColumnPrefix = "c"
)

var separators = regexp.MustCompile(`[\s_\-.()]+`)

// Letters that have no canonical decomposition into an ASCII base.
var replacements = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "AE", "ø", "o", "Ø", "O",
	"œ", "oe", "Œ", "OE", "ð", "d", "Ð", "D", "þ", "th", "Þ", "TH",
	"ł", "l", "Ł", "L", "đ", "d", "Đ", "D", "ı", "i",
)

func toASCII(s string) string {
	s = replacements.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '_'
		}
		return r
	}, folded)
}

// Name turns s into a lowercase ASCII identifier: accents are dropped, runs
// of blanks, '_', '-', '.', '(' and ')' collapse into one '_', and prefix is
// prepended when the result does not start with a letter.
func Name(s, prefix string) string {
	s = toASCII(strings.TrimSpace(s))
	s = separators.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_ ")
	s = strings.ToLower(s)
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = prefix + s
	}
	return s
}

// TableName normalizes a table name.
func TableName(s string) string {
	return Name(s, TablePrefix)
}

// ColumnName normalizes a column name.
func ColumnName(s string) string {
	return Name(s, ColumnPrefix)
}
