package export

import "strings"

// SplitStatements splits a script on the semicolons that end statements.
// Semicolons inside quotes, brackets and comments are left alone, and
// pieces holding only comments are dropped.
func SplitStatements(script string) []string {
	var (
		out     []string
		start   int
		content bool
	)
	flush := func(end int) {
		if content {
			out = append(out, strings.TrimSpace(script[start:end]))
		}
		start = end + 1
		content = false
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == ';':
			flush(i)
			continue
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			if j := strings.IndexByte(script[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(script)
			}
			continue
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			if j := strings.Index(script[i+2:], "*/"); j >= 0 {
				i += j + 3
			} else {
				i = len(script)
			}
			continue
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			// doubled quotes are an escaped quote; scanning on from the
			// second one lands on the same state
			if j := strings.IndexByte(script[i+1:], closing); j >= 0 {
				i += j + 1
			} else {
				i = len(script)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		}
		content = true
	}
	flush(len(script))
	return out
}
