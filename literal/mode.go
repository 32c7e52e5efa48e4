package literal

import (
	"strings"
)

// Mode is the string-literal escaping rule of a store session. MySQL escapes
// with backslashes unless the session's sql_mode contains
// NO_BACKSLASH_ESCAPES, in which case only doubled quotes are recognized.
type Mode int

const (
	Backslash Mode = iota
	QuoteDoubling
)

func (m Mode) String() string {
	if m == QuoteDoubling {
		return "quote-doubling"
	}
	return "backslash"
}

// BackslashEscapes reports whether a backslash inside a quoted literal
// escapes the following character.
func (m Mode) BackslashEscapes() bool {
	return m == Backslash
}

// Escape escapes s for use between single quotes. The backslash rule is the
// one go-sql-driver/mysql applies when it interpolates parameters client-side,
// which in turn matches mysql_real_escape_string for ASCII-compatible
// character sets.
func (m Mode) Escape(s string) string {
	if m == QuoteDoubling {
		return strings.ReplaceAll(s, "'", "''")
	}

	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\x00':
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\x1a':
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescape reverses Escape for the body of a literal. Backslash sequences
// MySQL does not define are reduced to the escaped character, as the server
// does, except for \% and \_ which the server keeps verbatim.
func (m Mode) unescape(s string) string {
	if m == QuoteDoubling {
		return strings.ReplaceAll(s, "''", "'")
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' && i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch next := s[i]; next {
		case '0':
			b.WriteByte('\x00')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'Z':
			b.WriteByte('\x1a')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteByte(next)
		default:
			b.WriteByte(next)
		}
	}
	return b.String()
}
