package sqltmpl

import (
	"strings"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
)

// SegmentKind identifies the lexical region a Segment covers.
type SegmentKind int

const (
	// Code is anything outside literals and comments: keywords, identifiers,
	// operators, numbers and placeholders.
	Code SegmentKind = iota
	// Literal is a single-quoted string literal, quotes included.
	Literal
	// Comment is a `#`, `-- ` or `/* */` comment, delimiters included. A line
	// comment does not include its terminating newline.
	Comment
)

func (k SegmentKind) String() string {
	switch k {
	case Code:
		return "code"
	case Literal:
		return "literal"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

// Segment is one contiguous region of a statement.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Offset int
	// Executable is set for MySQL and MariaDB executable comments (`/*!` and
	// `/*M!`), whose contents the server runs as part of the statement.
	Executable bool
}

// Lex splits s into code, literal and comment segments. Backslashes inside
// literals escape the next byte only when mode says so. Double quotes and
// backticks are refused outright in code: depending on sql_mode a double
// quote opens either a string or an identifier, and neither form is needed
// by a template.
func Lex(s string, mode literal.Mode) ([]Segment, error) {
	var segs []Segment
	codeStart := 0
	flushCode := func(end int) {
		if end > codeStart {
			segs = append(segs, Segment{Kind: Code, Text: s[codeStart:end], Offset: codeStart})
		}
	}

	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '\'':
			end, err := scanLiteral(s, i, mode)
			if err != nil {
				return nil, err
			}
			flushCode(i)
			segs = append(segs, Segment{Kind: Literal, Text: s[i:end], Offset: i})
			i, codeStart = end, end
		case c == '"' || c == '`':
			return nil, berrors.TemplateError("unsupported quote character %q at offset %d", c, i)
		case c == '#' || isDashComment(s, i):
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				end = len(s)
			} else {
				end += i
			}
			flushCode(i)
			segs = append(segs, Segment{Kind: Comment, Text: s[i:end], Offset: i})
			i, codeStart = end, end
		case c == '/' && strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return nil, berrors.TemplateError("unterminated comment at offset %d", i)
			}
			end += i + 4
			flushCode(i)
			text := s[i:end]
			segs = append(segs, Segment{
				Kind:       Comment,
				Text:       text,
				Offset:     i,
				Executable: strings.HasPrefix(text, "/*!") || strings.HasPrefix(text, "/*M!"),
			})
			i, codeStart = end, end
		default:
			i++
		}
	}
	flushCode(len(s))
	return segs, nil
}

// scanLiteral returns the offset just past the literal opening at start.
func scanLiteral(s string, start int, mode literal.Mode) (int, error) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if mode.BackslashEscapes() {
				i++
			}
		case '\'':
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, berrors.TemplateError("unterminated string literal at offset %d", start)
}

// isDashComment reports whether a `--` comment starts at i. MySQL only treats
// `--` as a comment when it is followed by whitespace or a control character.
func isDashComment(s string, i int) bool {
	if !strings.HasPrefix(s[i:], "--") {
		return false
	}
	if i+2 == len(s) {
		return true
	}
	return s[i+2] <= ' '
}
