// Package sqltmpl substitutes encoded replacement values into SQL templates.
// Placeholders are written {0}, {1}, ... and may only appear in the code part
// of a template, never inside its string literals or comments.
package sqltmpl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
)

// placeholderRE matches anything that looks like a placeholder token. It is
// only used to find tokens in regions where none are allowed.
var placeholderRE = regexp.MustCompile(`\{[0-9]+\}`)

// Engine renders templates for one escaping mode.
type Engine struct {
	enc *literal.Encoder
}

// New returns an Engine that encodes values with enc and lexes templates with
// enc's mode.
func New(enc *literal.Encoder) *Engine {
	return &Engine{enc: enc}
}

// Mode returns the escaping mode the Engine lexes and encodes with.
func (e *Engine) Mode() literal.Mode {
	return e.enc.Mode()
}

// Substitute replaces every placeholder {i} in tmpl with the encoded form of
// vals[i]. Each placeholder is replaced exactly once, in a single left to
// right pass over the template, so text that arrives with a value is never
// itself treated as a placeholder. Every value must be referenced at least
// once. The returned statement is lexed again before it is returned, and any
// structural surprise is reported as a Template error.
func (e *Engine) Substitute(tmpl string, vals []literal.Value) (string, error) {
	encoded := make([]string, len(vals))
	for i, v := range vals {
		lit, err := e.enc.Encode(v)
		if err != nil {
			return "", fmt.Errorf("replacement %d: %w", i, err)
		}
		encoded[i] = lit
	}

	segs, err := Lex(tmpl, e.Mode())
	if err != nil {
		return "", err
	}

	used := make([]bool, len(vals))
	wantLiterals := 0
	var b strings.Builder
	b.Grow(len(tmpl) + totalLen(encoded))
	for _, seg := range segs {
		if seg.Kind != Code {
			loc := placeholderRE.FindStringIndex(seg.Text)
			if loc != nil {
				return "", berrors.TemplateError("placeholder inside a %s at offset %d", seg.Kind, seg.Offset+loc[0])
			}
			if seg.Kind == Literal {
				wantLiterals++
			}
			b.WriteString(seg.Text)
			continue
		}
		quoted, err := substituteCode(&b, seg, encoded, used)
		if err != nil {
			return "", err
		}
		wantLiterals += quoted
	}

	for i, u := range used {
		if !u {
			return "", berrors.TemplateError("unused replacement %d", i)
		}
	}

	out := b.String()
	err = e.verify(out, wantLiterals)
	if err != nil {
		return "", err
	}
	return out, nil
}

// substituteCode writes seg to b with each placeholder replaced, marking the
// replacements it consumes. It returns how many quoted literals it wrote.
func substituteCode(b *strings.Builder, seg Segment, encoded []string, used []bool) (int, error) {
	text := seg.Text
	quoted := 0
	lastEnd := -1
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			return quoted, nil
		}
		b.WriteString(text[:open])
		pos := len(seg.Text) - len(text) + open
		offset := seg.Offset + pos

		closing := strings.IndexByte(text[open:], '}')
		if closing < 0 {
			return 0, berrors.TemplateError("malformed placeholder at offset %d", offset)
		}
		idx, ok := parseIndex(text[open+1 : open+closing])
		if !ok {
			return 0, berrors.TemplateError("malformed placeholder at offset %d", offset)
		}
		if idx >= len(encoded) {
			return 0, berrors.TemplateError("missing replacement %d at offset %d", idx, offset)
		}
		end := pos + closing + 1
		if pos == lastEnd {
			return 0, berrors.TemplateError("placeholder at offset %d directly follows another placeholder", offset)
		}
		if pos > 0 && joinsToken(seg.Text[pos-1]) {
			return 0, berrors.TemplateError("placeholder at offset %d is adjacent to %q", offset, seg.Text[pos-1])
		}
		if end < len(seg.Text) && joinsToken(seg.Text[end]) {
			return 0, berrors.TemplateError("placeholder at offset %d is adjacent to %q", offset, seg.Text[end])
		}
		lastEnd = end
		if strings.HasPrefix(encoded[idx], "'") {
			quoted++
		}
		b.WriteString(encoded[idx])
		used[idx] = true
		text = text[open+closing+1:]
	}
}

// joinsToken reports whether c, placed directly against a substituted value,
// would merge with it into one token: identifier characters, digits, the
// decimal point and the user variable sigil.
func joinsToken(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '$', c == '.', c == '@':
		return true
	}
	return c >= 0x80
}

// parseIndex accepts only canonical non-negative decimals: no sign, no
// leading zeros, no surrounding space.
func parseIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// verify re-lexes a substituted statement. Whatever the encoder produced, the
// statement must still lex cleanly, carry no placeholder in its code, and hold
// exactly the string literals the template and its values put there. Two
// string values written back to back, as in {0}{1}, would otherwise lex as a
// single literal.
func (e *Engine) verify(stmt string, wantLiterals int) error {
	segs, err := Lex(stmt, e.Mode())
	if err != nil {
		return berrors.TemplateError("substituted statement is malformed: %s", err)
	}
	literals := 0
	for _, seg := range segs {
		switch seg.Kind {
		case Code:
			if placeholderRE.MatchString(seg.Text) {
				return berrors.TemplateError("substituted statement still contains a placeholder")
			}
		case Literal:
			literals++
		}
	}
	if literals != wantLiterals {
		return berrors.TemplateError("substituted statement has %d string literals, expected %d", literals, wantLiterals)
	}
	return nil
}

func totalLen(ss []string) int {
	n := 0
	for _, s := range ss {
		n += len(s)
	}
	return n
}
