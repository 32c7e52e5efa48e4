package literal

import (
	"math"
	"strconv"
	"strings"

	berrors "github.com/querysafe/querysafe/errors"
)

const (
	nullToken  = "NULL"
	trueToken  = "TRUE"
	falseToken = "FALSE"
	quote      = "'"
)

// Encoder renders Values as MySQL literals for one escaping Mode.
type Encoder struct {
	mode Mode
}

func NewEncoder(mode Mode) *Encoder {
	return &Encoder{mode: mode}
}

// Mode returns the escaping mode the Encoder was built for.
func (e *Encoder) Mode() Mode {
	return e.mode
}

// Encode returns the literal text for v. The result for a String is always
// single-quoted; no other kind is ever quoted.
func (e *Encoder) Encode(v Value) (string, error) {
	switch v.kind {
	case Null:
		return nullToken, nil
	case Bool:
		if v.b {
			return trueToken, nil
		}
		return falseToken, nil
	case Int:
		return strconv.FormatInt(v.i, 10), nil
	case Float:
		return formatFloat(v.f)
	case String:
		return e.encodeString(v.s)
	default:
		return "", berrors.EncodingError("unsupported value kind %s", v.kind)
	}
}

func (e *Encoder) encodeString(s string) (string, error) {
	normalized, err := normalize(s)
	if err != nil {
		return "", berrors.Wrap(berrors.Encoding, err, "normalizing string")
	}
	escaped := e.mode.Escape(normalized)
	if escaped == "" && s != "" {
		return "", berrors.EncodingError("escaping a %d-byte string produced nothing", len(s))
	}
	return quote + escaped + quote, nil
}

// formatFloat renders f in the shortest form that parses back to exactly f.
// Plain decimal notation is used for ordinary magnitudes; exponent notation
// only where the decimal form would run to dozens of digits.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", berrors.EncodingError("%v has no SQL literal", f)
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return strconv.FormatFloat(f, 'E', -1, 64), nil
}

// Unescape is the best-effort inverse of the String path of Encode: it strips
// one pair of surrounding single quotes, if present, and undoes mode's
// escapes. Folded punctuation is not restored. It is meant for re-presenting
// stored text, never for building new statements.
func Unescape(mode Mode, encoded string) (string, error) {
	body := encoded
	if strings.HasPrefix(body, quote) {
		if len(body) < 2 || !strings.HasSuffix(body, quote) {
			return "", berrors.EncodingError("unterminated quoted literal")
		}
		body = body[1 : len(body)-1]
	}
	return mode.unescape(body), nil
}
