package literal

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// smartPunctuation folds typographic quotes and the em dash to their ASCII
// equivalents before escaping.
var smartPunctuation = runes.Map(func(r rune) rune {
	switch r {
	case '\u2018', '\u2019':
		return '\''
	case '\u201c', '\u201d':
		return '"'
	case '\u2014':
		return '-'
	}
	return r
})

// normalize returns s as UTF-8 with smart punctuation folded. Input that is
// not valid UTF-8 is taken to be Windows-1252, which is where bytes like 0x91
// (left single quote) and 0x97 (em dash) come from.
func normalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		decoded, err := charmap.Windows1252.NewDecoder().String(s)
		if err != nil {
			return "", err
		}
		s = decoded
	}
	out, _, err := transform.String(smartPunctuation, s)
	return out, err
}
