// Package display escapes stored text for presentation. It is never applied
// on the way into the database; callers use it when they put values read back
// out of it into HTML.
package display

import (
	"golang.org/x/net/html"
)

// HTML escapes s for use in HTML text and quoted attribute values. The
// characters & < > " ' and carriage return are replaced by entities.
func HTML(s string) string {
	return html.EscapeString(s)
}
