// Package guard decides whether a fully substituted statement may run.
package guard

import (
	"fmt"
	"regexp"
	"strings"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
	"github.com/querysafe/querysafe/sqltmpl"
)

// Kind is the command class of an admitted statement.
type Kind int

const (
	Select Kind = iota
	Insert
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Select:
		return "select"
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retrieval reports whether statements of this kind return rows.
func (k Kind) Retrieval() bool {
	return k == Select
}

// DeletionPolicy controls whether DELETE statements are admitted.
type DeletionPolicy int

const (
	// SoftDeleteOnly never admits DELETE; rows are expected to be flagged as
	// deleted with an UPDATE instead.
	SoftDeleteOnly DeletionPolicy = iota
	// LimitedHardDelete admits DELETE statements that carry a LIMIT clause.
	LimitedHardDelete
)

func (p DeletionPolicy) String() string {
	switch p {
	case SoftDeleteOnly:
		return "soft-delete-only"
	case LimitedHardDelete:
		return "limited-hard-delete"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// UnmarshalText parses the String form of a DeletionPolicy, so that it can be
// set from YAML and JSON configuration. An empty value selects
// SoftDeleteOnly.
func (p *DeletionPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "soft-delete-only":
		*p = SoftDeleteOnly
	case "limited-hard-delete":
		*p = LimitedHardDelete
	default:
		return fmt.Errorf("unknown deletion policy %q", text)
	}
	return nil
}

func (p DeletionPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config is the construction-time configuration of a Guard.
type Config struct {
	Deletion DeletionPolicy `yaml:"deletion" json:"deletion"`
}

var (
	leadingKeywordRE = regexp.MustCompile(`^[A-Za-z]+`)
	limitRE          = regexp.MustCompile(`(?i)\bLIMIT\b`)
)

// Guard classifies statements and refuses everything outside its allow-list.
type Guard struct {
	cfg  Config
	mode literal.Mode
}

// New returns a Guard that lexes statements with mode, which must be the
// escaping mode the statements were built with.
func New(cfg Config, mode literal.Mode) *Guard {
	return &Guard{cfg: cfg, mode: mode}
}

// Classify returns the Kind of stmt, or a Guard error if stmt may not run.
// The decision rests on the first keyword after any leading whitespace and
// comments. Statements that carry a second statement after a semicolon, or an
// executable comment anywhere, are refused whatever their first keyword.
func (g *Guard) Classify(stmt string) (Kind, error) {
	segs, err := sqltmpl.Lex(stmt, g.mode)
	if err != nil {
		return 0, berrors.Wrap(berrors.Guard, err, "statement does not lex")
	}

	keyword := ""
	sawKeyword := false
	terminated := false
	for _, seg := range segs {
		if seg.Kind == sqltmpl.Comment {
			if seg.Executable {
				return 0, berrors.GuardError("executable comment at offset %d", seg.Offset)
			}
			continue
		}
		if terminated {
			if seg.Kind != sqltmpl.Code || strings.TrimSpace(seg.Text) != "" {
				return 0, berrors.GuardError("multiple statements")
			}
			continue
		}
		text := seg.Text
		if !sawKeyword {
			trimmed := strings.TrimLeft(text, " \t\r\n\f\v")
			if trimmed == "" && seg.Kind == sqltmpl.Code {
				continue
			}
			sawKeyword = true
			if seg.Kind == sqltmpl.Code {
				keyword = leadingKeywordRE.FindString(trimmed)
			}
		}
		if seg.Kind != sqltmpl.Code {
			continue
		}
		semi := strings.IndexByte(text, ';')
		if semi < 0 {
			continue
		}
		if strings.TrimSpace(text[semi+1:]) != "" {
			return 0, berrors.GuardError("multiple statements")
		}
		terminated = true
	}

	if !sawKeyword {
		return 0, berrors.GuardError("empty statement")
	}

	switch strings.ToUpper(keyword) {
	case "SELECT":
		return Select, nil
	case "INSERT":
		return Insert, nil
	case "UPDATE":
		return Update, nil
	case "DELETE":
		if g.cfg.Deletion != LimitedHardDelete {
			return 0, berrors.GuardError("disallowed command %q: deletion policy is %s", "DELETE", g.cfg.Deletion)
		}
		if !hasLimit(segs) {
			return 0, berrors.GuardError("disallowed command %q without LIMIT", "DELETE")
		}
		return Delete, nil
	case "":
		return 0, berrors.GuardError("disallowed command: statement does not start with a keyword")
	default:
		return 0, berrors.GuardError("disallowed command %q", strings.ToUpper(keyword))
	}
}

// hasLimit reports whether the statement itself has a LIMIT clause. A LIMIT
// inside parentheses belongs to a subquery and does not count.
func hasLimit(segs []sqltmpl.Segment) bool {
	depth := 0
	for _, seg := range segs {
		if seg.Kind != sqltmpl.Code {
			continue
		}
		matches := limitRE.FindAllStringIndex(seg.Text, -1)
		next := 0
		for i := 0; i < len(seg.Text); i++ {
			if next < len(matches) && i == matches[next][0] {
				if depth == 0 {
					return true
				}
				next++
			}
			switch seg.Text[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
	}
	return false
}
