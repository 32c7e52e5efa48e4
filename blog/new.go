package blog

import (
	"errors"
	"io"
	"log/slog"
)

// Config defines how log lines are emitted. The level meanings follow syslog:
//
//	-1: suppress all output
//	0: default, which is 6
//	3: log errors
//	4: log warnings and above
//	6: log info and above
//	7: log debug and above
type Config struct {
	// StdoutLevel is the most verbose level written to the configured writer.
	StdoutLevel int `yaml:"stdoutLevel" json:"stdoutLevel" validate:"min=-1,max=7"`
	// TextFormat causes logs to be output via slog's TextHandler instead of the
	// default JSONHandler. This is useful for log readability in local dev.
	TextFormat bool `yaml:"textFormat" json:"textFormat"`
	// Checksum prefixes each line with its CRC32, for shipping through
	// pipelines that may corrupt or truncate lines.
	Checksum bool `yaml:"checksum" json:"checksum"`
}

// configToSlogLevel maps the integers used in our log config (which
// originally come from syslog levels) to the values used by slog.
func configToSlogLevel(l int) slog.Level {
	switch l {
	case 1, 2, 3:
		return slog.LevelError
	case 4, 5:
		return slog.LevelWarn
	case 6:
		return slog.LevelInfo
	case 7:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New returns a slog.Logger which writes to w as configured. Audit records
// are tagged with `[AUDIT] `.
func New(conf Config, w io.Writer) (*slog.Logger, error) {
	if conf.StdoutLevel < 0 {
		return nil, errors.New("StdoutLevel is negative; use Discard for a logger that writes nothing")
	}
	if w == nil {
		return nil, errors.New("nil writer")
	}
	if conf.Checksum {
		w = newChecksumWriter(w)
	}

	opts := &slog.HandlerOptions{Level: configToSlogLevel(conf.StdoutLevel)}
	var h slog.Handler
	if conf.TextFormat {
		h = newAuditHandler(slog.NewTextHandler, w, opts)
	} else {
		h = newAuditHandler(slog.NewJSONHandler, w, opts)
	}
	return slog.New(h), nil
}

// Discard returns a logger that drops everything. It is the fallback for
// library callers that don't supply a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
