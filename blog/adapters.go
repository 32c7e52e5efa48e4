// This file contains adapters which route the logs of third-party libraries
// through our slog.Logger.
package blog

import (
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// InitAdapters points the mysql driver's logger and the stdlib's default
// logger at the given slog.Logger.
func InitAdapters(logger *slog.Logger) {
	_ = mysql.SetLogger(mysqlLogger{logger})
	log.SetOutput(logWriter{logger})
	log.SetFlags(0)
}

// mysqlLogger implements the mysql.Logger interface.
type mysqlLogger struct {
	*slog.Logger
}

func (log mysqlLogger) Print(v ...any) {
	log.Error(fmt.Sprintf("[mysql] %s", fmt.Sprint(v...)), Category("database"))
}

// logWriter implements the io.Writer interface.
type logWriter struct {
	*slog.Logger
}

func (lw logWriter) Write(p []byte) (int, error) {
	// Lines received by logWriter will always have a trailing newline.
	lw.Logger.Info(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
