// Command querysafe runs templated statements against a MySQL database. It
// reads one JSON request per line from stdin and writes one JSON response per
// line to stdout. Logs go to stderr.
//
// A request looks like
//
//	{"template": "SELECT name FROM users WHERE id = {0}", "replacements": [42], "single": true}
//
// "single" asks for exactly one row and "column" for one column of exactly
// one row. "html" escapes string results for embedding in HTML. A request
// carrying only "unescape" is answered with the display form of that encoded
// literal and never reaches the database. Failed requests are answered with
// the redacted error and the reference under which the detail was logged.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/querysafe/querysafe/blog"
	"github.com/querysafe/querysafe/cmd"
	"github.com/querysafe/querysafe/display"
	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/guard"
	"github.com/querysafe/querysafe/safedb"
)

// maxRequestSize bounds a single request line.
const maxRequestSize = 1 << 20

type Config struct {
	DB    cmd.DBConfig `yaml:"db" json:"db"`
	Guard guard.Config `yaml:"guard" json:"guard"`
	Log   blog.Config  `yaml:"log" json:"log"`

	// DebugAddr is the address to serve /metrics on. Empty disables it.
	DebugAddr string `yaml:"debugAddr" json:"debugAddr" validate:"omitempty,hostname_port"`
}

type request struct {
	Template     string `json:"template"`
	Replacements []any  `json:"replacements"`
	Single       bool   `json:"single"`
	Column       string `json:"column"`
	HTML         bool   `json:"html"`
	Unescape     string `json:"unescape"`
}

type response struct {
	Kind         string       `json:"kind,omitempty"`
	Rows         []safedb.Row `json:"rows,omitempty"`
	Columns      []string     `json:"columns,omitempty"`
	RowCount     *int64       `json:"rowCount,omitempty"`
	LastInsertID *int64       `json:"lastInsertId,omitempty"`
	Row          safedb.Row   `json:"row,omitempty"`
	Value        any          `json:"value,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

func main() {
	configFile := flag.String("config", "", "File path to the configuration file (JSON or YAML)")
	validateOnly := flag.Bool("validate", false, "Validate the configuration file and exit")
	debugAddr := flag.String("debug-addr", "", "Debug server address override")
	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	c, err := loadConfig(*configFile, *debugAddr)
	cmd.FailOnError(err, "Loading config")
	if *validateOnly {
		return
	}

	logger := cmd.NewLogger(c.Log)
	stats := cmd.NewStatsRegistry()
	if c.DebugAddr != "" {
		go cmd.DebugServer(c.DebugAddr, stats)
	}

	dbConf, err := c.DB.Load()
	cmd.FailOnError(err, "Loading database config")

	ctx, cancel := context.WithCancel(blog.NewContext(context.Background(), logger))
	defer cancel()
	go cmd.CatchSignals(func() {
		cancel()
		// Unblocks the pending read of the next request.
		_ = os.Stdin.Close()
	})

	d, err := safedb.Open(ctx, safedb.Config{DB: dbConf, Guard: c.Guard},
		safedb.WithLogger(logger), safedb.WithRegisterer(stats))
	cmd.FailOnError(err, "Opening database")

	err = run(ctx, d, os.Stdin, os.Stdout)
	closeErr := d.Close()
	cmd.FailOnError(err, "Running requests")
	cmd.FailOnError(closeErr, "Closing database")
}

// loadConfig reads and validates the config file at path. A non-empty
// debugAddr replaces the configured one before validation.
func loadConfig(path, debugAddr string) (Config, error) {
	var c Config
	err := cmd.ReadConfigFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if debugAddr != "" {
		c.DebugAddr = debugAddr
	}
	err = cmd.ValidateConfig(&cmd.ConfigValidator{Config: &c})
	if err != nil {
		return Config{}, fmt.Errorf("validating %s: %w", path, err)
	}
	return c, nil
}

// run answers each request line from in on out, in order, until in is
// exhausted or ctx is done. Blank lines are skipped. Only failures to read
// or write end the run early; failed requests are answered and the run
// continues. Log lines for a request carry its line number.
func run(ctx context.Context, d *safedb.DB, in io.Reader, out io.Writer) error {
	ctx = blog.WithDefault(ctx, blog.Discard())
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	enc := json.NewEncoder(out)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		reqCtx := blog.ContextWith(ctx, slog.Int("request", lineNo))
		err := enc.Encode(answer(reqCtx, d, line))
		if err != nil {
			blog.Error(reqCtx, "Writing response failed", err)
			return fmt.Errorf("writing response: %w", err)
		}
	}
	err := scanner.Err()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

func answer(ctx context.Context, d *safedb.DB, line []byte) response {
	var req request
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	if err != nil {
		return response{Error: fmt.Sprintf("malformed request: %s", err)}
	}

	switch {
	case req.Unescape != "":
		if req.Template != "" {
			return response{Error: "malformed request: unescape cannot be combined with a template"}
		}
		v, err := d.UnescapeForDisplay(req.Unescape)
		if err != nil {
			return errorResponse(err)
		}
		return response{Value: forDisplay(v, req.HTML)}
	case req.Column != "":
		v, err := d.QueryColumn(ctx, req.Column, req.Template, req.Replacements...)
		if err != nil {
			return errorResponse(err)
		}
		return response{Value: forDisplay(v, req.HTML)}
	case req.Single:
		row, err := d.QuerySingleRow(ctx, req.Template, req.Replacements...)
		if err != nil {
			return errorResponse(err)
		}
		return response{Row: rowForDisplay(row, req.HTML)}
	default:
		res, err := d.Query(ctx, req.Template, req.Replacements...)
		if err != nil {
			return errorResponse(err)
		}
		for i, row := range res.Rows {
			res.Rows[i] = rowForDisplay(row, req.HTML)
		}
		resp := response{
			Kind:     res.Kind.String(),
			Rows:     res.Rows,
			Columns:  res.Columns,
			RowCount: &res.RowCount,
		}
		if res.Kind == guard.Insert {
			resp.LastInsertID = &res.LastInsertID
		}
		return resp
	}
}

func forDisplay(v any, html bool) any {
	s, ok := v.(string)
	if !html || !ok {
		return v
	}
	return display.HTML(s)
}

func rowForDisplay(row safedb.Row, html bool) safedb.Row {
	if !html {
		return row
	}
	for col, v := range row {
		row[col] = forDisplay(v, html)
	}
	return row
}

func errorResponse(err error) response {
	var qErr *berrors.QueryError
	if !errors.As(err, &qErr) {
		return response{Error: err.Error()}
	}
	return response{
		Error:     qErr.Detail,
		ErrorType: qErr.Type.String(),
		Ref:       qErr.Ref,
	}
}
