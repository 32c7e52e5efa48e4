// Package cmd provides utilities that underlie the querysafe commands: config
// loading and validation, logger construction, the debug server and signal
// handling.
package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/letsencrypt/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querysafe/querysafe/blog"
	"github.com/querysafe/querysafe/strictyaml"
)

// FailOnError exits and prints an error message, but only if we encountered
// a problem and err != nil. err is required but msg can be "".
func FailOnError(err error, msg string) {
	if err == nil {
		return
	}
	if msg == "" {
		fmt.Fprintf(os.Stderr, "%s\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
	}
	os.Exit(1)
}

// ReadConfigFile reads the file at filename into out. Files ending in .yaml
// or .yml are decoded with strictyaml; anything else is decoded as JSON. In
// both cases unknown keys are an error.
func ReadConfigFile(filename string, out interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return strictyaml.Unmarshal(data, out)
	default:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		return decoder.Decode(out)
	}
}

// ConfigValidator pairs a config struct with the custom validation functions
// its tags refer to.
type ConfigValidator struct {
	Config     interface{}
	Validators map[string]validator.Func
}

// defaultValidators are available to every config struct.
var defaultValidators = map[string]validator.Func{
	"dsn": func(fl validator.FieldLevel) bool {
		_, err := mysql.ParseDSN(fl.Field().String())
		return err == nil
	},
}

// ValidateConfig checks cv.Config against its `validate` struct tags.
func ValidateConfig(cv *ConfigValidator) error {
	validate := validator.New()
	for tag, v := range defaultValidators {
		err := validate.RegisterValidation(tag, v)
		if err != nil {
			return err
		}
	}
	for tag, v := range cv.Validators {
		err := validate.RegisterValidation(tag, v)
		if err != nil {
			return err
		}
	}

	err := validate.Struct(cv.Config)
	if err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprintf("field %q failed on the %q tag", e.Namespace(), e.Tag()))
		}
		return errors.New(strings.Join(msgs, ", "))
	}
	return nil
}

// NewLogger builds the process logger from conf and routes the mysql
// driver's and the standard library's loggers through it. Output goes to
// stderr; stdout is left to the command. A level of -1 discards everything.
func NewLogger(conf blog.Config) *slog.Logger {
	logger := blog.Discard()
	if conf.StdoutLevel != -1 {
		var err error
		logger, err = blog.New(conf, os.Stderr)
		FailOnError(err, "Could not create logger")
	}
	blog.InitAdapters(logger)
	return logger
}

// NewStatsRegistry returns a registry that already carries the Go runtime and
// process collectors.
func NewStatsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// DebugServer serves the metrics in gatherer at /metrics on addr. It only
// returns if the server fails, in which case it exits the process.
func DebugServer(addr string, gatherer prometheus.Gatherer) {
	if addr == "" {
		log.Fatalf("unable to boot debug server because no address was given for it. Set debugAddr.")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: time.Minute,
	}
	log.Printf("booting debug server at %#v", addr)
	err := server.ListenAndServe()
	if err != nil {
		log.Fatalf("unable to boot debug server on %#v: %s", addr, err)
	}
}

// WaitForSignal blocks until SIGTERM, SIGINT, or SIGHUP is received.
func WaitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)
	signal.Notify(sigChan, syscall.SIGHUP)
	<-sigChan
}

// CatchSignals blocks until a SIGTERM, SIGINT, or SIGHUP is received, then
// executes the given callback. The callback should not block, it should simply
// signal other goroutines (particularly the main goroutine) to clean themselves
// up and exit. This function is intended to be called in its own goroutine,
// while the main goroutine waits for an indication that the other goroutines
// have exited cleanly.
func CatchSignals(callback func()) {
	WaitForSignal()
	if callback != nil {
		callback()
	}
}
