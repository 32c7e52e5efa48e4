package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/querysafe/querysafe/blog"
	"github.com/querysafe/querysafe/db"
	"github.com/querysafe/querysafe/guard"
	"github.com/querysafe/querysafe/safedb"
	"github.com/querysafe/querysafe/test"
)

func setup(t *testing.T, cfg safedb.Config) (*safedb.DB, sqlmock.Sqlmock) {
	t.Helper()
	dbHandle, mock := test.NewProbingMockDB(t, "")
	store, err := db.NewConn(context.Background(), dbHandle)
	test.AssertNotError(t, err, "creating store")
	return safedb.New(store, cfg, safedb.WithRegisterer(prometheus.NewRegistry())), mock
}

func responses(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var got []map[string]any
	dec := json.NewDecoder(out)
	for dec.More() {
		var resp map[string]any
		err := dec.Decode(&resp)
		test.AssertNotError(t, err, "decoding response")
		got = append(got, resp)
	}
	return got
}

func TestRunAnswersEachRequest(t *testing.T) {
	d, mock := setup(t, safedb.Config{})
	mock.ExpectQuery("SELECT id, name FROM users WHERE name='bob'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), []byte("bob")))
	mock.ExpectExec(`INSERT INTO users (name, age) VALUES ('O\'Brien', 40)`).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery("SELECT name FROM users WHERE id=7").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("bob")))

	in := strings.Join([]string{
		`{"template": "SELECT id, name FROM users WHERE name={0}", "replacements": ["bob"]}`,
		``,
		`{"template": "INSERT INTO users (name, age) VALUES ({0}, {1})", "replacements": ["O'Brien", 40]}`,
		`{"template": "SELECT name FROM users WHERE id={0}", "replacements": [7], "column": "name"}`,
	}, "\n")
	var out bytes.Buffer
	err := run(context.Background(), d, strings.NewReader(in), &out)
	test.AssertNotError(t, err, "run failed")

	got := responses(t, &out)
	test.AssertEquals(t, len(got), 3)

	test.AssertEquals(t, got[0]["kind"], "select")
	test.AssertEquals(t, got[0]["rowCount"], float64(1))
	test.AssertDeepEquals(t, got[0]["columns"], []any{"id", "name"})
	test.AssertDeepEquals(t, got[0]["rows"], []any{map[string]any{"id": float64(7), "name": "bob"}})

	test.AssertEquals(t, got[1]["kind"], "insert")
	test.AssertEquals(t, got[1]["lastInsertId"], float64(42))

	test.AssertEquals(t, got[2]["value"], "bob")
}

func TestRunReportsRedactedErrors(t *testing.T) {
	d, _ := setup(t, safedb.Config{Guard: guard.Config{Deletion: guard.SoftDeleteOnly}})

	in := `{"template": "DROP TABLE users"}` + "\n" +
		`{"template": "SELECT * FROM users WHERE id={1}", "replacements": [1]}` + "\n"
	var out bytes.Buffer
	err := run(context.Background(), d, strings.NewReader(in), &out)
	test.AssertNotError(t, err, "run failed")

	got := responses(t, &out)
	test.AssertEquals(t, len(got), 2)
	test.AssertEquals(t, got[0]["errorType"], "guard")
	test.AssertEquals(t, got[0]["error"], "statement not permitted")
	test.AssertNotEquals(t, got[0]["ref"], nil)
	test.AssertEquals(t, got[1]["errorType"], "template")
	test.AssertEquals(t, got[1]["error"], "invalid query template")
}

func TestRunMalformedRequest(t *testing.T) {
	d, _ := setup(t, safedb.Config{})

	in := `{"template": ` + "\n" + `{"tmpl": "SELECT 1"}` + "\n"
	var out bytes.Buffer
	err := run(context.Background(), d, strings.NewReader(in), &out)
	test.AssertNotError(t, err, "run failed")

	got := responses(t, &out)
	test.AssertEquals(t, len(got), 2)
	for _, resp := range got {
		test.AssertContains(t, resp["error"].(string), "malformed request")
		test.AssertEquals(t, resp["errorType"], nil)
	}
}

func TestRunStopsWhenCanceled(t *testing.T) {
	d, _ := setup(t, safedb.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := run(ctx, d, strings.NewReader(`{"template": "SELECT 1"}`+"\n"), &out)
	test.AssertNotError(t, err, "run failed")
	test.AssertEquals(t, out.Len(), 0)
}

func writeConfig(t *testing.T, debugAddr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "querysafe.yaml")
	err := os.WriteFile(path, []byte(`
db:
  dbConnect: "app@tcp(db:3306)/app"
  readTimeout: 2s
guard:
  deletion: limited-hard-delete
log:
  stdoutLevel: 6
debugAddr: "`+debugAddr+`"
`), 0o600)
	test.AssertNotError(t, err, "writing config")
	return path
}

func TestLoadConfig(t *testing.T) {
	c, err := loadConfig(writeConfig(t, "localhost:8010"), "")
	test.AssertNotError(t, err, "loading config")
	test.AssertEquals(t, c.Guard.Deletion, guard.LimitedHardDelete)
	test.AssertEquals(t, c.Log.StdoutLevel, 6)
	test.AssertEquals(t, c.DebugAddr, "localhost:8010")

	_, err = loadConfig(writeConfig(t, "not an address"), "")
	test.AssertError(t, err, "bad debug address validated")
	test.AssertContains(t, err.Error(), "hostname_port")
}

func TestLoadConfigValidatesDebugAddrOverride(t *testing.T) {
	path := writeConfig(t, "localhost:8010")

	c, err := loadConfig(path, "localhost:9090")
	test.AssertNotError(t, err, "loading config with override")
	test.AssertEquals(t, c.DebugAddr, "localhost:9090")

	_, err = loadConfig(path, "not an address")
	test.AssertError(t, err, "bad debug address override validated")
	test.AssertContains(t, err.Error(), "hostname_port")
}

func TestRunDisplayRequests(t *testing.T) {
	d, mock := setup(t, safedb.Config{})
	mock.ExpectQuery("SELECT bio FROM users WHERE id=1").
		WillReturnRows(sqlmock.NewRows([]string{"bio"}).AddRow([]byte("<b>Tom & Jerry</b>")))

	in := strings.Join([]string{
		`{"template": "SELECT bio FROM users WHERE id={0}", "replacements": [1], "single": true, "html": true}`,
		`{"unescape": "'O\\'Brien'"}`,
		`{"unescape": "'O\\'Brien"}`,
	}, "\n")
	var out bytes.Buffer
	err := run(context.Background(), d, strings.NewReader(in), &out)
	test.AssertNotError(t, err, "run failed")

	got := responses(t, &out)
	test.AssertEquals(t, len(got), 3)
	test.AssertDeepEquals(t, got[0]["row"], map[string]any{"bio": "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;"})
	test.AssertEquals(t, got[1]["value"], "O'Brien")
	test.AssertEquals(t, got[2]["errorType"], "encoding")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}

func TestRunLogsCarryRequestLine(t *testing.T) {
	d, _ := setup(t, safedb.Config{})

	var logs bytes.Buffer
	logger, err := blog.New(blog.Config{StdoutLevel: 6}, &logs)
	test.AssertNotError(t, err, "creating logger")
	ctx := blog.NewContext(context.Background(), logger)

	in := "\n" + `{"template": "TRUNCATE users"}` + "\n"
	var out bytes.Buffer
	err = run(ctx, d, strings.NewReader(in), &out)
	test.AssertNotError(t, err, "run failed")
	test.AssertContains(t, logs.String(), `"request":2`)
	test.AssertContains(t, logs.String(), "disallowed command")

	logs.Reset()
	err = run(ctx, d, strings.NewReader(`{"template": "TRUNCATE users"}`+"\n"), failingWriter{})
	test.AssertError(t, err, "run should fail when responses cannot be written")
	test.AssertContains(t, err.Error(), "writing response")
	test.AssertContains(t, logs.String(), `"msg":"Writing response failed"`)
}
