package guard

import (
	"testing"

	"gopkg.in/yaml.v3"

	berrors "github.com/querysafe/querysafe/errors"
	"github.com/querysafe/querysafe/literal"
	"github.com/querysafe/querysafe/test"
)

func TestClassifyAdmits(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		stmt string
		want Kind
	}{
		{"SELECT 1", Select},
		{"select * from t", Select},
		{"SeLeCt 1", Select},
		{"  \n\tSELECT 1", Select},
		{"/* leading */ SELECT 1", Select},
		{"-- leading\nSELECT 1", Select},
		{"# leading\n  select 1", Select},
		{"/*+ MAX_EXECUTION_TIME(10) */SELECT 1", Select},
		{"INSERT INTO t (a) VALUES ('DROP TABLE t')", Insert},
		{"insert into t values (1)", Insert},
		{"UPDATE t SET deleted=1 WHERE id=3", Update},
		{"SELECT 1;", Select},
		{"SELECT 1; -- done\n", Select},
		{"SELECT ';' AS semi", Select},
		{"SELECT * FROM t WHERE note='x; DELETE FROM t'", Select},
	}
	g := New(Config{}, literal.Backslash)
	for _, tc := range testCases {
		t.Run(tc.stmt, func(t *testing.T) {
			t.Parallel()
			got, err := g.Classify(tc.stmt)
			test.AssertNotError(t, err, "Classify failed")
			test.AssertEquals(t, got, tc.want)
		})
	}
}

func TestClassifyRefuses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		stmt   string
		detail string
	}{
		{"", "empty statement"},
		{"   \n", "empty statement"},
		{"-- only a comment", "empty statement"},
		{"DROP TABLE t", "disallowed command \"DROP\""},
		{"drop table t", "disallowed command \"DROP\""},
		{"TRUNCATE t", "disallowed command \"TRUNCATE\""},
		{"/* SELECT */ DROP TABLE t", "disallowed command \"DROP\""},
		{"REPLACE INTO t VALUES (1)", "disallowed command \"REPLACE\""},
		{"DELETE FROM t WHERE id=1 LIMIT 1", "deletion policy is soft-delete-only"},
		{"(SELECT 1)", "does not start with a keyword"},
		{"'SELECT'", "does not start with a keyword"},
		{"SELECT 1; DROP TABLE t", "multiple statements"},
		{"SELECT 1;DROP TABLE t", "multiple statements"},
		{"SELECT 1; 'x'", "multiple statements"},
		{"SELECT 1; /* c */ SELECT 2", "multiple statements"},
		{"/*!50000 DROP TABLE t */ SELECT 1", "executable comment"},
		{"SELECT 1 /*!50000 , SLEEP(10) */", "executable comment"},
		{"SELECT 'open", "statement does not lex"},
		{`SELECT "x"`, "statement does not lex"},
	}
	g := New(Config{}, literal.Backslash)
	for _, tc := range testCases {
		t.Run(tc.stmt, func(t *testing.T) {
			t.Parallel()
			_, err := g.Classify(tc.stmt)
			test.AssertError(t, err, "Classify should have failed")
			test.Assert(t, berrors.Is(err, berrors.Guard), "expected a Guard error, got "+err.Error())
			test.AssertContains(t, err.Error(), tc.detail)
		})
	}
}

func TestLimitedHardDelete(t *testing.T) {
	t.Parallel()

	g := New(Config{Deletion: LimitedHardDelete}, literal.Backslash)

	kind, err := g.Classify("DELETE FROM t WHERE id=1 LIMIT 1")
	test.AssertNotError(t, err, "DELETE with LIMIT should be admitted")
	test.AssertEquals(t, kind, Delete)

	kind, err = g.Classify("delete from t where id=1 limit 1")
	test.AssertNotError(t, err, "lower-case DELETE with LIMIT should be admitted")
	test.AssertEquals(t, kind, Delete)

	_, err = g.Classify("DELETE FROM t WHERE id=1")
	test.AssertError(t, err, "DELETE without LIMIT should be refused")
	test.AssertContains(t, err.Error(), "without LIMIT")

	kind, err = g.Classify("DELETE FROM t WHERE id IN (SELECT id FROM u) ORDER BY id LIMIT 1")
	test.AssertNotError(t, err, "DELETE with a subquery and a LIMIT should be admitted")
	test.AssertEquals(t, kind, Delete)

	// LIMIT only counts in code, not inside a literal or a comment, not as
	// part of another word, and not inside a subquery.
	for _, stmt := range []string{
		"DELETE FROM t WHERE note='LIMIT 1'",
		"DELETE FROM t -- LIMIT 1",
		"DELETE FROM t WHERE nolimit=1",
		"DELETE FROM t WHERE id IN (SELECT id FROM (SELECT id FROM t LIMIT 1) x) OR 1=1",
		"DELETE FROM t WHERE id IN (SELECT id FROM u WHERE note='(' LIMIT 1)",
	} {
		_, err = g.Classify(stmt)
		test.AssertError(t, err, stmt)
		test.Assert(t, berrors.Is(err, berrors.Guard), "expected a Guard error")
	}

	_, err = g.Classify("DROP TABLE t")
	test.AssertError(t, err, "DROP is never admitted")
}

func TestClassifyFollowsMode(t *testing.T) {
	t.Parallel()

	// With quote doubling the backslash does not escape, so the literal ends
	// before the semicolon and the second statement is visible.
	stmt := `SELECT 'a\'; DROP TABLE t; -- '`
	_, err := New(Config{}, literal.QuoteDoubling).Classify(stmt)
	test.AssertError(t, err, "second statement should be found")
	test.AssertContains(t, err.Error(), "multiple statements")

	kind, err := New(Config{}, literal.Backslash).Classify(stmt)
	test.AssertNotError(t, err, "one literal in backslash mode")
	test.AssertEquals(t, kind, Select)
}

func TestDeletionPolicyConfig(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := yaml.Unmarshal([]byte("deletion: limited-hard-delete\n"), &cfg)
	test.AssertNotError(t, err, "unmarshaling config")
	test.AssertEquals(t, cfg.Deletion, LimitedHardDelete)

	cfg = Config{}
	err = yaml.Unmarshal([]byte("{}\n"), &cfg)
	test.AssertNotError(t, err, "unmarshaling empty config")
	test.AssertEquals(t, cfg.Deletion, SoftDeleteOnly)

	err = yaml.Unmarshal([]byte("deletion: always\n"), &cfg)
	test.AssertError(t, err, "unknown policy should fail")

	text, err := LimitedHardDelete.MarshalText()
	test.AssertNotError(t, err, "marshaling policy")
	test.AssertEquals(t, string(text), "limited-hard-delete")
}

func TestKindString(t *testing.T) {
	t.Parallel()

	test.AssertEquals(t, Select.String(), "select")
	test.AssertEquals(t, Delete.String(), "delete")
	test.Assert(t, Select.Retrieval(), "select returns rows")
	test.Assert(t, !Update.Retrieval(), "update does not return rows")
}
