package sqlguard

import (
	"errors"
	"reflect"
	"testing"
)

func TestAssertReadOnlyAccepts(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"fenced", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"bare fence", "```\nselect * from t\n```", "select * from t"},
		{"inline fence", "```SELECT 1```", "SELECT 1"},
		{"inline fence lower case", "```select count(*) from t```", "select count(*) from t"},
		{"inline fence with tag", "```sql SELECT 1```", "SELECT 1"},
		{"inline fence cte", "```WITH x AS (SELECT 1) SELECT * FROM x```", "WITH x AS (SELECT 1) SELECT * FROM x"},
		{"keyword on its own line", "```SELECT\n1\n```", "SELECT\n1"},
		{"trailing separator", "SELECT a FROM t\n---", "SELECT a FROM t"},
		{"trailing semicolon", "SELECT a FROM t;", "SELECT a FROM t"},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", "WITH x AS (SELECT 1) SELECT * FROM x"},
		{"parenthesised", "(SELECT 1) UNION (SELECT 2)", "(SELECT 1) UNION (SELECT 2)"},
		{"semicolon in literal", "SELECT 'a;b'", "SELECT 'a;b'"},
		{"column named like keyword", "SELECT created_at, updated_by FROM t", "SELECT created_at, updated_by FROM t"},
		{"keyword glued into literal", "SELECT * FROM t WHERE note = 'xCREATE'", "SELECT * FROM t WHERE note = 'xCREATE'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AssertReadOnly(tc.raw)
			if err != nil {
				t.Fatalf("AssertReadOnly(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("AssertReadOnly(%q): want=%q got=%q", tc.raw, tc.want, got)
			}
		})
	}
}

func TestAssertReadOnlyRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "  ", ErrEmpty},
		{"only fence", "```sql\n```", ErrEmpty},
		{"multi statement", "SELECT 1; DROP TABLE x;", ErrMultiStatement},
		{"update", "UPDATE t SET x=1", &ForbiddenKeywordError{}},
		{"update lower case", "update t set x=1", &ForbiddenKeywordError{}},
		{"mixed case delete", "DeLeTe FROM t", &ForbiddenKeywordError{}},
		{"write inside cte", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", &ForbiddenKeywordError{}},
		{"keyword word inside literal", "SELECT * FROM t WHERE note = 'please drop me'", &ForbiddenKeywordError{}},
		{"inline fenced write", "```DELETE FROM t```", &ForbiddenKeywordError{}},
		{"fenced write", "```sql\nINSERT INTO t VALUES (1)\n```", &ForbiddenKeywordError{}},
		{"show", "SHOW search_path", ErrNotSelect},
		{"explain", "EXPLAIN SELECT 1", ErrNotSelect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AssertReadOnly(tc.raw)
			if err == nil {
				t.Fatalf("AssertReadOnly(%q): want error, got nil", tc.raw)
			}
			var kwErr *ForbiddenKeywordError
			if _, isKw := tc.want.(*ForbiddenKeywordError); isKw {
				if !errors.As(err, &kwErr) {
					t.Fatalf("AssertReadOnly(%q): want forbidden keyword, got %v", tc.raw, err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("AssertReadOnly(%q): want=%v got=%v", tc.raw, tc.want, err)
			}
		})
	}
}

func TestExtractTables(t *testing.T) {
	got := ExtractTables(
		`WITH recent AS (SELECT * FROM public.sales WHERE day > now() - interval '7 days')
		 SELECT r.*, s.name FROM recent r JOIN "Stores" s ON s.id = r.store_id`,
		`SELECT EXTRACT(YEAR FROM sold_at) AS y, count(*) FROM sales GROUP BY 1`,
		`SELECT d FROM generate_series(1, 3) AS d`,
	)
	want := []string{"public.sales", "sales", "stores"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractTables: want=%v got=%v", want, got)
	}
	if n := len(ExtractTables()); n != 0 {
		t.Fatalf("ExtractTables(): want empty, got %d", n)
	}
}
