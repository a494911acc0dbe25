// Package sqlguard validates model-written SQL before it reaches the dataset
// database. The database session is read-only as well; the guard rejects
// obvious writes early with a message the model can act on.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrEmpty          = errors.New("sql is empty")
	ErrMultiStatement = errors.New("only a single statement is allowed")
	ErrNotSelect      = errors.New("only SELECT or WITH statements are allowed")
)

// ForbiddenKeywordError names the denylisted keyword that was found.
type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("forbidden keyword %s", e.Keyword)
}

var denylist = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "VACUUM",
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:([a-zA-Z0-9_-]+)(?:[ \t]*\n|[ \t]+))?[ \t]*\n?")
	fenceClose = regexp.MustCompile("(?s)\n?```\\s*$")
	separator  = regexp.MustCompile(`^\s*(-{3,}|={3,}|\*{3,}|_{3,})\s*$`)
	denyRe     = regexp.MustCompile(`\b(` + strings.Join(denylist, "|") + `)\b`)
	leadingRe  = regexp.MustCompile(`^(SELECT|WITH)\b`)
)

// Sanitize strips wrapper artifacts models put around SQL: code fences,
// separator lines and trailing semicolons.
func Sanitize(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	s = stripOpenFence(s)
	s = fenceClose.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if separator.MatchString(ln) {
			continue
		}
		kept = append(kept, ln)
	}
	s = strings.TrimSpace(strings.Join(kept, "\n"))
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// stripOpenFence removes a leading fence and its language tag. A SQL keyword
// right after the fence starts the statement and is kept.
func stripOpenFence(s string) string {
	m := fenceOpen.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	if m[2] >= 0 && isKeyword(strings.ToUpper(s[m[2]:m[3]])) {
		return strings.TrimLeft(s[3:], " \t\n")
	}
	return s[m[1]:]
}

func isKeyword(word string) bool {
	return leadingRe.MatchString(word) || denyRe.MatchString(word)
}

// AssertReadOnly sanitizes raw and returns it when it is a single SELECT or
// WITH statement without any denylisted keyword. Sanitizing happens first so
// wrapper noise neither trips nor hides the checks.
func AssertReadOnly(raw string) (string, error) {
	s := Sanitize(raw)
	if s == "" {
		return "", ErrEmpty
	}
	if strings.Contains(stripLiterals(s), ";") {
		return "", ErrMultiStatement
	}
	upper := strings.ToUpper(s)
	if kw := denyRe.FindString(upper); kw != "" {
		return "", &ForbiddenKeywordError{Keyword: kw}
	}
	if !leadingRe.MatchString(strings.TrimLeft(upper, "( \t\n")) {
		return "", ErrNotSelect
	}
	return s, nil
}

// stripLiterals blanks quoted strings and identifiers so a ';' inside them
// does not count as a statement separator.
func stripLiterals(s string) string {
	var b strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(' ')
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	tableRefRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+((?:"[^"]+"|[a-zA-Z_][\w$]*)(?:\.(?:"[^"]+"|[a-zA-Z_][\w$]*))?)`)
	cteNameRe  = regexp.MustCompile(`(?i)(?:\bWITH(?:\s+RECURSIVE)?|,)\s*([a-zA-Z_][\w$]*)\s*(?:\([^)]*\))?\s+AS\s*\(`)
	// FROM inside these calls is not a table reference.
	fromFuncRe = regexp.MustCompile(`(?i)\b(?:EXTRACT|SUBSTRING|TRIM|OVERLAY|POSITION)\s*\([^()]*\)`)
)

// ExtractTables returns the lower-cased table names referenced after FROM or
// JOIN, without CTE names, sorted and de-duplicated. It is advisory audit
// metadata only and never used for access decisions.
func ExtractTables(sql ...string) []string {
	seen := map[string]bool{}
	for _, q := range sql {
		ctes := map[string]bool{}
		for _, m := range cteNameRe.FindAllStringSubmatch(q, -1) {
			ctes[strings.ToLower(m[1])] = true
		}
		q = fromFuncRe.ReplaceAllString(q, " ")
		for _, m := range tableRefRe.FindAllStringSubmatchIndex(q, -1) {
			// set-returning functions such as generate_series(...)
			if strings.HasPrefix(strings.TrimSpace(q[m[1]:]), "(") {
				continue
			}
			name := strings.ToLower(strings.ReplaceAll(q[m[2]:m[3]], `"`, ""))
			if ctes[name] {
				continue
			}
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
