// Package tools holds the read-only tools bound to the agent models.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	oai "github.com/sashabaranov/go-openai"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/sqlguard"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/datasetdb"
)

const (
	NameSQLQuery      = "sql_query"
	NameListTables    = "list_tables"
	NameDescribeTable = "describe_table"
)

type SQLRunner interface {
	Query(ctx context.Context, query string) (*datasetdb.Result, error)
}

type Catalog interface {
	Tables(ctx context.Context) ([]datasetdb.Table, error)
}

// Tool is one callable tool. Run returns the content of the tool message;
// failures the model can correct are reported in that content, not as err.
type Tool struct {
	Def oai.Tool
	Run func(ctx context.Context, args string, rec *Recorder) (string, error)
}

func (t Tool) Name() string { return t.Def.Function.Name }

// Set is an ordered collection of tools.
type Set struct {
	tools []Tool
	index map[string]Tool
}

func NewSet(tools ...Tool) *Set {
	s := &Set{index: map[string]Tool{}}
	for _, t := range tools {
		s.tools = append(s.tools, t)
		s.index[t.Name()] = t
	}
	return s
}

func (s *Set) Defs() []oai.Tool {
	out := make([]oai.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Def)
	}
	return out
}

func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.index[name]
	return t, ok
}

// Call runs the named tool. Unknown tools produce an error payload.
func (s *Set) Call(ctx context.Context, name, args string, rec *Recorder) (string, error) {
	t, ok := s.Get(name)
	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool %q", name)), nil
	}
	return t.Run(ctx, args, rec)
}

// Recorder collects the SQL statements a pass executed, in order.
type Recorder struct {
	mu  sync.Mutex
	sql []string
}

func (r *Recorder) Add(q string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sql = append(r.sql, q)
	r.mu.Unlock()
}

func (r *Recorder) SQL() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sql...)
}

func (r *Recorder) Last() string {
	all := r.SQL()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

func jsonPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func function(name, desc string, params map[string]any) oai.Tool {
	return oai.Tool{
		Type: oai.ToolTypeFunction,
		Function: &oai.FunctionDefinition{
			Name:        name,
			Description: desc,
			Parameters:  params,
		},
	}
}

type sqlArgs struct {
	Query string `json:"query"`
}

// ParseSQLArgs decodes sql_query arguments.
func ParseSQLArgs(args string) (string, error) {
	var a sqlArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("arguments must be {\"query\": string}: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", fmt.Errorf("query is empty")
	}
	return a.Query, nil
}

type sqlPayload struct {
	SQL string `json:"sql"`
	*datasetdb.Result
	Note string `json:"note,omitempty"`
}

// SQLQuery runs one guarded read-only statement. pass labels metrics.
func SQLQuery(runner SQLRunner, pass string) Tool {
	def := function(NameSQLQuery,
		"Run one read-only SQL query (SELECT or WITH) against the dataset database. Results are capped; check `truncated`.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "A single PostgreSQL SELECT or WITH statement."},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		})
	return Tool{Def: def, Run: func(ctx context.Context, args string, rec *Recorder) (string, error) {
		metrics := observability.Current()
		raw, err := ParseSQLArgs(args)
		if err != nil {
			metrics.IncSQL(pass, "bad_args")
			return errorPayload(err.Error()), nil
		}
		q, err := sqlguard.AssertReadOnly(raw)
		if err != nil {
			metrics.IncSQL(pass, "rejected")
			return errorPayload("query rejected: " + err.Error()), nil
		}
		rec.Add(q)
		res, err := runner.Query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			metrics.IncSQL(pass, "error")
			return errorPayload("query failed: " + err.Error()), nil
		}
		metrics.IncSQL(pass, "ok")
		p := sqlPayload{SQL: q, Result: res}
		if res.Truncated {
			p.Note = fmt.Sprintf("result truncated to %d rows; aggregate or filter to see everything", res.MaxRows)
		}
		return jsonPayload(p)
	}}
}

func ListTables(catalog Catalog) Tool {
	def := function(NameListTables, "List the tables available in the dataset database.",
		map[string]any{"type": "object", "properties": map[string]any{}})
	return Tool{Def: def, Run: func(ctx context.Context, _ string, _ *Recorder) (string, error) {
		tables, err := catalog.Tables(ctx)
		if err != nil {
			return errorPayload("list tables failed: " + err.Error()), nil
		}
		names := make([]string, 0, len(tables))
		for _, t := range tables {
			names = append(names, t.QualifiedName())
		}
		return jsonPayload(map[string]any{"tables": names})
	}}
}

func DescribeTable(catalog Catalog) Tool {
	def := function(NameDescribeTable, "Show the columns and types of one table.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table": map[string]any{"type": "string", "description": "Table name, optionally schema-qualified."},
			},
			"required": []string{"table"},
		})
	return Tool{Def: def, Run: func(ctx context.Context, args string, _ *Recorder) (string, error) {
		var a struct {
			Table string `json:"table"`
		}
		if err := json.Unmarshal([]byte(args), &a); err != nil || strings.TrimSpace(a.Table) == "" {
			return errorPayload("arguments must be {\"table\": string}"), nil
		}
		tables, err := catalog.Tables(ctx)
		if err != nil {
			return errorPayload("describe table failed: " + err.Error()), nil
		}
		t := datasetdb.FindTable(tables, a.Table)
		if t == nil {
			return errorPayload(fmt.Sprintf("table %q not found", a.Table)), nil
		}
		return jsonPayload(t)
	}}
}
