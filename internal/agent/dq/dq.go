// Package dq implements the data-quality shadow pass run after each
// assistant answer. It never writes to the conversation and always yields
// exactly one Outcome.
package dq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	oai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/sqlguard"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/tools"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

const pass = "dq"

type LLM interface {
	Complete(ctx context.Context, pass string, req oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error)
	Model() string
}

type Input struct {
	AgentThreadID string
	RunID         uuid.UUID
	// History is the conversation up to and including the latest user turn.
	History []transcript.Message
	Answer  string
	MainSQL []string
	Schema  string
}

type Timeliness struct {
	UserTimeframe string `json:"user_timeframe"`
	DataStart     string `json:"data_start,omitempty"`
	DataEnd       string `json:"data_end,omitempty"`
	Status        string `json:"status"`
	Note          string `json:"note,omitempty"`
}

type Coverage struct {
	Status         string   `json:"status"`
	MissingPeriods []string `json:"missing_periods,omitempty"`
	Note           string   `json:"note,omitempty"`
}

type Indicators struct {
	Timeliness *Timeliness `json:"timeliness,omitempty"`
	Coverage   *Coverage   `json:"coverage,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	// Message explains NOT_EVALUATED and UNKNOWN outcomes.
	Message string `json:"message,omitempty"`
}

type Outcome struct {
	Status     string
	Indicators Indicators
	UsedTables []string
	DQSQL      []string
	Model      string
}

type Config struct {
	MaxSQLCalls int
}

type Auditor struct {
	log    *logger.Logger
	llm    LLM
	runner tools.SQLRunner
	maxSQL int
}

func NewAuditor(log *logger.Logger, llm LLM, runner tools.SQLRunner, cfg Config) *Auditor {
	if cfg.MaxSQLCalls <= 0 {
		cfg.MaxSQLCalls = 5
	}
	return &Auditor{log: log.With("service", "DataQualityAuditor"), llm: llm, runner: runner, maxSQL: cfg.MaxSQLCalls}
}

// Evaluate runs the pass. It does not return errors: model and tool failures
// become an UNKNOWN outcome carrying the reason.
func (a *Auditor) Evaluate(ctx context.Context, in Input) Outcome {
	ctx, span := observability.StartSpan(ctx, "dq.pass",
		attribute.String("thread.id", in.AgentThreadID),
		attribute.Int("main_sql.count", len(in.MainSQL)))
	defer span.End()

	out := Outcome{UsedTables: sqlguard.ExtractTables(in.MainSQL...), Model: a.llm.Model()}
	if len(in.MainSQL) == 0 {
		out.Status = types.DQStatusNotEvaluated
		out.Indicators.Message = "the assistant executed no SQL in this turn"
		return out
	}

	sqlTool := tools.SQLQuery(a.runner, pass)
	rec := &tools.Recorder{}
	msgs := []oai.ChatCompletionMessage{
		{Role: oai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, a.maxSQL)},
		{Role: oai.ChatMessageRoleUser, Content: AuditDocument(in)},
	}
	// usedTables covers every statement of the turn, the pass's own included.
	collect := func() {
		out.DQSQL = rec.SQL()
		all := make([]string, 0, len(in.MainSQL)+len(out.DQSQL))
		all = append(append(all, in.MainSQL...), out.DQSQL...)
		out.UsedTables = sqlguard.ExtractTables(all...)
	}
	unknown := func(format string, args ...any) Outcome {
		out.Status = types.DQStatusUnknown
		out.Indicators.Message = fmt.Sprintf(format, args...)
		collect()
		a.log.Warn("data quality pass inconclusive", "thread_id", in.AgentThreadID, "reason", out.Indicators.Message)
		return out
	}

	sqlCalls := 0
	for step := 0; ; step++ {
		resp, err := a.llm.Complete(ctx, pass, oai.ChatCompletionRequest{
			Messages:          msgs,
			Tools:             []oai.Tool{sqlTool.Def},
			ParallelToolCalls: false,
		})
		if err != nil {
			return unknown("model call failed at step %d: %v", step, err)
		}
		if len(resp.Choices) == 0 {
			return unknown("model returned no choices at step %d", step)
		}
		reply := resp.Choices[0].Message
		calls := reply.ToolCalls

		switch {
		case len(calls) == 0:
			v, err := ParseVerdict(reply.Content)
			if err != nil {
				return unknown("step %d returned neither a sql_query call nor a valid verdict: %v", step, err)
			}
			out.Status = v.Status
			out.Indicators = v.Indicators
			collect()
			return out
		case len(calls) > 1:
			return unknown("step %d emitted %d tool calls; exactly one is allowed", step, len(calls))
		case calls[0].Function.Name != tools.NameSQLQuery:
			return unknown("step %d called %q; only sql_query is allowed", step, calls[0].Function.Name)
		case sqlCalls >= a.maxSQL:
			return unknown("sql budget of %d statements exhausted", a.maxSQL)
		}

		result, err := sqlTool.Run(ctx, calls[0].Function.Arguments, rec)
		if err != nil {
			return unknown("sql step %d aborted: %v", step, err)
		}
		sqlCalls++
		msgs = append(msgs, reply, oai.ChatCompletionMessage{
			Role:       oai.ChatMessageRoleTool,
			Content:    result,
			Name:       tools.NameSQLQuery,
			ToolCallID: calls[0].ID,
		})
	}
}

// AuditDocument is the user message of the pass: the delimited
// conversation, the final answer, every main-pass SQL statement and the
// schema summary.
func AuditDocument(in Input) string {
	var b strings.Builder
	b.WriteString("## Conversation\n")
	b.WriteString(transcript.Render(in.History))
	b.WriteString("\n## Final answer\n")
	b.WriteString(strings.TrimSpace(in.Answer))
	fmt.Fprintf(&b, "\n\n## SQL executed by the assistant (%d statements)\n", len(in.MainSQL))
	for i, q := range in.MainSQL {
		fmt.Fprintf(&b, "[%d]\n%s\n", i+1, q)
	}
	b.WriteString("\n## Dataset schema\n")
	b.WriteString(in.Schema)
	return b.String()
}

type Verdict struct {
	Status     string
	Indicators Indicators
}

// ParseVerdict reads the final JSON object, tolerating code fences and
// surrounding prose.
func ParseVerdict(content string) (*Verdict, error) {
	s := strings.TrimSpace(content)
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var raw struct {
		Status     string      `json:"status"`
		Timeliness *Timeliness `json:"timeliness"`
		Coverage   *Coverage   `json:"coverage"`
		Summary    string      `json:"summary"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	status := strings.ToUpper(strings.TrimSpace(raw.Status))
	if status != types.DQStatusOK && status != types.DQStatusWarning {
		return nil, fmt.Errorf("verdict status %q is not OK or WARNING", raw.Status)
	}
	if raw.Timeliness == nil {
		return nil, fmt.Errorf("verdict has no timeliness indicator")
	}
	return &Verdict{
		Status:     status,
		Indicators: Indicators{Timeliness: raw.Timeliness, Coverage: raw.Coverage, Summary: raw.Summary},
	}, nil
}
