// Package graph runs the main assistant: a tool-calling loop between the
// model and the read-only dataset tools.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/tools"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

const pass = "main"

var ErrEmptyCompletion = errors.New("model returned no choices")

type LLM interface {
	Complete(ctx context.Context, pass string, req oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error)
	Model() string
}

type SchemaSource interface {
	Summary(ctx context.Context) (string, error)
}

type Config struct {
	// MaxToolRounds caps tool-calling rounds. At the cap the model is called
	// once more without tools so it has to answer.
	MaxToolRounds int
	SystemPrompt  string
	// ToolParallelism bounds concurrent tool calls within one round.
	ToolParallelism int
}

type Graph struct {
	log    *logger.Logger
	llm    LLM
	tools  *tools.Set
	schema SchemaSource
	cfg    Config
}

// Result is one completed turn. Messages holds only what the turn added:
// tool-calling assistant messages, tool results and the final answer.
type Result struct {
	Messages []transcript.Message
	Answer   string
	SQL      []string
	Schema   string
	Rounds   int
	Model    string
}

func New(log *logger.Logger, llm LLM, toolset *tools.Set, schema SchemaSource, cfg Config) *Graph {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 12
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.ToolParallelism <= 0 {
		cfg.ToolParallelism = 4
	}
	return &Graph{log: log.With("service", "AgentGraph"), llm: llm, tools: toolset, schema: schema, cfg: cfg}
}

// Run continues history (which ends with the new user message) until the
// model answers without tool calls. onStep, if set, sees every added message.
func (g *Graph) Run(ctx context.Context, history []transcript.Message, onStep func(transcript.Message)) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "agent.turn", attribute.Int("history.len", len(history)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("turn.rounds", res.Rounds), attribute.Int("turn.sql", len(res.SQL)))
		}
		span.End()
	}()

	summary, sErr := g.schema.Summary(ctx)
	if sErr != nil {
		g.log.Warn("schema summary unavailable", "error", sErr)
		summary = "(schema summary unavailable; use list_tables and describe_table)"
	}
	msgs := []oai.ChatCompletionMessage{{
		Role:    oai.ChatMessageRoleSystem,
		Content: strings.ReplaceAll(g.cfg.SystemPrompt, "{{schema}}", summary),
	}}
	msgs = append(msgs, transcript.ToOpenAI(history)...)

	res = &Result{Schema: summary, Model: g.llm.Model()}
	rec := &tools.Recorder{}
	emit := func(m transcript.Message) {
		res.Messages = append(res.Messages, m)
		if onStep != nil {
			onStep(m)
		}
	}

	for round := 0; ; round++ {
		allowTools := round < g.cfg.MaxToolRounds
		req := oai.ChatCompletionRequest{Messages: msgs}
		if allowTools {
			req.Tools = g.tools.Defs()
		}
		resp, err := g.llm.Complete(ctx, pass, req)
		if err != nil {
			return nil, fmt.Errorf("call model (round %d): %w", round, err)
		}
		if len(resp.Choices) == 0 {
			return nil, ErrEmptyCompletion
		}
		reply := resp.Choices[0].Message
		msg := transcript.FromOpenAI(reply)
		if !allowTools {
			msg.ToolCalls = nil
		}
		if !msg.HasToolCalls() {
			emit(msg)
			res.Answer = msg.Content
			res.Rounds = round
			break
		}

		msgs = append(msgs, transcript.ToOpenAI([]transcript.Message{msg})...)
		emit(msg)
		outputs, err := g.runTools(ctx, msg.ToolCalls, rec)
		if err != nil {
			return nil, err
		}
		for i, tc := range msg.ToolCalls {
			toolMsg := transcript.Message{Kind: transcript.Tool, ToolCallID: tc.ID, Name: tc.Name, Content: outputs[i]}
			msgs = append(msgs, transcript.ToOpenAI([]transcript.Message{toolMsg})...)
			emit(toolMsg)
		}
		if round+1 == g.cfg.MaxToolRounds {
			g.log.Warn("tool round cap reached; forcing final answer", "rounds", g.cfg.MaxToolRounds)
		}
	}
	res.SQL = rec.SQL()
	return res, nil
}

// runTools executes one round's calls concurrently. SQL is recorded in call
// order regardless of completion order.
func (g *Graph) runTools(ctx context.Context, calls []transcript.ToolCall, rec *tools.Recorder) ([]string, error) {
	outputs := make([]string, len(calls))
	recs := make([]*tools.Recorder, len(calls))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.ToolParallelism)
	for i, tc := range calls {
		i, tc := i, tc
		recs[i] = &tools.Recorder{}
		eg.Go(func() error {
			out, err := g.tools.Call(egCtx, tc.Name, tc.Arguments, recs[i])
			if err != nil {
				return fmt.Errorf("tool %s: %w", tc.Name, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, r := range recs {
		for _, q := range r.SQL() {
			rec.Add(q)
		}
	}
	return outputs, nil
}
