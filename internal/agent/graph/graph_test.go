package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	oai "github.com/sashabaranov/go-openai"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/tools"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/transcript"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/datasetdb"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// scriptedLLM replays replies in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []oai.ChatCompletionMessage
	requests []oai.ChatCompletionRequest
	err      error
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) Complete(_ context.Context, _ string, req oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return oai.ChatCompletionResponse{}, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return oai.ChatCompletionResponse{Choices: []oai.ChatCompletionChoice{{Message: s.replies[i]}}}, nil
}

func sqlCall(id, query string) oai.ChatCompletionMessage {
	return oai.ChatCompletionMessage{
		Role: oai.ChatMessageRoleAssistant,
		ToolCalls: []oai.ToolCall{{
			ID:       id,
			Type:     oai.ToolTypeFunction,
			Function: oai.FunctionCall{Name: tools.NameSQLQuery, Arguments: `{"query":"` + query + `"}`},
		}},
	}
}

func answer(text string) oai.ChatCompletionMessage {
	return oai.ChatCompletionMessage{Role: oai.ChatMessageRoleAssistant, Content: text}
}

type staticSchema string

func (s staticSchema) Summary(context.Context) (string, error) { return string(s), nil }

type okRunner struct{}

func (okRunner) Query(context.Context, string) (*datasetdb.Result, error) {
	return &datasetdb.Result{Columns: []string{"n"}, Rows: [][]any{{42}}, RowCount: 1, MaxRows: 200}, nil
}

func newGraph(llm LLM, maxRounds int) *Graph {
	set := tools.NewSet(tools.SQLQuery(okRunner{}, "main"))
	return New(logger.Nop(), llm, set, staticSchema("- sales(day date)"), Config{MaxToolRounds: maxRounds})
}

func TestRunExecutesToolsThenAnswers(t *testing.T) {
	llm := &scriptedLLM{replies: []oai.ChatCompletionMessage{
		sqlCall("c1", "SELECT count(*) FROM sales"),
		answer("There were 42 sales."),
	}}
	var steps []transcript.Message
	res, err := newGraph(llm, 12).Run(context.Background(),
		[]transcript.Message{{Kind: transcript.User, Content: "How many sales?"}},
		func(m transcript.Message) { steps = append(steps, m) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "There were 42 sales." {
		t.Fatalf("answer: %q", res.Answer)
	}
	if len(res.Messages) != 3 || len(steps) != 3 {
		t.Fatalf("messages: want=3 got=%d (steps %d)", len(res.Messages), len(steps))
	}
	if res.Messages[1].Kind != transcript.Tool || !strings.Contains(res.Messages[1].Content, "42") {
		t.Fatalf("tool message: %+v", res.Messages[1])
	}
	if len(res.SQL) != 1 || res.SQL[0] != "SELECT count(*) FROM sales" {
		t.Fatalf("sql: %v", res.SQL)
	}
	first := llm.requests[0]
	if first.Messages[0].Role != oai.ChatMessageRoleSystem || !strings.Contains(first.Messages[0].Content, "- sales(day date)") {
		t.Fatalf("system prompt missing schema: %q", first.Messages[0].Content)
	}
	if len(first.Tools) != 1 {
		t.Fatalf("tools bound: want=1 got=%d", len(first.Tools))
	}
	second := llm.requests[1]
	if last := second.Messages[len(second.Messages)-1]; last.Role != oai.ChatMessageRoleTool || last.ToolCallID != "c1" {
		t.Fatalf("tool result not fed back: %+v", last)
	}
}

func TestRunForcesAnswerAtRoundCap(t *testing.T) {
	llm := &scriptedLLM{replies: []oai.ChatCompletionMessage{sqlCall("c", "SELECT 1")}}
	llm.replies[0].Content = "best effort answer"
	res, err := newGraph(llm, 2).Run(context.Background(), []transcript.Message{{Kind: transcript.User, Content: "q"}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(llm.requests) != 3 {
		t.Fatalf("model calls: want=3 got=%d", len(llm.requests))
	}
	if len(llm.requests[2].Tools) != 0 {
		t.Fatalf("final call must not bind tools")
	}
	if res.Answer != "best effort answer" || res.Rounds != 2 || len(res.SQL) != 2 {
		t.Fatalf("result: answer=%q rounds=%d sql=%d", res.Answer, res.Rounds, len(res.SQL))
	}
}

func TestRunPropagatesModelErrors(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("upstream down")}
	if _, err := newGraph(llm, 3).Run(context.Background(), []transcript.Message{{Kind: transcript.User, Content: "q"}}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
