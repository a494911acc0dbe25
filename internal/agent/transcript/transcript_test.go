package transcript

import (
	"encoding/json"
	"strings"
	"testing"

	oai "github.com/sashabaranov/go-openai"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, s := range items {
		out = append(out, json.RawMessage(s))
	}
	return out
}

func TestNormalizeAcceptsClientShapes(t *testing.T) {
	msgs, err := Normalize(raws(
		`{"role":"system","content":"ignored"}`,
		`{"type":"human","content":[{"type":"text","text":"sales "},{"type":"text","text":"last week?"}]}`,
		`{"type":"ai","content":"","tool_calls":[{"id":"c1","name":"sql_query","args":{"query":"SELECT 1"}}]}`,
		`{"role":"tool","tool_call_id":"c1","name":"sql_query","content":"{\"rows\":[[1]]}"}`,
		`{"role":"assistant","content":"It was 1."}`,
	))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len: want=4 got=%d", len(msgs))
	}
	if msgs[0].Kind != User || msgs[0].Content != "sales last week?" {
		t.Fatalf("user message: %+v", msgs[0])
	}
	if !msgs[1].HasToolCalls() || msgs[1].ToolCalls[0].Arguments != `{"query":"SELECT 1"}` {
		t.Fatalf("assistant tool call: %+v", msgs[1])
	}
	if msgs[2].Kind != Tool || msgs[2].ToolCallID != "c1" {
		t.Fatalf("tool message: %+v", msgs[2])
	}

	conv := Conversation(msgs)
	if len(conv) != 2 || conv[1].Content != "It was 1." {
		t.Fatalf("Conversation: %+v", conv)
	}
	out := Render(msgs)
	if !strings.Contains(out, "<<<USER TURN 1>>>\nsales last week?") || !strings.Contains(out, "<<<ASSISTANT TURN 2>>>") {
		t.Fatalf("Render: %q", out)
	}
}

func TestNormalizeRejectsUnknownRole(t *testing.T) {
	if _, err := Normalize(raws(`{"role":"robot","content":"x"}`)); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := Normalize(raws(`{"role":"user","content":42}`)); err == nil {
		t.Fatalf("expected error for numeric content")
	}
}

func TestOpenAIRoundTripKeepsToolCalls(t *testing.T) {
	in := []Message{
		{Kind: User, Content: "q"},
		{Kind: Assistant, ToolCalls: []ToolCall{{ID: "c1", Name: "list_tables", Arguments: "{}"}}},
		{Kind: Tool, ToolCallID: "c1", Name: "list_tables", Content: "[]"},
	}
	out := ToOpenAI(in)
	if out[1].Role != oai.ChatMessageRoleAssistant || out[1].ToolCalls[0].Function.Name != "list_tables" {
		t.Fatalf("assistant: %+v", out[1])
	}
	if out[2].Role != oai.ChatMessageRoleTool || out[2].ToolCallID != "c1" {
		t.Fatalf("tool: %+v", out[2])
	}
	back := FromOpenAI(out[1])
	if !back.HasToolCalls() || back.ToolCalls[0].ID != "c1" {
		t.Fatalf("FromOpenAI: %+v", back)
	}

	rec := ToRecord(in[1])
	if rec.Role != "assistant" || len(rec.ToolCalls) == 0 {
		t.Fatalf("ToRecord: %+v", rec)
	}
	if got := FromRecord(rec); got.ToolCalls[0].Name != "list_tables" {
		t.Fatalf("FromRecord: %+v", got)
	}
}
