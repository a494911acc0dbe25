// Package transcript normalizes agent messages into one tagged type at the
// system boundary. Client payloads, persisted rows and model messages are
// all converted through here.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	oai "github.com/sashabaranov/go-openai"
	"gorm.io/datatypes"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
)

type Kind string

const (
	User      Kind = "user"
	Assistant Kind = "assistant"
	Tool      Kind = "tool"
)

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a User, Assistant or Tool message. ToolCalls is only set on
// assistant messages; ToolCallID and Name only on tool messages.
type Message struct {
	Kind       Kind       `json:"type"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func (m Message) HasToolCalls() bool { return m.Kind == Assistant && len(m.ToolCalls) > 0 }

// wire accepts the shapes clients send: OpenAI style {"role": ...} and
// LangGraph style {"type": "human"|"ai"|"tool"}. Content may be a string or
// a list of {"type":"text","text":...} parts.
type wire struct {
	Role       string          `json:"role"`
	Type       string          `json:"type"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	ToolCalls  []wireToolCall  `json:"tool_calls"`
}

type wireToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	Function *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func kindOf(role string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return User, true
	case "assistant", "ai":
		return Assistant, true
	case "tool", "function":
		return Tool, true
	}
	return "", false
}

// Normalize decodes raw client messages. System messages are dropped since
// the system prompt is owned by the graph.
func Normalize(raw []json.RawMessage) ([]Message, error) {
	out := make([]Message, 0, len(raw))
	for i, r := range raw {
		var w wire
		if err := json.Unmarshal(r, &w); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		role := w.Role
		if role == "" {
			role = w.Type
		}
		if strings.EqualFold(strings.TrimSpace(role), "system") {
			continue
		}
		kind, ok := kindOf(role)
		if !ok {
			return nil, fmt.Errorf("message %d: unknown role %q", i, role)
		}
		content, err := contentText(w.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		m := Message{Kind: kind, Content: content}
		switch kind {
		case Assistant:
			for _, tc := range w.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, tc.normalize())
			}
		case Tool:
			m.ToolCallID = w.ToolCallID
			m.Name = w.Name
		}
		out = append(out, m)
	}
	return out, nil
}

func (tc wireToolCall) normalize() ToolCall {
	if tc.Function != nil {
		return ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	args := strings.TrimSpace(string(tc.Args))
	if args == "" || args == "null" {
		args = "{}"
	}
	return ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args}
}

func contentText(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", err
		}
		return text, nil
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content must be a string or a list of text parts")
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func ToOpenAI(msgs []Message) []oai.ChatCompletionMessage {
	out := make([]oai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case User:
			out = append(out, oai.ChatCompletionMessage{Role: oai.ChatMessageRoleUser, Content: m.Content})
		case Assistant:
			msg := oai.ChatCompletionMessage{Role: oai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, oai.ToolCall{
					ID:       tc.ID,
					Type:     oai.ToolTypeFunction,
					Function: oai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
			out = append(out, msg)
		case Tool:
			out = append(out, oai.ChatCompletionMessage{Role: oai.ChatMessageRoleTool, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name})
		}
	}
	return out
}

// FromOpenAI converts a model response message.
func FromOpenAI(m oai.ChatCompletionMessage) Message {
	out := Message{Kind: Assistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

func FromRecord(r *types.AgentMessage) Message {
	m := Message{Content: r.Content, ToolCallID: r.ToolCallID, Name: r.Name}
	switch r.Role {
	case types.RoleUser:
		m.Kind = User
	case types.RoleTool:
		m.Kind = Tool
	default:
		m.Kind = Assistant
	}
	if len(r.ToolCalls) > 0 {
		_ = json.Unmarshal(r.ToolCalls, &m.ToolCalls)
	}
	return m
}

func FromRecords(rows []*types.AgentMessage) []Message {
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRecord(r))
	}
	return out
}

// ToRecord builds the row for m. The caller sets thread, seq and run.
func ToRecord(m Message) *types.AgentMessage {
	r := &types.AgentMessage{Role: string(m.Kind), Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
	if len(m.ToolCalls) > 0 {
		if b, err := json.Marshal(m.ToolCalls); err == nil {
			r.ToolCalls = datatypes.JSON(b)
		}
	}
	return r
}

// Conversation keeps only user turns and assistant answers, dropping tool
// traffic and intermediate tool-calling assistant messages.
func Conversation(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Kind == User:
			out = append(out, m)
		case m.Kind == Assistant && !m.HasToolCalls() && strings.TrimSpace(m.Content) != "":
			out = append(out, m)
		}
	}
	return out
}

// Render writes the conversation with explicit turn delimiters.
func Render(msgs []Message) string {
	var b strings.Builder
	for i, m := range Conversation(msgs) {
		label := "USER"
		if m.Kind == Assistant {
			label = "ASSISTANT"
		}
		fmt.Fprintf(&b, "<<<%s TURN %d>>>\n%s\n<<<END %s TURN %d>>>\n", label, i+1, strings.TrimSpace(m.Content), label, i+1)
	}
	return b.String()
}
