package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model", MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.sleep = func(context.Context, time.Duration) error { return nil }
	return cc
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    "c1",
		"model": "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	})
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		var req oai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model: want=test-model got=%s", req.Model)
		}
		writeCompletion(w, "hello")
	})

	resp, err := c.Complete(context.Background(), "main", oai.ChatCompletionRequest{
		Messages: []oai.ChatCompletionMessage{{Role: oai.ChatMessageRoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := resp.Choices[0].Message.Content; got != "hello" {
		t.Fatalf("content: want=hello got=%q", got)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls: want=2 got=%d", n)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad tool schema","type":"invalid_request_error"}}`))
	})

	_, err := c.Complete(context.Background(), "main", oai.ChatCompletionRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if statusCode(err) != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d (%v)", statusCode(err), err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls: want=1 got=%d", n)
	}
}

func TestWithModelOverridesDefault(t *testing.T) {
	var seen string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req oai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen = req.Model
		writeCompletion(w, "{}")
	})
	dq := WithModel(c, "audit-model")
	if dq.Model() != "audit-model" || c.Model() != "test-model" {
		t.Fatalf("models: dq=%s base=%s", dq.Model(), c.Model())
	}
	if _, err := dq.Complete(context.Background(), "dq", oai.ChatCompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if seen != "audit-model" {
		t.Fatalf("request model: want=audit-model got=%s", seen)
	}
}
