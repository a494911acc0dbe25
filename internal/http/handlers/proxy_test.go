package handlers

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

func newProxyEngine(t *testing.T, upstream string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := NewAgentProxy(logger.Nop(), upstream, "/api/agent", []string{"https://study.example.org"})
	if err != nil {
		t.Fatalf("NewAgentProxy: %v", err)
	}
	r := gin.New()
	r.Any("/api/agent/*path", p.Handle)
	return r
}

func TestAgentProxyForwardsAndReflectsOrigin(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth, gotQuery = r.URL.Path, r.Header.Get("Authorization"), r.URL.RawQuery
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"thread_id":"t-1"}`)
	}))
	defer upstream.Close()
	r := newProxyEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/threads?x=1", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Origin", "https://study.example.org")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if gotPath != "/threads" || gotQuery != "x=1" {
		t.Fatalf("upstream url: want=/threads?x=1 got=%s?%s", gotPath, gotQuery)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("authorization not forwarded: %q", gotAuth)
	}
	if got := rec.Header().Values("Access-Control-Allow-Origin"); len(got) != 1 || got[0] != "https://study.example.org" {
		t.Fatalf("allow-origin: want=[https://study.example.org] got=%v", got)
	}
	if rec.Body.String() != `{"thread_id":"t-1"}` {
		t.Fatalf("body: got=%s", rec.Body.String())
	}
}

func TestAgentProxyDropsUnknownOrigin(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()
	r := newProxyEngine(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/agent/threads/t-1/state", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin: want none got=%q", got)
	}
}

func TestAgentProxyStreamsEventStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "event: metadata\ndata: {\"run_id\":\"r\"}\n\nevent: end\ndata: null\n\n"
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		fmt.Fprint(w, body)
	}))
	defer upstream.Close()

	front := httptest.NewServer(newProxyEngine(t, upstream.URL))
	defer front.Close()

	resp, err := http.Post(front.URL+"/api/agent/threads/t-1/runs/stream", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.ContentLength != -1 || resp.Header.Get("Content-Length") != "" {
		t.Fatalf("content-length: want none got=%d %q", resp.ContentLength, resp.Header.Get("Content-Length"))
	}
	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	if strings.Join(events, ",") != "metadata,end" {
		t.Fatalf("events: want=metadata,end got=%v", events)
	}
}

func TestAgentProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()
	r := newProxyEngine(t, url)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/threads/t-1/state", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: want=502 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"agent_unavailable"`) {
		t.Fatalf("body: got=%s", rec.Body.String())
	}
}

func TestNewAgentProxyRejectsBadURL(t *testing.T) {
	if _, err := NewAgentProxy(logger.Nop(), "not a url", "/api/agent", nil); err == nil {
		t.Fatalf("want error for invalid url")
	}
}
