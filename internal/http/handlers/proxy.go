package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/middleware"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// AgentProxy forwards browser traffic to the agent runtime. Bodies stream
// through unbuffered; CORS is answered here for the configured origins.
type AgentProxy struct {
	log     *logger.Logger
	prefix  string
	origins []string
	proxy   *httputil.ReverseProxy
}

func NewAgentProxy(log *logger.Logger, target, prefix string, origins []string) (*AgentProxy, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid agent runtime url %q", target)
	}
	p := &AgentProxy{
		log:     log.With("handler", "AgentProxy"),
		prefix:  strings.TrimRight(prefix, "/"),
		origins: middleware.Origins(origins),
	}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, p.prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		FlushInterval:  -1,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
	}
	return p, nil
}

// Handle is mounted as a catch-all route under prefix.
func (p *AgentProxy) Handle(c *gin.Context) {
	p.proxy.ServeHTTP(c.Writer, c.Request)
}

func (p *AgentProxy) modifyResponse(resp *http.Response) error {
	h := resp.Header
	origin := resp.Request.Header.Get("Origin")
	h.Del("Access-Control-Allow-Origin")
	h.Del("Access-Control-Allow-Credentials")
	if origin != "" && middleware.OriginAllowed(p.origins, origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
	}
	if strings.HasPrefix(h.Get("Content-Type"), "text/event-stream") {
		h.Del("Content-Length")
		resp.ContentLength = -1
	}
	return nil
}

func (p *AgentProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	p.log.Warn("agent runtime unreachable", "path", r.URL.Path, "error", err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(response.ErrorEnvelope{Error: "agent runtime is unavailable", Code: "agent_unavailable"})
}
