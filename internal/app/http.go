package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/dq"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/graph"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/schema"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/agent/tools"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/clients/redis"
	httpserver "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http"
	httpH "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/handlers"
	httpMW "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/middleware"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

// NewStudy wires the study API, including the proxy to the agent runtime.
func NewStudy(cfg Config) (*App, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.initObservability("studybridge")
	if err := a.initRedis(); err != nil {
		a.Close()
		return nil, err
	}

	proxy, err := httpH.NewAgentProxy(a.Log, cfg.AgentRuntimeURL, httpserver.AgentProxyPrefix, cfg.CORSAllowedOrigins)
	if err != nil {
		a.Close()
		return nil, err
	}

	var limiter httpMW.Limiter
	if a.Redis != nil && cfg.SessionStartRateLimit > 0 {
		limiter = redis.NewRateLimiter(a.Redis, "studybridge:ratelimit:session_start", cfg.SessionStartRateLimit, time.Minute)
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	s := a.Services
	a.Router = httpserver.NewRouter(httpserver.RouterConfig{
		Log:                 a.Log,
		Service:             "studybridge",
		Origins:             cfg.CORSAllowedOrigins,
		Metrics:             observability.Current(),
		AuthMiddleware:      httpMW.NewAuthMiddleware(a.Log, a.Tokens, s.Participant),
		SessionStartLimiter: limiter,
		HealthHandler:       httpH.NewHealthHandler(sqlDB),
		StudyHandler:        httpH.NewStudyHandler(a.Log, s.Participant, s.Task, s.Survey),
		ChatHandler:         httpH.NewChatHandler(a.Log, s.ChatLedger, s.SidePanel, s.DataQuality),
		AdminHandler:        httpH.NewAdminHandler(a.Log, s.Admin),
		AgentProxy:          proxy,
	})
	return a, nil
}

// NewAgent wires the agent runtime: dataset pool, model clients, the
// compiled graph and the data-quality auditor.
func NewAgent(cfg Config) (*App, error) {
	if err := cfg.ValidateAgent(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	a.initObservability("studyagent")
	if err := a.initRedis(); err != nil {
		a.Close()
		return nil, err
	}

	dataset, err := openDataset(a.Log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, dataset.Close)

	mainLLM, dqLLM, err := openLLM(a.Log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var cache schema.Cache
	if a.Redis != nil {
		cache = a.Redis
	}
	summarizer := schema.NewSummarizer(a.Log, dataset, cache, schema.Config{
		MaxChars: cfg.SchemaSummaryMaxChars,
		TTL:      cfg.SchemaSummaryTTL,
	})
	toolset := tools.NewSet(
		tools.ListTables(dataset),
		tools.DescribeTable(dataset),
		tools.SQLQuery(dataset, "main"),
	)
	g := graph.New(a.Log, mainLLM, toolset, summarizer, graph.Config{MaxToolRounds: cfg.AgentMaxToolRounds})
	auditor := dq.NewAuditor(a.Log, dqLLM, dataset, dq.Config{MaxSQLCalls: cfg.DQMaxSQLCalls})

	s := &a.Services
	s.AgentRun = services.NewAgentRunService(a.DB, a.Log, s.ChatLedger, a.Repos.TaskSession, a.Repos.AgentMessage, g, auditor, s.DataQuality)

	sqlDB, err := a.DB.DB()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	a.Router = httpserver.NewAgentRouter(httpserver.RouterConfig{
		Log:            a.Log,
		Service:        "studyagent",
		Origins:        cfg.CORSAllowedOrigins,
		Metrics:        observability.Current(),
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Log, a.Tokens, s.Participant),
		HealthHandler:  httpH.NewHealthHandler(sqlDB),
		AgentHandler:   httpH.NewAgentHandler(a.Log, s.AgentRun),
	})
	return a, nil
}

// Run serves Router on port until ctx is cancelled.
func (a *App) Run(ctx context.Context, port string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := net.JoinHostPort("", port)
	a.Log.Info("listening", "addr", addr)
	return httpserver.NewServer(addr, a.Router).Run(ctx)
}
