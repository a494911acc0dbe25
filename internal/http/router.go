package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/handlers"
	httpMW "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/middleware"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// AgentProxyPrefix is where the browser reaches the agent runtime.
const AgentProxyPrefix = "/api/agent"

type RouterConfig struct {
	Log     *logger.Logger
	Service string
	Origins []string
	Metrics *observability.Metrics

	AuthMiddleware      *httpMW.AuthMiddleware
	SessionStartLimiter httpMW.Limiter

	HealthHandler *httpH.HealthHandler
	StudyHandler  *httpH.StudyHandler
	ChatHandler   *httpH.ChatHandler
	AdminHandler  *httpH.AdminHandler
	AgentProxy    *httpH.AgentProxy

	// Agent runtime only.
	AgentHandler *httpH.AgentHandler
}

func newEngine(cfg RouterConfig, corsSkipPrefix string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Service))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	cors := httpMW.CORS(cfg.Origins)
	if corsSkipPrefix == "" {
		r.Use(cors)
	} else {
		// The proxy answers CORS itself from the upstream response.
		r.Use(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, corsSkipPrefix+"/") {
				c.Next()
				return
			}
			cors(c)
		})
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	return r
}

// NewRouter builds the study API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	skip := ""
	if cfg.AgentProxy != nil {
		skip = AgentProxyPrefix
	}
	r := newEngine(cfg, skip)
	am := cfg.AuthMiddleware

	study := r.Group("/api/study")
	if cfg.StudyHandler != nil {
		study.POST("/session/start", httpMW.RateLimit(cfg.Log, cfg.SessionStartLimiter), cfg.StudyHandler.StartSession)
	}

	participant := study.Group("/")
	participant.Use(am.RequireParticipant())
	if h := cfg.StudyHandler; h != nil {
		participant.GET("/me", h.Me)
		participant.POST("/heartbeat", h.Heartbeat)

		participant.GET("/pre", h.GetPreSurvey)
		participant.POST("/pre/submit", h.SubmitPreSurvey)

		participant.GET("/task/:n", h.GetTask)
		participant.POST("/task/:n/ready", h.Ready)
		participant.GET("/task/:n/post", h.GetPostSurvey)
		participant.POST("/task/:n/post/submit", h.SubmitPostSurvey)

		participant.GET("/final", h.GetFinalSurvey)
		participant.POST("/final/submit", h.SubmitFinalSurvey)
	}
	if h := cfg.ChatHandler; h != nil {
		participant.POST("/chat/thread/upsert", h.UpsertThread)
		participant.POST("/chat/thread/close", h.CloseThread)
		participant.POST("/side-panel/event", h.SidePanelEvent)

		study.GET("/chat/thread/dq/latest", am.RequireParticipantOrAdmin(), h.LatestDataQuality)
	}

	if h := cfg.AdminHandler; h != nil {
		admin := r.Group("/api/admin")
		admin.POST("/login", h.Login)

		protected := admin.Group("/")
		protected.Use(am.RequireAdmin())
		protected.GET("/participants", h.List)
		protected.POST("/participants", h.Provision)
		protected.POST("/participants/:id/withdraw", h.Withdraw)
		protected.POST("/participants/:id/invalidate", h.Invalidate)
	}

	if cfg.AgentProxy != nil {
		r.Any(AgentProxyPrefix+"/*path", cfg.AgentProxy.Handle)
	}
	return r
}

// NewAgentRouter builds the agent runtime API.
func NewAgentRouter(cfg RouterConfig) *gin.Engine {
	r := newEngine(cfg, "")
	if h := cfg.AgentHandler; h != nil {
		threads := r.Group("/threads")
		threads.Use(cfg.AuthMiddleware.RequireParticipant())
		threads.POST("", h.CreateThread)
		threads.GET("/:thread_id/state", h.State)
		threads.POST("/:thread_id/runs/wait", h.RunWait)
		threads.POST("/:thread_id/runs/stream", h.RunStream)
	}
	return r
}
