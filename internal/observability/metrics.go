package observability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/envutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// Metrics is nil when METRICS_ENABLED is off. Every method is safe on a nil
// receiver so call sites never check.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	ledgerEvents *prometheus.CounterVec
	dqOutcomes   *prometheus.CounterVec
	sqlQueries   *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("prometheus metrics initialized")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_api_requests_total",
			Help: "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "study_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "study_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_llm_requests_total",
			Help: "LLM calls by model, pass and outcome.",
		}, []string{"model", "pass", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "study_llm_request_duration_seconds",
			Help:    "LLM call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"model", "pass"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_llm_tokens_total",
			Help: "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		ledgerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_ledger_events_total",
			Help: "Chat and side-panel ledger events.",
		}, []string{"event"}),
		dqOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_dq_pass_total",
			Help: "Data-quality shadow pass outcomes by status.",
		}, []string{"status"}),
		sqlQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_dataset_sql_total",
			Help: "Dataset SQL executions by pass and outcome.",
		}, []string{"pass", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.ledgerEvents, m.dqOutcomes, m.sqlQueries,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMCall(model, pass, outcome string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.WithLabelValues(model, pass, outcome).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, pass).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncLedgerEvent(event string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDQOutcome(status string) {
	if m == nil {
		return
	}
	m.dqOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSQL(pass, outcome string) {
	if m == nil {
		return
	}
	m.sqlQueries.WithLabelValues(pass, outcome).Inc()
}
