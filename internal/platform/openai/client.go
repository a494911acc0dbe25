package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/observability"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/httpx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// Client is the chat-completions client used by the agent graph and the
// data-quality pass. pass labels metrics and logs ("main", "dq").
type Client interface {
	Complete(ctx context.Context, pass string, req oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error)
	Model() string
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  int
}

// WithModel returns a client that uses model for requests that leave the
// model empty. If model is empty or base is not a *client, base is returned.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := *c
		clone.model = model
		return &clone
	}
	return base
}

type client struct {
	log         *logger.Logger
	api         *oai.Client
	model       string
	temperature *float64
	maxRetries  int
	sleep       func(context.Context, time.Duration) error
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	apiCfg := oai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &client{
		log:         log.With("service", "OpenAIClient"),
		api:         oai.NewClientWithConfig(apiCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		sleep:       httpx.Sleep,
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) Complete(ctx context.Context, pass string, req oai.ChatCompletionRequest) (oai.ChatCompletionResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = c.model
	}
	if req.Temperature == 0 && c.temperature != nil {
		req.Temperature = float32(*c.temperature)
	}

	backoff := 1 * time.Second
	start := time.Now()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return oai.ChatCompletionResponse{}, ctx.Err()
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMCall(req.Model, pass, "ok", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp, nil
		}

		if !isRetryable(err) || attempt == c.maxRetries {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMCall(req.Model, pass, outcome(err), time.Since(start), 0, 0)
			}
			return oai.ChatCompletionResponse{}, err
		}

		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("OpenAI request retrying",
			"pass", pass,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, sleepFor); err != nil {
			return oai.ChatCompletionResponse{}, err
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return oai.ChatCompletionResponse{}, fmt.Errorf("unreachable retry loop")
}

func statusCode(err error) int {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRetryable(err error) bool {
	if code := statusCode(err); code != 0 {
		return httpx.IsRetryableHTTPStatus(code)
	}
	return httpx.IsRetryableError(err)
}

func outcome(err error) string {
	if code := statusCode(err); code != 0 {
		return strconv.Itoa(code)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
