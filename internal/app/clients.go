package app

import (
	"fmt"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/clients/redis"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/datasetdb"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/openai"
)

// openRedis returns nil without REDIS_ADDR. In development a broken Redis
// only disables the cache and the rate limit.
func openRedis(log *logger.Logger, cfg Config) (*redis.Client, error) {
	client, err := redis.NewClient(log, redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		log.Warn("redis unavailable, continuing without cache and rate limit", "error", err)
		return nil, nil
	}
	return client, nil
}

func openDataset(log *logger.Logger, cfg Config) (*datasetdb.DB, error) {
	db, err := datasetdb.Open(log, datasetdb.Config{
		DSN:              cfg.DatasetDSN,
		MaxConns:         cfg.DatasetMaxConns,
		StatementTimeout: cfg.DatasetStatementTimeout,
		MaxRows:          cfg.DatasetMaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("init dataset db: %w", err)
	}
	return db, nil
}

// openLLM returns the main client and the data-quality client, which only
// differs in its default model.
func openLLM(log *logger.Logger, cfg Config) (openai.Client, openai.Client, error) {
	primary, err := openai.NewClient(log, openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
		MaxRetries:  cfg.OpenAIMaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init openai: %w", err)
	}
	return primary, openai.WithModel(primary, cfg.OpenAIDQModel), nil
}
