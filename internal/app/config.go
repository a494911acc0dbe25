package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read from an optional YAML file, then the environment. Keys are
// the environment variable names.
type Config struct {
	Port        string `mapstructure:"PORT"`
	AgentPort   string `mapstructure:"AGENT_PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogMode     string `mapstructure:"LOG_MODE"`

	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	DatasetDSN              string        `mapstructure:"DATASET_DSN"`
	DatasetMaxConns         int           `mapstructure:"DATASET_MAX_CONNS"`
	DatasetStatementTimeout time.Duration `mapstructure:"DATASET_STATEMENT_TIMEOUT"`
	DatasetMaxRows          int           `mapstructure:"DATASET_MAX_ROWS"`
	SchemaSummaryMaxChars   int           `mapstructure:"SCHEMA_SUMMARY_MAX_CHARS"`
	SchemaSummaryTTL        time.Duration `mapstructure:"SCHEMA_SUMMARY_TTL"`

	SessionTokenSecret string        `mapstructure:"SESSION_TOKEN_SECRET"`
	SessionTokenTTL    time.Duration `mapstructure:"SESSION_TOKEN_TTL"`
	AdminTokenTTL      time.Duration `mapstructure:"ADMIN_TOKEN_TTL"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	AgentRuntimeURL    string   `mapstructure:"AGENT_RUNTIME_URL"`

	OpenAIAPIKey      string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel       string        `mapstructure:"OPENAI_MODEL"`
	OpenAIDQModel     string        `mapstructure:"OPENAI_DQ_MODEL"`
	OpenAITemperature *float64      `mapstructure:"-"`
	OpenAITimeout     time.Duration `mapstructure:"OPENAI_TIMEOUT"`
	OpenAIMaxRetries  int           `mapstructure:"OPENAI_MAX_RETRIES"`

	AgentMaxToolRounds int `mapstructure:"AGENT_MAX_TOOL_ROUNDS"`
	DQMaxSQLCalls      int `mapstructure:"DQ_MAX_SQL_CALLS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// SessionStartRateLimit is requests per client IP and minute; 0 disables.
	SessionStartRateLimit int `mapstructure:"SESSION_START_RATE_LIMIT"`

	SeedFile string `mapstructure:"SEED_FILE"`
}

var configKeys = []string{
	"PORT", "AGENT_PORT", "ENVIRONMENT", "LOG_MODE",
	"POSTGRES_DSN",
	"DATASET_DSN", "DATASET_MAX_CONNS", "DATASET_STATEMENT_TIMEOUT", "DATASET_MAX_ROWS",
	"SCHEMA_SUMMARY_MAX_CHARS", "SCHEMA_SUMMARY_TTL",
	"SESSION_TOKEN_SECRET", "SESSION_TOKEN_TTL", "ADMIN_TOKEN_TTL",
	"CORS_ALLOWED_ORIGINS", "AGENT_RUNTIME_URL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_DQ_MODEL",
	"OPENAI_TEMPERATURE", "OPENAI_TIMEOUT", "OPENAI_MAX_RETRIES",
	"AGENT_MAX_TOOL_ROUNDS", "DQ_MAX_SQL_CALLS",
	"REDIS_ADDR", "REDIS_PASSWORD",
	"SESSION_START_RATE_LIMIT", "SEED_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("AGENT_PORT", "8081")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("DATASET_MAX_CONNS", 5)
	v.SetDefault("DATASET_STATEMENT_TIMEOUT", 15*time.Second)
	v.SetDefault("DATASET_MAX_ROWS", 200)
	v.SetDefault("SCHEMA_SUMMARY_MAX_CHARS", 12000)
	v.SetDefault("SCHEMA_SUMMARY_TTL", 10*time.Minute)
	v.SetDefault("SESSION_TOKEN_TTL", 2*time.Hour)
	v.SetDefault("ADMIN_TOKEN_TTL", 8*time.Hour)
	v.SetDefault("AGENT_RUNTIME_URL", "http://localhost:8081")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TIMEOUT", 120*time.Second)
	v.SetDefault("OPENAI_MAX_RETRIES", 2)
	v.SetDefault("AGENT_MAX_TOOL_ROUNDS", 12)
	v.SetDefault("DQ_MAX_SQL_CALLS", 5)
	v.SetDefault("SESSION_START_RATE_LIMIT", 20)
	v.SetDefault("SEED_FILE", "seeds/study.yaml")
}

// LoadConfig reads path (if set) and the environment. It does not validate;
// each binary validates what it needs.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, k := range configKeys {
		_ = v.BindEnv(k)
	}
	if p := strings.TrimSpace(path); p != "" {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", p, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(v.GetStringSlice("CORS_ALLOWED_ORIGINS"))
	if v.IsSet("OPENAI_TEMPERATURE") && strings.TrimSpace(v.GetString("OPENAI_TEMPERATURE")) != "" {
		t := v.GetFloat64("OPENAI_TEMPERATURE")
		cfg.OpenAITemperature = &t
	}
	return cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ValidateStudy checks what the study server and the CLI need.
func (c Config) ValidateStudy() error {
	var errs []error
	if strings.TrimSpace(c.PostgresDSN) == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if len(strings.TrimSpace(c.SessionTokenSecret)) < 32 {
		errs = append(errs, errors.New("SESSION_TOKEN_SECRET must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

// ValidateAgent adds the dataset and model settings the agent runtime needs.
func (c Config) ValidateAgent() error {
	errs := []error{c.ValidateStudy()}
	if strings.TrimSpace(c.DatasetDSN) == "" {
		errs = append(errs, errors.New("DATASET_DSN is required"))
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
