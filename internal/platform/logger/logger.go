package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for the given environment. LOG_LEVEL overrides the
// default level (info in production, debug otherwise).
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if lvl, err := zap.ParseAtomicLevel(strings.ToLower(raw)); err == nil {
			cfg.Level = lvl
		}
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, scrub(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(scrub(kv)...)}
}

type treatment int

const (
	keep treatment = iota
	redact
	pseudonymize
	clip
)

// Substring rules, checked in order. Participant identifiers are
// pseudonymized so log lines of one participant still correlate.
var keyRules = []struct {
	substr string
	how    treatment
}{
	{"access_code", redact},
	{"token", redact},
	{"authorization", redact},
	{"password", redact},
	{"secret", redact},
	{"api_key", redact},
	{"dsn", redact},
	{"email", redact},
	{"participant_id", pseudonymize},
	{"admin_id", pseudonymize},
	{"client_ip", pseudonymize},
	{"content", clip},
	{"answer", clip},
}

const (
	redacted = "[redacted]"
	clipLen  = 200
)

func classify(key string) treatment {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, r := range keyRules {
		if strings.Contains(key, r.substr) {
			return r.how
		}
	}
	return keep
}

// scrub rewrites sensitive values of a sugared key/value list. Set
// LOG_REDACTION_ENABLED=false to log raw values during local debugging.
func scrub(kv []interface{}) []interface{} {
	if len(kv) == 0 || !settings().enabled {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		out[i+1] = scrubValue(classify(key), out[i+1])
	}
	return out
}

func scrubValue(how treatment, val interface{}) interface{} {
	switch how {
	case redact:
		return redacted
	case pseudonymize:
		return pseudonym(val)
	case clip:
		if s, ok := val.(string); ok && len(s) > clipLen {
			return s[:clipLen] + "..."
		}
	}
	if s, ok := val.(string); ok && isBearerToken(s) {
		return redacted
	}
	return val
}

func pseudonym(val interface{}) string {
	raw := strings.TrimSpace(fmt.Sprint(val))
	if val == nil || raw == "" {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte(settings().salt))
	_, _ = h.Write([]byte(raw))
	return "p:" + hex.EncodeToString(h.Sum(nil))[:12]
}

// isBearerToken matches the three-part signed tokens issued to participants
// and admins, whatever key they were logged under.
func isBearerToken(s string) bool {
	s = strings.TrimPrefix(s, "Bearer ")
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10 && len(parts[2]) > 10
}

type redaction struct {
	enabled bool
	salt    string
}

var (
	redactionOnce sync.Once
	redactionCfg  redaction
)

func settings() redaction {
	redactionOnce.Do(func() {
		redactionCfg.enabled = true
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			redactionCfg.enabled = false
		}
		redactionCfg.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return redactionCfg
}
