// Package schema renders the dataset schema summary embedded in agent
// prompts. The summary is computed once per TTL behind a singleflight group
// and optionally shared across processes through Redis.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/datasetdb"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

const cacheKey = "studybridge:schema_summary:v1"

type Introspector interface {
	Tables(ctx context.Context) ([]datasetdb.Table, error)
}

// Cache is the optional second level shared between processes.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Config struct {
	MaxChars int
	TTL      time.Duration
}

type Summarizer struct {
	log      *logger.Logger
	intro    Introspector
	cache    Cache
	maxChars int
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	summary string
	builtAt time.Time
}

func NewSummarizer(log *logger.Logger, intro Introspector, cache Cache, cfg Config) *Summarizer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 12000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &Summarizer{
		log:      log.With("service", "SchemaSummarizer"),
		intro:    intro,
		cache:    cache,
		maxChars: cfg.MaxChars,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
}

// Summary returns the cached summary, rebuilding it when older than the TTL.
// Concurrent callers share one rebuild.
func (s *Summarizer) Summary(ctx context.Context) (string, error) {
	if out, ok := s.fresh(); ok {
		return out, nil
	}
	v, err, _ := s.group.Do("summary", func() (any, error) {
		if out, ok := s.fresh(); ok {
			return out, nil
		}
		return s.rebuild(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Tables returns the live table list. Tools use it for lookups.
func (s *Summarizer) Tables(ctx context.Context) ([]datasetdb.Table, error) {
	return s.intro.Tables(ctx)
}

func (s *Summarizer) rebuild(ctx context.Context) (string, error) {
	if s.cache != nil {
		if v, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
			s.log.Warn("schema summary cache read failed", "error", err)
		} else if ok && v != "" {
			s.store(v)
			return v, nil
		}
	}
	tables, err := s.intro.Tables(ctx)
	if err != nil {
		return "", fmt.Errorf("introspect dataset schema: %w", err)
	}
	out := Render(tables, s.maxChars)
	s.store(out)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, out, s.ttl); err != nil {
			s.log.Warn("schema summary cache write failed", "error", err)
		}
	}
	s.log.Debug("schema summary rebuilt", "tables", len(tables), "chars", len(out))
	return out, nil
}

func (s *Summarizer) fresh() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary != "" && s.now().Sub(s.builtAt) < s.ttl {
		return s.summary, true
	}
	return "", false
}

func (s *Summarizer) store(v string) {
	s.mu.Lock()
	s.summary = v
	s.builtAt = s.now()
	s.mu.Unlock()
}

// Render writes one line per table and stops before maxChars, noting how
// many tables were left out.
func Render(tables []datasetdb.Table, maxChars int) string {
	if len(tables) == 0 {
		return "(no tables found)"
	}
	var b strings.Builder
	for i, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name+" "+c.DataType)
		}
		line := fmt.Sprintf("- %s(%s)\n", t.QualifiedName(), strings.Join(cols, ", "))
		if maxChars > 0 && b.Len()+len(line) > maxChars {
			fmt.Fprintf(&b, "... %d more tables omitted; use list_tables and describe_table.\n", len(tables)-i)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}
