package schema

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/datasetdb"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type countingIntrospector struct {
	calls  int32
	tables []datasetdb.Table
	delay  time.Duration
}

func (c *countingIntrospector) Tables(ctx context.Context) ([]datasetdb.Table, error) {
	atomic.AddInt32(&c.calls, 1)
	time.Sleep(c.delay)
	return c.tables, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func sampleTables() []datasetdb.Table {
	return []datasetdb.Table{
		{Schema: "public", Name: "sales", Columns: []datasetdb.Column{{Name: "day", DataType: "date"}, {Name: "total", DataType: "integer"}}},
		{Schema: "ref", Name: "stores", Columns: []datasetdb.Column{{Name: "id", DataType: "integer"}}},
	}
}

func TestSummaryIsBuiltOnceForConcurrentCallers(t *testing.T) {
	intro := &countingIntrospector{tables: sampleTables(), delay: 20 * time.Millisecond}
	s := NewSummarizer(logger.Nop(), intro, nil, Config{})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.Summary(context.Background())
			if err != nil {
				t.Errorf("Summary: %v", err)
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&intro.calls); n != 1 {
		t.Fatalf("introspection calls: want=1 got=%d", n)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatalf("callers saw different summaries")
		}
	}
	if !strings.Contains(results[0], "- sales(day date, total integer)") || !strings.Contains(results[0], "- ref.stores(id integer)") {
		t.Fatalf("summary: %q", results[0])
	}
}

func TestSummaryRebuildsAfterTTL(t *testing.T) {
	intro := &countingIntrospector{tables: sampleTables()}
	s := NewSummarizer(logger.Nop(), intro, nil, Config{TTL: time.Minute})
	now := time.Unix(0, 0)
	s.now = func() time.Time { return now }

	if _, err := s.Summary(context.Background()); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	now = now.Add(30 * time.Second)
	_, _ = s.Summary(context.Background())
	if n := atomic.LoadInt32(&intro.calls); n != 1 {
		t.Fatalf("within ttl: want=1 call got=%d", n)
	}
	now = now.Add(time.Minute)
	_, _ = s.Summary(context.Background())
	if n := atomic.LoadInt32(&intro.calls); n != 2 {
		t.Fatalf("after ttl: want=2 calls got=%d", n)
	}
}

func TestSummaryUsesSharedCache(t *testing.T) {
	cache := &mapCache{m: map[string]string{cacheKey: "- cached(x int)\n"}}
	intro := &countingIntrospector{tables: sampleTables()}
	s := NewSummarizer(logger.Nop(), intro, cache, Config{})

	out, err := s.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if out != "- cached(x int)\n" || atomic.LoadInt32(&intro.calls) != 0 {
		t.Fatalf("expected cache hit, got %q with %d introspections", out, intro.calls)
	}
}

func TestRenderCapsLength(t *testing.T) {
	out := Render(sampleTables(), 40)
	if len(out) > 40+80 {
		t.Fatalf("render too long: %d", len(out))
	}
	if !strings.Contains(out, "1 more tables omitted") {
		t.Fatalf("expected omission note, got %q", out)
	}
	if Render(nil, 0) != "(no tables found)" {
		t.Fatalf("empty render")
	}
}
