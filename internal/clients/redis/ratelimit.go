package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	client *Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, prefix: prefix, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one hit for key and reports whether it is within the limit
// together with the time until the window resets. Without a client or with
// a non-positive limit every hit is allowed.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.client == nil || l.client.rdb == nil || l.limit <= 0 {
		return true, 0, nil
	}
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
	reset := time.Unix(0, (bucket+1)*int64(l.window)).Sub(now)

	pipe := l.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}
	return incr.Val() <= l.limit, reset, nil
}
