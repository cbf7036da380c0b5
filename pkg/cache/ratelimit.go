package cache

import (
	"context"
	"fmt"
	"time"
)

// SendLimiter is a fixed-window hourly counter backed by Redis, shared
// across worker processes. It implements domain.SendRateLimiter.
type SendLimiter struct {
	client *Client
}

// NewSendLimiter creates a redis-backed send limiter
func NewSendLimiter(client *Client) *SendLimiter {
	return &SendLimiter{client: client}
}

// Allow increments the counter for key's current hour window and reports
// whether the budget still holds. The first increment sets the window TTL.
func (l *SendLimiter) Allow(ctx context.Context, key string, perHour int) (bool, error) {
	window := time.Now().UTC().Format("2006010215")
	counterKey := fmt.Sprintf("ratelimit:%s:%s", key, window)

	count, err := l.client.Redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Redis.Expire(ctx, counterKey, time.Hour).Err(); err != nil {
			return false, fmt.Errorf("failed to expire rate counter: %w", err)
		}
	}
	return count <= int64(perHour), nil
}
