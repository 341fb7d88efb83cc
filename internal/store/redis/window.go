// Package redis implements the rate-limit window on Redis sorted sets, safe
// under concurrent writers from multiple request-handling workers.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// countAndRecordScript trims the window, counts what remains, and records the
// new event only when the prior count is under the limit. A single EVAL keeps
// check and record atomic, so two workers can never both admit the same slot.
// KEYS[1] window key; ARGV: window start (ms), limit, score (ms), member, ttl (ms).
// Returns {prior count, admitted 0|1}.
var countAndRecordScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return {count, 1}
end
return {count, 0}
`)

type WindowStore struct {
	client   *redis.Client
	scripter redis.Scripter
}

// New connects to Redis using the given URL.
func New(ctx context.Context, redisURL string) (*WindowStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %v", domain.ErrUpstream, err)
	}
	return &WindowStore{client: client, scripter: client}, nil
}

func (s *WindowStore) Close() error {
	return s.client.Close()
}

var _ domain.WindowStore = (*WindowStore)(nil)

func (s *WindowStore) CountAndRecord(ctx context.Context, roomID, senderID string, window time.Duration, limit int) (int, bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", roomID, senderID)
	now := time.Now()
	windowStart := now.Add(-window)

	res, err := countAndRecordScript.Run(ctx, s.scripter, []string{key},
		windowStart.UnixMilli(),
		limit,
		now.UnixMilli(),
		fmt.Sprintf("%d", now.UnixNano()),
		(2 * window).Milliseconds(),
	).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: rate limit window: %v", domain.ErrUpstream, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("%w: rate limit window: unexpected script reply %v", domain.ErrUpstream, res)
	}
	count, _ := vals[0].(int64)
	admitted, _ := vals[1].(int64)
	return int(count), admitted == 1, nil
}
