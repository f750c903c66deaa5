package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "imgdrop:rate:"

// RedisRateWindowRepository keeps one sorted set of admission timestamps per
// origin. Trimming, counting and recording happen in a single script, and the
// key expires one window after the last admission.
type RedisRateWindowRepository struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateWindowRepository wraps an existing client.
func NewRedisRateWindowRepository(client *redis.Client, limit int, window time.Duration) *RedisRateWindowRepository {
	if limit <= 0 {
		limit = 1
	}
	return &RedisRateWindowRepository{client: client, limit: limit, window: window}
}

// Admit atomically checks and records one attempt for origin.
func (r *RedisRateWindowRepository) Admit(ctx context.Context, origin string, now time.Time) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limit store unavailable")
	}
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	res, err := r.client.Eval(ctx, admitScript, []string{rateKey(origin)},
		nowMs,
		r.window.Milliseconds(),
		r.limit,
		member,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis admit %s: %w", origin, err)
	}
	return res == 1, nil
}

func rateKey(origin string) string {
	return rateKeyPrefix + origin
}

const admitScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= limit then
  return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`
