package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// RedisQuotaStore keeps guest counters in Redis. The read-check-increment runs
// inside one Lua script, which Redis executes atomically, so concurrent calls
// for the same client are linearizable across every relay process.
type RedisQuotaStore struct {
	redis  *redis.Client
	script *redis.Script
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisQuotaStore returns a store with the given rolling window.
func NewRedisQuotaStore(rdb *redis.Client, window time.Duration) *RedisQuotaStore {
	if rdb == nil {
		return nil
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisQuotaStore{
		redis:  rdb,
		script: redis.NewScript(luaQuotaScript),
		window: window,
		prefix: "quota:",
		now:    time.Now,
	}
}

// Keys hold count and window_start (unix ms). A record older than the window is
// reset before the check. A denial leaves the hash untouched.
const luaQuotaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local count = 0
local window_start = now

local data = redis.call("HMGET", key, "count", "window_start")
if data[1] ~= false and data[1] ~= nil then
  count = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  window_start = tonumber(data[2])
end

if now - window_start > window then
  count = 0
  window_start = now
end

if count >= limit then
  return { 0, 0 }
end

count = count + 1
redis.call("HSET", key, "count", count, "window_start", window_start)
redis.call("PEXPIRE", key, window * 2)

return { 1, limit - count }
`

// CheckAndIncrement implements domain.QuotaStore.
func (s *RedisQuotaStore) CheckAndIncrement(ctx context.Context, clientID string, dailyLimit int) (domain.QuotaDecision, error) {
	nowMs := s.now().UnixMilli()
	res, err := s.script.Run(ctx, s.redis, []string{s.prefix + clientID}, dailyLimit, nowMs, s.window.Milliseconds()).Result()
	if err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("op=quota.redis.CheckAndIncrement: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return domain.QuotaDecision{}, fmt.Errorf("op=quota.redis.CheckAndIncrement: unexpected script result %v: %w", res, domain.ErrInternal)
	}
	return domain.QuotaDecision{
		Allowed:   toInt64(vals[0]) == 1,
		Remaining: int(toInt64(vals[1])),
	}, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
