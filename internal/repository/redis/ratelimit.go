package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisx "github.com/kirinyoku/tixledger/internal/redis"
)

// Sliding window over a sorted set of admitted hits. Rejected hits are not
// recorded, so hammering a full window does not extend it.
//
// KEYS[1] = hit set
// KEYS[2] = member sequence
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
//
// Returns {admitted, hits in window, retry_after_ms}.
const luaSlidingWindow = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])

if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local wait = window
  if oldest[2] then
    wait = window - (now - tonumber(oldest[2]))
  end
  if wait < 0 then wait = 0 end
  return {0, count, wait}
end

local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], now, now .. '-' .. seq)
redis.call('PEXPIRE', KEYS[1], window)
redis.call('PEXPIRE', KEYS[2], window)

return {1, count + 1, 0}
`

var slidingWindow = redis.NewScript(luaSlidingWindow)

type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindowLimiter admits at most limit hits per window for every
// subject within scope.
func NewSlidingWindowLimiter(
	rdb *redis.Client,
	scope string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// keys share a hash tag so the script stays on one cluster slot.
func (l *SlidingWindowLimiter) keys(subject string) []string {
	base := redisx.KeyRateLimit(l.scope, "{"+subject+"}")
	return []string{base, base + ":seq"}
}

// Allow records a hit for subject if the window has room.
//
// Returns:
//   - allowed: whether the hit was admitted.
//   - current: hits in the window, including this one when admitted.
//   - retryAfter: wait until the oldest hit leaves the window; zero when
//     admitted.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, subject string) (allowed bool, current int64, retryAfter time.Duration, err error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	res, err := slidingWindow.Run(
		ctx,
		l.rdb,
		l.keys(subject),
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit,
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
}
