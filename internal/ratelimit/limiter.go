package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewLimiter creates a new rate limiter. If rdb is nil, all checks pass (fail open).
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb, prefix: "moderation:quota:"}
}

// slidingWindowScript atomically removes expired entries, counts, and adds
// cost entries when they all fit under the limit.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro)
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// ARGV[5] = unique member prefix for this check
// ARGV[6] = cost
// Returns: [current_count, 1=allowed/0=denied]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local cost = tonumber(ARGV[6])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count + cost <= limit then
    for i = 1, cost do
        redis.call('ZADD', key, now, ARGV[5] .. ':' .. i)
    end
    redis.call('EXPIRE', key, ttl)
    return {count + cost, 1}
end

redis.call('EXPIRE', key, ttl)
return {count, 0}
`)

// Check performs a sliding-window rate limit check. Redis errors fail open.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) LimitResult {
	return l.CheckN(ctx, key, limit, window, 1)
}

// CheckN is Check for an operation that consumes cost units at once. It is
// allowed only when every unit fits in the window.
func (l *Limiter) CheckN(ctx context.Context, key string, limit int64, window time.Duration, cost int64) LimitResult {
	now := time.Now()
	if cost < 1 {
		cost = 1
	}
	if l == nil || l.rdb == nil {
		return LimitResult{Allowed: true, Remaining: max(limit-cost, 0), ResetAt: now.Add(window)}
	}

	ttlSecs := int64(window.Seconds()) + 1
	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.prefix + key},
		now.Add(-window).UnixMicro(), now.UnixMicro(), limit, ttlSecs, uuid.NewString(), cost,
	).Int64Slice()
	if err != nil {
		slog.Warn("quota check failed, allowing call", "key", key, "error", err)
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}
	}

	remaining := limit - result[0]
	if remaining < 0 {
		remaining = 0
	}
	return LimitResult{
		Allowed:   result[1] == 1,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}
}

// QuotaGuard caps upstream calls per signal source. A nil guard, or a source
// without a configured limit, always allows.
type QuotaGuard struct {
	limiter *Limiter
	limits  map[string]int64
	window  time.Duration
}

func NewQuotaGuard(limiter *Limiter, limits map[string]int, window time.Duration) *QuotaGuard {
	if window <= 0 {
		window = time.Minute
	}
	l := make(map[string]int64, len(limits))
	for source, n := range limits {
		if n > 0 {
			l[source] = int64(n)
		}
	}
	return &QuotaGuard{limiter: limiter, limits: l, window: window}
}

// Allow reports whether source may make calls more upstream calls in the
// current window, and charges them if so.
func (g *QuotaGuard) Allow(ctx context.Context, source string, calls int) bool {
	if g == nil {
		return true
	}
	limit, ok := g.limits[source]
	if !ok {
		return true
	}
	return g.limiter.CheckN(ctx, source, limit, g.window, int64(calls)).Allowed
}
