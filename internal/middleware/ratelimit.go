package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/config"
	"github.com/iliyamo/cinema-seat-sync/internal/logger"
)

// bucketScript keeps {tokens, stamp} in a hash.  Tokens come back in
// whole refill intervals measured from stamp, capped at the capacity.
// Returns {allowed, tokens left, ms until the next refill when refused}.
var bucketScript = redis.NewScript(`
local now, cap, step, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local h = redis.call('HMGET', KEYS[1], 'tokens', 'stamp')
local tokens, stamp = tonumber(h[1]), tonumber(h[2])
if not tokens or not stamp then
  tokens, stamp = cap, now
end
local n = math.floor(math.max(0, now - stamp) / every)
if n > 0 then
  tokens = math.min(cap, tokens + n * step)
  stamp = stamp + n * every
end
local ok, wait = 0, 0
if tokens >= 1 then
  ok, tokens = 1, tokens - 1
else
  wait = math.max(0, stamp + every - now)
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// NewTokenBucket throttles the configured methods per caller and route.
// Authenticated callers are keyed by user, anyone else by client IP.
// Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.UniversalClient) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(cfg.Methods) > 0 && !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := rateKey(cfg.Prefix, c)
			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			res, err := bucketScript.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(res) != 3 {
				logger.Warn("ratelimit: bucket unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			allowed, remaining, retryMs := res[0] == 1, res[1], res[2]

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					logger.Debug("ratelimit: blocked", zap.String("key", key), zap.Int64("retry_ms", retryMs))
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

func rateKey(prefix string, c echo.Context) string {
	who := "ip:" + c.RealIP()
	if uid, ok := UserID(c); ok {
		who = "user:" + strconv.FormatUint(uid, 10)
	}
	return prefix + ":" + who + ":" + c.Request().Method + " " + c.Path()
}
