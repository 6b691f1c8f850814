package middleware

import (
	"net/http"
	"strconv"
	"time"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const rateLimitLuaScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
local added_tokens = elapsed * rate
tokens = math.min(capacity, tokens + added_tokens)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`

var rateLimitScript = redis.NewScript(rateLimitLuaScript)

var clock = time.Now

type bucketState struct {
	allowed    bool
	remaining  int
	retryAfter int
}

// parseBucket reads the {allowed, remaining, retry_after} reply of the script.
func parseBucket(result any, capacity int) bucketState {
	st := bucketState{remaining: capacity}
	arr, ok := result.([]any)
	if !ok || len(arr) < 3 {
		return st
	}
	if v, ok := arr[0].(int64); ok {
		st.allowed = v == 1
	}
	if v, ok := arr[1].(int64); ok {
		st.remaining = int(v)
	}
	if v, ok := arr[2].(int64); ok {
		st.retryAfter = int(v)
	}
	return st
}

// RateLimit is a per-client-IP token bucket kept in Redis: capacity 2*qps,
// refilled at qps tokens per second. A Redis failure lets the request through.
// Rejections use the chat reply shape so the widget can render them.
func RateLimit(client *redis.Client, prefix string, qps int) gin.HandlerFunc {
	capacity := 2 * qps
	rate := float64(qps)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		key := prefix + "rate_limit:" + c.ClientIP()
		now := float64(clock().UnixNano()) / 1e9

		result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, capacity, rate, now, 1).Result()
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("rate limiter unavailable, letting request through", "error", err)
			c.Next()
			return
		}

		st := parseBucket(result, capacity)
		c.Header("X-RateLimit-Limit", strconv.Itoa(capacity))
		if !st.allowed {
			c.Header("Retry-After", strconv.Itoa(st.retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ChatResult{
				Response: domain.MsgTooManyRequests,
				Status:   domain.StatusError,
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(st.remaining))
		c.Next()
	}
}
