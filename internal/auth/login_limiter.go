/**
 * @description
 * Distributed login throttle backed by Redis. Attempts per login id are
 * counted in a fixed one-minute window; a Lua script keeps the INCR and the
 * window expiry atomic so every service instance sharing the Redis sees the
 * same count. The limit and window are fixed at construction because the
 * limiter guards exactly one thing: login attempts.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and server-side scripting.
 */

package auth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var loginAttemptScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLoginLimiter implements LoginLimiter on a shared Redis.
type RedisLoginLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLoginLimiter creates a limiter allowing perMinute attempts per
// login id. A non-positive limit disables throttling.
func NewRedisLoginLimiter(client redis.UniversalClient, prefix string, perMinute int) *RedisLoginLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "frappster:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisLoginLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  perMinute,
		window: time.Minute,
	}
}

// Allow consumes one attempt for the login id. It reports how long the caller
// should wait when the window is exhausted.
func (r *RedisLoginLimiter) Allow(ctx context.Context, loginID string) (retryAfterSeconds int, allowed bool, err error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return 0, true, nil
	}
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return 0, true, nil
	}

	windowMs := r.window.Milliseconds()
	key := fmt.Sprintf("%s:login:%s", r.prefix, loginID)
	rawResult, err := loginAttemptScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, true, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, true, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, true, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	if count <= int64(r.limit) {
		return 0, true, nil
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter, false, nil
}
