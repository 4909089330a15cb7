// Copyright 2025 Peanut Labs
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// RateLimitPolicy is {max_requests, window_ms, exponential_backoff?,
// max_backoff_ms} from spec.md §4.B.
type RateLimitPolicy struct {
	MaxRequests        int
	WindowMS           int64
	ExponentialBackoff bool
	MaxBackoffMS       int64
}

// Standard policies named in spec.md §4.B.
var (
	PolicyLogin         = RateLimitPolicy{MaxRequests: 10, WindowMS: 60_000, ExponentialBackoff: true, MaxBackoffMS: 5 * 60_000}
	PolicyTOTP          = RateLimitPolicy{MaxRequests: 5, WindowMS: 60_000, ExponentialBackoff: true, MaxBackoffMS: 10 * 60_000}
	PolicyDispatch      = RateLimitPolicy{MaxRequests: 60, WindowMS: 60_000, ExponentialBackoff: true, MaxBackoffMS: 5 * 60_000}
	PolicyVaultComplete = RateLimitPolicy{MaxRequests: 30, WindowMS: 60_000, ExponentialBackoff: true, MaxBackoffMS: 10 * 60_000}
)

// RateLimitCheck is the success result of RateLimiter.Check.
type RateLimitCheck struct {
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// RateLimiter implements the tumbling-window counter with exponential
// backoff from spec.md §4.B. The persisted counter is always the source of
// truth; an optional Redis client sits in front of it purely as an
// accelerator, mirroring the teacher's checkRateLimitRedis fallback
// pattern (agent/redis_rate_limit.go) — on a Redis error we fail back to
// the persisted path rather than fail the request.
type RateLimiter struct {
	store Store
	redis *redis.Client
	log   *logger.Logger
}

func NewRateLimiter(store Store, redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{store: store, redis: redisClient, log: logger.New("ratelimit")}
}

// Check increments the counter for key's current tumbling window and
// either returns the remaining budget or raises RateLimited with the
// computed backoff.
func (r *RateLimiter) Check(ctx context.Context, key string, policy RateLimitPolicy) (RateLimitCheck, error) {
	windowStart := tumblingWindowStart(time.Now(), policy.WindowMS)

	count, err := r.incrementCount(ctx, key, windowStart, policy.WindowMS)
	if err != nil {
		return RateLimitCheck{}, err
	}

	if count > int64(policy.MaxRequests) {
		if policy.ExponentialBackoff {
			retryAfter := backoffSeconds(count, policy)
			return RateLimitCheck{}, RateLimitedError(retryAfter)
		}
		return RateLimitCheck{}, RateLimitedError(int(policy.WindowMS / 1000))
	}

	go r.pruneAsync(key, policy.WindowMS)

	return RateLimitCheck{
		Remaining: int(math.Max(0, float64(policy.MaxRequests)-float64(count))),
		ResetAt:   windowStart.Add(time.Duration(policy.WindowMS) * time.Millisecond),
		Limit:     policy.MaxRequests,
	}, nil
}

// incrementCount tries the Redis accelerator first (if configured), falling
// back to the persisted counter on any Redis failure. The persisted path
// fails open only if the store itself is unreachable, per spec.md §7's
// documented availability tradeoff.
func (r *RateLimiter) incrementCount(ctx context.Context, key string, windowStart time.Time, windowMS int64) (int64, error) {
	if r.redis != nil {
		count, err := r.incrementRedis(ctx, key, windowStart, windowMS)
		if err == nil {
			return count, nil
		}
		r.log.Warn("", "redis rate limit check failed, falling back to store", map[string]interface{}{"error": err.Error()})
	}

	count, err := r.store.IncrementRateLimit(ctx, key, windowStart)
	if err != nil {
		r.log.ErrorWithCode("", "rate limit store unreachable, failing open", 200, err, map[string]interface{}{"key": key})
		return 0, nil
	}
	return count, nil
}

func (r *RateLimiter) incrementRedis(ctx context.Context, key string, windowStart time.Time, windowMS int64) (int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart.UnixMilli())
	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		ttl := time.Duration(windowMS)*time.Millisecond + time.Minute
		r.redis.Expire(ctx, redisKey, ttl)
	}
	return count, nil
}

func (r *RateLimiter) pruneAsync(key string, windowMS int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-10 * time.Duration(windowMS) * time.Millisecond)
	if err := r.store.PruneRateLimits(ctx, cutoff); err != nil {
		r.log.Warn("", "rate limit prune failed", map[string]interface{}{"error": err.Error()})
	}
}

func tumblingWindowStart(now time.Time, windowMS int64) time.Time {
	ms := now.UnixMilli()
	start := (ms / windowMS) * windowMS
	return time.UnixMilli(start).UTC()
}

// backoffSeconds applies the formula from spec.md §4.B: retry_after =
// min(max_backoff_ms, window_ms * 2^floor((count-max)/10)).
func backoffSeconds(count int64, policy RateLimitPolicy) int {
	over := count - int64(policy.MaxRequests)
	exponent := over / 10
	backoffMS := float64(policy.WindowMS) * math.Pow(2, float64(exponent))
	if backoffMS > float64(policy.MaxBackoffMS) {
		backoffMS = float64(policy.MaxBackoffMS)
	}
	return int(math.Ceil(backoffMS / 1000))
}
