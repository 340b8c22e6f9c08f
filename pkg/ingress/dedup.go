package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements the Ingress Dispatcher's dedup window and
// per-source burst ceiling (spec §4.3 "Dedup window: configurable ...
// Within the window, repeated fingerprints increment a counter; beyond a
// per-source burst ceiling, extras are dropped with a rate_limited
// counter"). Backed by redis/go-redis/v9 per SPEC_FULL.md's DOMAIN STACK
// entry; tests substitute a miniredis instance for hermeticity.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter wraps an existing redis client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Observe records one matching alert arrival for (sourceKey, fingerprint)
// and reports:
//   - repeatCount: how many times this fingerprint has been seen within
//     window, including this arrival (1 on first sight).
//   - rateLimited: whether the source's burst ceiling within window has
//     been exceeded by this arrival.
//
// window<=0 falls back to a 30s window; burstCeiling<=0 disables the burst
// check.
func (r *RateLimiter) Observe(ctx context.Context, sourceKey, fingerprint string, window time.Duration, burstCeiling int) (repeatCount int, rateLimited bool, err error) {
	if window <= 0 {
		window = 30 * time.Second
	}

	dedupKey := fmt.Sprintf("ingress:dedup:%s:%s", sourceKey, fingerprint)
	repeat, err := r.incrWithExpire(ctx, dedupKey, window)
	if err != nil {
		return 0, false, err
	}

	if burstCeiling <= 0 {
		return int(repeat), false, nil
	}

	burstKey := fmt.Sprintf("ingress:burst:%s", sourceKey)
	burst, err := r.incrWithExpire(ctx, burstKey, window)
	if err != nil {
		return int(repeat), false, err
	}

	return int(repeat), burst > int64(burstCeiling), nil
}

func (r *RateLimiter) incrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ingress: incrementing %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("ingress: setting expiry on %s: %w", key, err)
		}
	}
	return count, nil
}
