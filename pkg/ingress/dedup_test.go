package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRateLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRateLimiter(client)
}

func TestRateLimiterObserveCountsRepeats(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, limited, err := rl.Observe(ctx, "default/webhook", "fp-1", 30*time.Second, 0)
		if err != nil {
			t.Fatalf("Observe: %v", err)
		}
		if limited {
			t.Fatalf("expected no rate limiting when burstCeiling is disabled")
		}
		if count != i {
			t.Fatalf("expected repeat count %d, got %d", i, count)
		}
	}
}

func TestRateLimiterEnforcesBurstCeiling(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	var lastLimited bool
	for i := 0; i < 5; i++ {
		_, limited, err := rl.Observe(ctx, "default/webhook", "fp-burst", 30*time.Second, 3)
		if err != nil {
			t.Fatalf("Observe: %v", err)
		}
		lastLimited = limited
	}
	if !lastLimited {
		t.Fatalf("expected burst ceiling of 3 to be exceeded after 5 arrivals")
	}
}

func TestRateLimiterDifferentFingerprintsCountIndependently(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	count1, _, _ := rl.Observe(ctx, "default/webhook", "fp-a", 30*time.Second, 0)
	count2, _, _ := rl.Observe(ctx, "default/webhook", "fp-b", 30*time.Second, 0)
	if count1 != 1 || count2 != 1 {
		t.Fatalf("expected independent counters per fingerprint, got %d and %d", count1, count2)
	}
}
