package llm

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
)

// BreakerProvider wraps a Provider with a circuit breaker (spec §7
// "LLMProviderError: rate-limit => backoff-retry within the agent loop
// ... hard failure => surface as AgentError"; SPEC_FULL.md's "Circuit
// breaking" supplemented feature). A provider that is already failing
// repeatedly trips the breaker, turning further calls into immediate
// *AppError-wrapped failures instead of piling retries on a dead
// downstream.
type BreakerProvider struct {
	Provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps provider with a breaker named after it, tripping
// after 5 consecutive failures and resetting after the half-open probe
// succeeds once.
func NewBreakerProvider(name string, provider Provider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name: "llm:" + name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerProvider{
		Provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete executes the wrapped provider's call through the breaker.
func (b *BreakerProvider) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Provider.Complete(ctx, messages, tools)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Message{}, fmt.Errorf("llm: circuit open for %s: %w", b.breaker.Name(), err)
		}
		return Message{}, err
	}
	return result.(Message), nil
}

var _ Provider = (*BreakerProvider)(nil)
