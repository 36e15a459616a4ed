package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects an operation.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Settings tunes a circuit breaker.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// Breaker wraps gobreaker with fallback handling and Prometheus metrics.
type Breaker struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	fallback FallbackFunc
}

// NewBreaker creates a circuit breaker. A nil fallback uses NoopFallback.
func NewBreaker(settings Settings, fallback FallbackFunc) *Breaker {
	name := nextBreakerName(settings.Name)
	if fallback == nil {
		fallback = NoopFallback
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: settings.Interval,
		Timeout:  settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		MaxRequests: settings.SuccessThreshold,
		OnStateChange: func(_ string, from, to gobreaker.State) {
			recordBreakerStateChange(name, from, to)
		},
	})
	recordBreakerState(name, cb.State())

	return &Breaker{name: name, cb: cb, fallback: fallback}
}

// Execute runs the operation through the breaker, invoking the fallback when
// the breaker is open or saturated.
func (b *Breaker) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	recordBreakerRequest(b.name)

	result, err := b.cb.Execute(func() (interface{}, error) {
		return operation(ctx)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordBreakerFallback(b.name)
		return b.fallback(ctx, ErrCircuitOpen)
	}

	recordBreakerFailure(b.name)
	return nil, err
}
