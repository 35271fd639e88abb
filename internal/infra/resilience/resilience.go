// Package resilience provides the fault-tolerance wrappers used at the
// remote boundary: retry with backoff, circuit breaker, and an in-flight cap.
// Only idempotent reads go through the retry path; the state layer itself
// never retries.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds resilience parameters for the remote boundary.
type Config struct {
	Retries     int           // additional attempts after the first
	BaseDelay   time.Duration // delay before the first retry
	MaxInFlight int           // cap on concurrent remote calls
}

// Retry executes fn up to cfg.Retries+1 times with doubling backoff and
// jitter. It respects context cancellation between attempts.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt >= cfg.Retries {
			return lastErr
		}

		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int63n(int64(delay)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// NewCircuitBreaker creates the breaker guarding remote list operations.
// Trips after 5+ requests with a failure ratio of 60% or more.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
	})
}

// Gate caps concurrent access to the remote boundary.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with the given capacity.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Enter blocks until a slot is available or the context is cancelled.
func (g *Gate) Enter(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave frees a slot.
func (g *Gate) Leave() {
	<-g.slots
}
