// Package submit wraps the application store's insert behind a circuit
// breaker so a failing submission backend sheds load instead of having
// every candidate in the run time out against it.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// inner is the consumer interface for the wrapped submitter (ISP).
type inner interface {
	Submit(ctx context.Context, rec domain.ApplicationRecord) (string, error)
}

// Breaker is a circuit-breaking Submitter.
type Breaker struct {
	inner inner
	cb    *gobreaker.CircuitBreaker[string]
}

// NewBreaker wraps a submitter with a circuit breaker. The breaker
// trips after repeated backend failures and recovers via half-open
// probes. A duplicate application is a business outcome, not a backend
// failure, and never counts against the breaker.
func NewBreaker(s inner, logger *zap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "application-submit",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrDuplicateApplication)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		inner: s,
		cb:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Submit runs the wrapped insert under the breaker. When the breaker
// is open the error wraps domain.ErrUpstreamUnavailable so the run
// controller records a skip rather than retrying.
func (b *Breaker) Submit(ctx context.Context, rec domain.ApplicationRecord) (string, error) {
	id, err := b.cb.Execute(func() (string, error) {
		return b.inner.Submit(ctx, rec)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: submission backend circuit open: %w", domain.ErrUpstreamUnavailable, err)
	}
	return id, err
}

// Healthy reports whether the breaker is closed.
func (b *Breaker) Healthy() bool {
	return b.cb.State() == gobreaker.StateClosed
}
