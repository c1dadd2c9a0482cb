package breaker

import (
	"context"
	"time"

	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"

	"github.com/sony/gobreaker"
)

// Config allows custom settings for specific breakers
type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// Threshold is the failure ratio that trips the breaker
	Threshold float64
	// MinRequests is the sample size required before the ratio is considered
	MinRequests uint32
}

// New creates a new CircuitBreaker with sensible defaults
func New(cfg Config) *gobreaker.CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.Threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker '%s' changed state from %s to %s", name, from.String(), to.String())
			metrics.SetBreakerState(name, int(to))
		},
	}

	if settings.MaxRequests == 0 {
		settings.MaxRequests = 5 // Half-open max requests
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second // Clear counts interval
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second // Open state duration
	}

	return gobreaker.NewCircuitBreaker(settings)
}

// Execute runs fn through cb, refusing to start when ctx is already done.
// Callers translate expected outcomes such as a missing key into a nil
// error inside fn so they do not count against the breaker.
func Execute[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}
