package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreaker guards calls to the model server.
type CircuitBreaker interface {
	Execute(fn func() error) error
	State() gobreaker.State
}

type modelBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker trips after maxFailures consecutive failures and lets a
// single probe through once timeout has elapsed. Cancelled calls do not count
// against the server.
func NewCircuitBreaker(name string, timeout time.Duration, maxFailures uint32, logger *zap.Logger) CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fields := []zap.Field{
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				logger.Warn("Model server circuit opened", fields...)
				return
			}
			logger.Info("Model server circuit state changed", fields...)
		},
	}
	return &modelBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *modelBreaker) Execute(fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", b.breaker.Name(), err)
	}
	return nil
}

func (b *modelBreaker) State() gobreaker.State {
	return b.breaker.State()
}
