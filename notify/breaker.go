package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit around a Sender.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures opens the circuit. Zero means 5.
	ConsecutiveFailures uint32
	// Interval resets the closed-state counts. Zero keeps counts until a state change.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing. Zero means 1 minute.
	Timeout time.Duration
}

// BreakerSender stops hammering a failing relay. While open it fails fast
// with ErrUnavailable so callers surface a delivery failure immediately.
type BreakerSender struct {
	next   Sender
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger zerolog.Logger
}

// NewBreakerSender wraps next.
func NewBreakerSender(next Sender, cfg BreakerConfig, logger zerolog.Logger) *BreakerSender {
	if cfg.Name == "" {
		cfg.Name = "notify"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	threshold := cfg.ConsecutiveFailures
	s := &BreakerSender{next: next, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A message without recipients says nothing about relay health.
			return err == nil || errors.Is(err, ErrNoRecipients)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("notifier circuit state changed")
		},
	})
	return s
}

// Send forwards msg unless the circuit is open.
func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

// State reports the breaker state name.
func (s *BreakerSender) State() string {
	return s.cb.State().String()
}
