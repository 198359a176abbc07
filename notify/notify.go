package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNoRecipients is returned when a message has no usable address.
	ErrNoRecipients = errors.New("notify: no recipients")
	// ErrUnavailable is returned while the breaker rejects deliveries.
	ErrUnavailable = errors.New("notify: delivery temporarily unavailable")
)

// Message is a single HTML mail to one or more recipients. The sender
// identity belongs to the Sender configuration.
type Message struct {
	Subject string
	To      []string
	HTML    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Recipients returns the trimmed, de-duplicated recipient list in input order.
func (m Message) Recipients() []string {
	seen := make(map[string]struct{}, len(m.To))
	out := make([]string, 0, len(m.To))
	for _, addr := range m.To {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// LogSender writes messages to a logger instead of delivering them. It is
// the default in development and never fails.
type LogSender struct {
	Logger zerolog.Logger
}

// Send logs msg at info level. The body is omitted because it may carry a
// verification code.
func (s LogSender) Send(_ context.Context, msg Message) error {
	to := msg.Recipients()
	if len(to) == 0 {
		return ErrNoRecipients
	}
	s.Logger.Info().
		Strs("to", to).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.HTML)).
		Msg("notification suppressed (log sender)")
	return nil
}
