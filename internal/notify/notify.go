// Package notify delivers short outbound status messages when the
// daemon finishes processing a transcript.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Notifier sends one message to a destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

// Multi fans a message out to several notifiers. Failures are logged
// and do not stop delivery to the rest.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti creates a fan-out notifier.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

// Notify sends text to every configured notifier.
func (m *Multi) Notify(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			m.logger.Warn("notification failed", "notifier", n.Name(), "error", err)
		}
	}
}

// Len reports the number of configured notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }
