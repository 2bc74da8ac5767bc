// Package push creates a session ticket on an external tracking platform
// (Jira, Shortcut, or Asana) and records the terminal uploaded marker.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

var (
	ErrNotFound        = errors.New("push: ticket not in collection")
	ErrNoPlatform      = errors.New("push: no platform selected")
	ErrAlreadyUploaded = errors.New("push: ticket already uploaded")
)

// Archiver persists the uploaded marker beyond the session. Optional.
type Archiver interface {
	MarkUploaded(ticketID string, platform protocol.Platform) error
}

// Controller pushes single tickets to a caller-chosen platform. The
// platform is structured input; it is never looked up out-of-band and
// never defaulted.
type Controller struct {
	Client  *api.Client
	State   *session.State
	Archive Archiver
	Logger  *slog.Logger
}

// Run pushes the ticket's current fields, as edited in the session, to
// the chosen platform. On success the ticket's uploaded marker is set;
// on failure nothing changes and the push stays retryable. Repeating a
// push after success is rejected without a network call.
func (c *Controller) Run(ctx context.Context, ticketID string, platform protocol.Platform) error {
	if platform == "" {
		return ErrNoPlatform
	}
	if _, err := protocol.ParsePlatform(string(platform)); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	t, ok := c.State.Get(ticketID)
	if !ok {
		return ErrNotFound
	}
	if _, done := c.State.UploadedTo(ticketID); done {
		return ErrAlreadyUploaded
	}

	if err := c.Client.CreateTicket(ctx, platform, t.Fields()); err != nil {
		return fmt.Errorf("push: create on %s: %w", platform, err)
	}

	c.State.MarkUploaded(ticketID, platform)
	if c.Archive != nil {
		if err := c.Archive.MarkUploaded(ticketID, platform); err != nil {
			c.logger().Warn("uploaded marker not persisted", "ticket", ticketID, "error", err)
		}
	}
	c.logger().Info("ticket pushed", "ticket", ticketID, "platform", platform)
	return nil
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
