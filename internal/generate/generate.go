// Package generate implements the submit-and-poll workflow that turns an
// uploaded transcript into a batch of candidate tickets.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 24
	DefaultTicketCount = 20
)

// TimeoutError means the poll attempt budget ran out before the service
// produced tickets. It is distinct from a request failure: every poll may
// have returned 200 with an empty list.
type TimeoutError struct {
	FileName string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generate: %s: no tickets after %d poll attempts", e.FileName, e.Attempts)
}

// Controller runs one generation job at a time: submit, correlate by the
// returned token, then poll until tickets arrive or the attempt budget
// runs out. The session's job slot doubles as the externally observable
// busy signal; it is held for the whole run and released exactly once on
// every exit path.
type Controller struct {
	Client      *api.Client
	State       *session.State
	Interval    time.Duration // delay between polls; DefaultInterval when zero
	MaxAttempts int           // poll budget; DefaultMaxAttempts when zero
	Logger      *slog.Logger
}

// Run submits a generation job for fileName and polls until the service
// returns a non-empty ticket list, which replaces the session collection.
// Starting a run while another job is in flight fails with
// session.ErrBusy rather than overlapping poll loops.
func (c *Controller) Run(ctx context.Context, fileName string, numberOfTickets int) ([]protocol.Ticket, error) {
	if numberOfTickets <= 0 {
		numberOfTickets = DefaultTicketCount
	}
	if !c.State.TryBeginJob() {
		return nil, session.ErrBusy
	}
	defer c.State.EndJob()

	logger := c.logger()

	token, err := c.Client.SubmitGeneration(ctx, fileName, numberOfTickets)
	if err != nil {
		return nil, fmt.Errorf("generate: submit: %w", err)
	}
	c.State.SetToken(token)
	logger.Info("generation job submitted", "file", fileName, "token", token)

	max := c.maxAttempts()
	for attempt := 1; attempt <= max; attempt++ {
		tickets, err := c.Client.PollTickets(ctx, fileName, token)
		switch {
		case err != nil:
			// A failed poll is not fatal; the job may still complete.
			logger.Warn("poll failed", "file", fileName, "attempt", attempt, "error", err)
		case len(tickets) > 0:
			logger.Info("tickets ready", "file", fileName, "count", len(tickets), "attempts", attempt)
			c.State.Replace(tickets)
			return tickets, nil
		}
		if attempt == max {
			break
		}
		select {
		case <-time.After(c.interval()):
		case <-ctx.Done():
			return nil, fmt.Errorf("generate: %w", ctx.Err())
		}
	}
	return nil, &TimeoutError{FileName: fileName, Attempts: max}
}

func (c *Controller) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return DefaultInterval
}

func (c *Controller) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
