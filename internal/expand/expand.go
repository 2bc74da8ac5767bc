// Package expand turns one large ticket into sub-tickets and merges them
// into the session collection directly after their parent.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

var (
	ErrNotFound        = errors.New("expand: ticket not in collection")
	ErrAlreadyExpanded = errors.New("expand: ticket already expanded")
	ErrNotExpandable   = errors.New("expand: ticket too small to expand")
)

// Controller expands a single ticket. Preconditions are checked before
// any network call: a ticket expands at most once, and only when its
// estimate is above one point.
type Controller struct {
	Client *api.Client
	State  *session.State
	Logger *slog.Logger
}

// Run expands the ticket with the given id. fileName and token correlate
// the expansion with the generation batch the ticket came from. On
// success the parent is marked expanded and the sub-tickets spliced in
// directly after it, applied as a single replacement so no reader ever
// sees the parent expanded with its children missing. On any failure the
// collection is untouched and Expanded stays false, so a retry remains
// possible.
func (c *Controller) Run(ctx context.Context, ticketID, fileName, token string) ([]protocol.Ticket, error) {
	parent, ok := c.State.Get(ticketID)
	if !ok {
		return nil, ErrNotFound
	}
	if parent.Expanded {
		return nil, ErrAlreadyExpanded
	}
	if parent.EstimationPoints <= 1 {
		return nil, ErrNotExpandable
	}

	if !c.State.TryBeginJob() {
		return nil, session.ErrBusy
	}
	defer c.State.EndJob()

	subID, err := c.Client.SubmitExpansion(ctx, fileName, token, parent.Fields())
	if err != nil {
		return nil, fmt.Errorf("expand: submit: %w", err)
	}

	children, err := c.Client.FetchSubTickets(ctx, subID)
	if err != nil {
		return nil, fmt.Errorf("expand: fetch sub-tickets: %w", err)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("expand: sub-ticket set %s is empty", subID)
	}

	tickets := c.State.Tickets()
	seen := make(map[string]bool, len(tickets)+len(children))
	for _, t := range tickets {
		seen[t.ID] = true
	}
	for i := range children {
		children[i].SubTicketOf = parent.ID
		children[i].Expanded = false
		// Keep ids unique across the whole collection; the service is
		// not guaranteed to assign them on sub-tickets.
		if children[i].ID == "" || seen[children[i].ID] {
			children[i].ID = uuid.NewString()
		}
		seen[children[i].ID] = true
	}

	tickets = session.MarkExpanded(tickets, parent.ID)
	tickets, err = session.InsertChildrenAfter(tickets, parent.ID, children)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	c.State.Replace(tickets)

	c.logger().Info("ticket expanded", "ticket", parent.ID, "sub_tickets", len(children))
	return tickets, nil
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
