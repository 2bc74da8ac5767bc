// Package session owns the ticket collection produced by one generation
// run. Collection operations are pure: they never mutate their input, so
// a snapshot handed to a reader stays valid across any later update.
package session

import (
	"fmt"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// FindIndex returns the position of the ticket with the given id, or -1
// when it is not in the collection. Callers must guard the -1 case.
func FindIndex(tickets []protocol.Ticket, id string) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

// Update returns a new collection with the ticket's editable fields
// replaced. ID, SubTicketOf, and Expanded are preserved, as are all
// other records. An unknown id returns the input unchanged.
func Update(tickets []protocol.Ticket, id string, fields protocol.TicketFields) []protocol.Ticket {
	i := FindIndex(tickets, id)
	if i < 0 {
		return tickets
	}
	out := make([]protocol.Ticket, len(tickets))
	copy(out, tickets)
	out[i].Subject = fields.Name
	out[i].Body = fields.Description
	out[i].EstimationPoints = fields.Estimate
	return out
}

// InsertChildrenAfter splices children, in their given order, directly
// after their parent and before whatever followed it. The prefix up to
// and including the parent and the original suffix are unchanged. A
// missing parent is a contract violation and reported as an error.
func InsertChildrenAfter(tickets []protocol.Ticket, parentID string, children []protocol.Ticket) ([]protocol.Ticket, error) {
	i := FindIndex(tickets, parentID)
	if i < 0 {
		return nil, fmt.Errorf("session: parent ticket %q not in collection", parentID)
	}
	out := make([]protocol.Ticket, 0, len(tickets)+len(children))
	out = append(out, tickets[:i+1]...)
	out = append(out, children...)
	out = append(out, tickets[i+1:]...)
	return out, nil
}

// MarkExpanded returns a new collection with the ticket's Expanded flag
// set. The transition is one-way: nothing ever clears the flag.
func MarkExpanded(tickets []protocol.Ticket, id string) []protocol.Ticket {
	i := FindIndex(tickets, id)
	if i < 0 {
		return tickets
	}
	out := make([]protocol.Ticket, len(tickets))
	copy(out, tickets)
	out[i].Expanded = true
	return out
}
