package protocol

// Ticket is a single candidate unit of work derived from a meeting
// transcript. ID is assigned by the generation service and stays stable
// for the ticket's lifetime. SubTicketOf and Expanded track the one-level
// expansion tree on the client side.
type Ticket struct {
	ID               string `json:"id,omitempty"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	EstimationPoints int    `json:"estimationpoints"`
	SubTicketOf      string `json:"sub_ticket_of,omitempty"`
	Expanded         bool   `json:"expanded,omitempty"`
}

// Expandable reports whether the expansion action may be offered for t.
// A ticket expands at most once, and only when it is large enough to be
// worth splitting.
func (t Ticket) Expandable() bool {
	return t.EstimationPoints > 1 && !t.Expanded
}

// Fields returns the editable fields of t in the shape the expand and
// platform-create endpoints accept.
func (t Ticket) Fields() TicketFields {
	return TicketFields{
		Name:        t.Subject,
		Description: t.Body,
		Estimate:    t.EstimationPoints,
	}
}

// TicketList is the response body of the poll and sub-ticket endpoints.
// An empty list means the job has not produced results yet.
type TicketList struct {
	Tickets []Ticket `json:"tickets"`
}

// GenerationReceipt correlates a submitted generation job with later
// polls. The datetime value is an opaque token.
type GenerationReceipt struct {
	Datetime string `json:"ticket_generation_datetime"`
}

// ExpansionReceipt identifies the sub-ticket set produced by expanding a
// ticket.
type ExpansionReceipt struct {
	SubTicketID string `json:"sub_ticket_id"`
}

// TicketFields is the request body for the expand and platform-create
// endpoints.
type TicketFields struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Estimate    int    `json:"estimate"`
}
