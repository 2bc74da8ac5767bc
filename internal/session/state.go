package session

import (
	"errors"
	"sync"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// ErrBusy is returned when a generation or expansion job is already in
// flight for this session. One job at a time; a new request is rejected
// rather than queued.
var ErrBusy = errors.New("session: a job is already in flight")

// State is the session-scoped owner of the ticket collection. Controllers
// receive a *State rather than reaching into ambient globals, and mutate
// it only through whole-value replacement, so a concurrent reader
// observes either the pre- or post-mutation collection, never a partial
// one.
type State struct {
	mu       sync.Mutex
	tickets  []protocol.Ticket
	batch    *protocol.UploadBatch
	token    string
	busy     bool
	uploaded map[string]protocol.Platform
}

// NewState creates an empty session.
func NewState() *State {
	return &State{uploaded: make(map[string]protocol.Platform)}
}

// Tickets returns a snapshot copy of the collection.
func (s *State) Tickets() []protocol.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out
}

// Replace swaps in a new collection. The caller hands over ownership of
// the slice and must not retain it.
func (s *State) Replace(tickets []protocol.Ticket) {
	s.mu.Lock()
	s.tickets = tickets
	s.mu.Unlock()
}

// Get returns the ticket with the given id.
func (s *State) Get(id string) (protocol.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := FindIndex(s.tickets, id); i >= 0 {
		return s.tickets[i], true
	}
	return protocol.Ticket{}, false
}

// Edit replaces a ticket's editable fields, reporting whether the id was
// found.
func (s *State) Edit(id string, fields protocol.TicketFields) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if FindIndex(s.tickets, id) < 0 {
		return false
	}
	s.tickets = Update(s.tickets, id, fields)
	return true
}

// SetBatch records the upload batch and generation token this session
// works against.
func (s *State) SetBatch(batch *protocol.UploadBatch, token string) {
	s.mu.Lock()
	s.batch = batch
	s.token = token
	s.mu.Unlock()
}

// SetToken records the generation token, leaving the batch untouched.
func (s *State) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Batch returns the upload batch and generation token for this session.
func (s *State) Batch() (*protocol.UploadBatch, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch, s.token
}

// TryBeginJob claims the single in-flight job slot. It returns false
// while another job holds it.
func (s *State) TryBeginJob() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// EndJob releases the job slot.
func (s *State) EndJob() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Busy reports whether a job is in flight.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// MarkUploaded records that the ticket was created on platform. The
// marker is terminal within the session; nothing clears it.
func (s *State) MarkUploaded(id string, p protocol.Platform) {
	s.mu.Lock()
	s.uploaded[id] = p
	s.mu.Unlock()
}

// UploadedTo returns the platform the ticket was pushed to, if any.
func (s *State) UploadedTo(id string) (protocol.Platform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.uploaded[id]
	return p, ok
}
