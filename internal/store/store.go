package store

import (
	"time"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// Record is a ticket as archived, together with its persisted upload
// marker.
type Record struct {
	protocol.Ticket
	UploadedTo protocol.Platform `json:"uploaded_to,omitempty"`
	UploadedAt *time.Time        `json:"uploaded_at,omitempty"`
}

// Batch is one archived generation run for a transcript: the collection
// in its session order plus the metadata needed to resume ticket
// operations against the service.
type Batch struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Bucket    string    `json:"bucket,omitempty"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	Tickets   []Record  `json:"tickets"`
}

// Store is the persistence interface for archived batches.
type Store interface {
	// SaveBatch creates or updates a batch and replaces its tickets,
	// preserving their order. Upload markers of re-saved tickets survive.
	SaveBatch(b *Batch) error
	// GetBatch retrieves a batch by id, tickets in collection order.
	GetBatch(id string) (*Batch, error)
	// ListBatches returns batches matching the filter, newest first.
	ListBatches(f Filter) ([]*Batch, error)
	// MarkUploaded persists a ticket's uploaded-to marker.
	MarkUploaded(ticketID string, platform protocol.Platform) error
	// HasFile reports whether any batch exists for the file name.
	HasFile(fileName string) (bool, error)
}

// Filter constrains batch list queries.
type Filter struct {
	FileName string // exact match
	Query    string // text search on file name
	Limit    int    // 0 = no limit
}
