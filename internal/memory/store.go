package memory

import (
	"context"
	"time"
)

// Store persists user records. Implementations must make Put a full-record
// replace so concurrent writers never interleave fields.
type Store interface {
	// Get returns the record for id, or (nil, nil) if none exists.
	Get(ctx context.Context, id string) (*Record, error)
	// Put upserts the whole record keyed by rec.ID.
	Put(ctx context.Context, rec *Record) error
	// Delete removes the record; deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases the backend.
	Close() error
}

// Record is the durable state kept for one user.
type Record struct {
	ID       string
	Memory   string     // rolling "User:/Bot:" transcript
	Mood     string     // empty until first assigned
	LastSeen *time.Time // advisory, stamped on every completed turn
}

// clone returns a deep copy so callers never share a stored pointer.
func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.LastSeen != nil {
		ts := *r.LastSeen
		out.LastSeen = &ts
	}
	return &out
}
