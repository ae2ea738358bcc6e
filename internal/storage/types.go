package storage

import (
	"context"
	"time"

	"feedpush/internal/identity"
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): watermark file + delivery journal next to it
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	Key         string        // sqlite only: watermark row key (usually the feed URL)
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the persisted dedup state. The zero value is the empty state.
type Record struct {
	Watermark identity.ID
	UpdatedAt time.Time
}

// Delivered reports whether id is at or below the watermark.
func (r Record) Delivered(id identity.ID) bool { return id <= r.Watermark }

// DeliveryEntry journals one delivery attempt. Keep it compact and schema-stable.
type DeliveryEntry struct {
	At    time.Time   `json:"at"`
	RunID string      `json:"run_id,omitempty"`
	ID    identity.ID `json:"id"`
	Link  string      `json:"link"`
	Title string      `json:"title,omitempty"`
	Mode  string      `json:"mode"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
}

// Store is the persistence API used by the run coordinator and the CLI.
type Store interface {
	// Load returns the current record. Missing or corrupt state is the empty
	// record with a nil error; only unexpected I/O failures are returned.
	Load(ctx context.Context) (Record, error)
	// Commit raises the watermark to the largest of ids. It never lowers it.
	Commit(ctx context.Context, ids []identity.ID) error
	// Reset overwrites the watermark, including moving it backwards. id 0 clears it.
	Reset(ctx context.Context, id identity.ID) error

	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	// RecentDeliveries returns up to n journal entries, newest first.
	RecentDeliveries(ctx context.Context, n int) ([]DeliveryEntry, error)

	Close() error
}

func maxID(cur identity.ID, ids []identity.ID) identity.ID {
	for _, id := range ids {
		if id > cur {
			cur = id
		}
	}
	return cur
}
