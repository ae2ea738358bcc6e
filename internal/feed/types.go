package feed

import (
	"fmt"

	"feedpush/internal/identity"
)

const UnknownAuthor = "unknown"

// Entry is one admitted feed item. Read-only once built.
type Entry struct {
	Title  string
	Link   string
	Author string
	GUID   string
	ID     identity.ID
}

// Result is the normalized fetch output plus counters for the run log.
type Result struct {
	Entries []Entry

	Fetched          int
	DuplicateLinks   int
	MissingLink      int
	BadIdentity      int
	DuplicateIDs     int
	AlreadyDelivered int
}

// FetchError means the feed could not be fetched or parsed; the run ends early.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("feed %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Seen reports identities that were already delivered. storage.Record implements it.
type Seen interface {
	Delivered(id identity.ID) bool
}
