package catalog

import (
	"context"

	"github.com/google/uuid"
)

// EntryDecision inspects the freshly loaded entry inside the update
// transaction. Returning a nil patch with a nil error writes nothing;
// returning an error rolls the transaction back and is passed through.
type EntryDecision func(current *Entry) (*StatusPatch, error)

// EntryRepository defines the interface for catalog entry persistence
type EntryRepository interface {
	// FindByKey returns the entry with the lowest ID whose column matches key.
	// Returns shared.ErrNotFound when nothing matches.
	FindByKey(ctx context.Context, key LookupKey) (*Entry, error)

	// UpdateStatus reloads the entry, asks decide for a patch and writes it with
	// a version check, all in one transaction. It returns the entry as stored
	// after the call and whether a write happened. A lost version race is
	// reported as shared.ErrConcurrencyConflict.
	UpdateStatus(ctx context.Context, id uuid.UUID, decide EntryDecision) (*Entry, bool, error)
}
