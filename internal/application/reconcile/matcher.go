package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/shared"
)

// CatalogMatcher resolves an external id to a catalog entry, tolerating the
// zero padding and file-name encodings used between the two systems.
type CatalogMatcher struct {
	entries   catalog.EntryRepository
	extension string
	padWidth  int
}

// NewCatalogMatcher creates a CatalogMatcher
func NewCatalogMatcher(entries catalog.EntryRepository, extension string, padWidth int) *CatalogMatcher {
	return &CatalogMatcher{entries: entries, extension: extension, padWidth: padWidth}
}

// Match tries each lookup key in priority order and returns the first hit
// along with the key that matched. No match is (nil, LookupKey{}, nil).
func (m *CatalogMatcher) Match(ctx context.Context, externalID string) (*catalog.Entry, catalog.LookupKey, error) {
	for _, key := range catalog.LookupKeys(externalID, m.extension, m.padWidth) {
		entry, err := m.entries.FindByKey(ctx, key)
		if err == nil {
			return entry, key, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, key, fmt.Errorf("lookup %s: %w", key, err)
		}
	}
	return nil, catalog.LookupKey{}, nil
}
