// Package store persists documents: a named list of serialized component
// trees. Three implementations share the Store interface: an in-memory map
// for tests and demos, a SQLite table, and a directory of JSON files.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/canvas/internal/types"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("store: document not found")
	// ErrInvalidID is returned for ids that cannot be stored safely.
	ErrInvalidID = errors.New("store: invalid document id")
)

// Store reads and writes documents.
type Store interface {
	// Save inserts or replaces doc. An empty ID is assigned a new one.
	// CreatedAt is preserved across replacements; UpdatedAt is set to now.
	Save(ctx context.Context, doc types.Document) (types.Document, error)

	// Get returns the document with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (types.Document, error)

	// List returns summaries ordered by most recently updated first.
	List(ctx context.Context) ([]types.DocumentSummary, error)

	// Delete removes the document or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidID reports whether id may be used as a document id.
func ValidID(id string) bool {
	return idPattern.MatchString(id) && id != "." && id != ".."
}

// stamp fills the id and timestamps of doc before it is written. prev is the
// CreatedAt of an existing document with the same id, or zero.
func stamp(doc *types.Document, prev time.Time, now time.Time) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if !ValidID(doc.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, doc.ID)
	}
	now = now.UTC().Truncate(time.Millisecond)
	switch {
	case !prev.IsZero():
		doc.CreatedAt = prev
	case doc.CreatedAt.IsZero():
		doc.CreatedAt = now
	default:
		doc.CreatedAt = doc.CreatedAt.UTC().Truncate(time.Millisecond)
	}
	doc.UpdatedAt = now
	if doc.Components == nil {
		doc.Components = []types.NodeRecord{}
	}
	return nil
}

func sortSummaries(s []types.DocumentSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
