package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/matthewbaird/canvas/internal/types"
)

// MemoryStore implements Store using an in-memory map. Documents are kept
// as encoded JSON so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, doc types.Document) (types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev time.Time
	if doc.ID != "" {
		if old, ok := s.docs[doc.ID]; ok {
			d, err := decodeDocument(old)
			if err != nil {
				return types.Document{}, err
			}
			prev = d.CreatedAt
		}
	}
	if err := stamp(&doc, prev, s.now()); err != nil {
		return types.Document{}, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return types.Document{}, fmt.Errorf("store: encode document %s: %w", doc.ID, err)
	}
	s.docs[doc.ID] = b
	return decodeDocument(b)
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Document, error) {
	s.mu.RLock()
	b, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return types.Document{}, ErrNotFound
	}
	return decodeDocument(b)
}

func (s *MemoryStore) List(_ context.Context) ([]types.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.DocumentSummary, 0, len(s.docs))
	for _, b := range s.docs {
		d, err := decodeDocument(b)
		if err != nil {
			return nil, err
		}
		out = append(out, d.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func decodeDocument(b []byte) (types.Document, error) {
	var d types.Document
	if err := json.Unmarshal(b, &d); err != nil {
		return types.Document{}, fmt.Errorf("store: decode document: %w", err)
	}
	return d, nil
}
