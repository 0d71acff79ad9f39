package event

import (
	"context"
	"sync"
)

// DefaultHistorySize is the number of changes kept per document.
const DefaultHistorySize = 200

// Publisher sends changes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, c Change)
}

// History keeps the most recent changes of every document in memory. It
// is meant to be subscribed to the change bus.
type History struct {
	mu    sync.RWMutex
	size  int
	byDoc map[string][]Change
}

// NewHistory creates a History keeping up to size changes per document.
func NewHistory(size int) *History {
	if size < 1 {
		size = DefaultHistorySize
	}
	return &History{size: size, byDoc: make(map[string][]Change)}
}

// HandleEvent appends c. A DocumentDeleted change drops the document's history.
func (h *History) HandleEvent(_ context.Context, c Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.Type == DocumentDeleted {
		delete(h.byDoc, c.DocumentID)
		return nil
	}
	list := append(h.byDoc[c.DocumentID], c)
	if over := len(list) - h.size; over > 0 {
		list = append([]Change(nil), list[over:]...)
	}
	h.byDoc[c.DocumentID] = list
	return nil
}

// Recent returns up to limit changes of doc, newest first. limit <= 0
// returns everything kept.
func (h *History) Recent(doc string, limit int) []Change {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.byDoc[doc]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Change, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}
