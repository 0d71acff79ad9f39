package live

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/types"
)

// Session holds the live component tree of one preview connection.
type Session struct {
	ID         string
	DocumentID string
	CreatedAt  time.Time

	mu         sync.Mutex
	doc        types.Document
	roots      []*component.Node
	lastActive time.Time
	closed     bool
}

func newSession(doc types.Document, roots []*component.Node) *Session {
	now := time.Now()
	doc.Components = nil
	return &Session{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		CreatedAt:  now,
		doc:        doc,
		roots:      roots,
		lastActive: now,
	}
}

// Name returns the document name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Name
}

// Roots returns the top-level nodes.
func (s *Session) Roots() []*component.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*component.Node(nil), s.roots...)
}

// Find returns the node with the given id anywhere in the tree, or nil.
func (s *Session) Find(id string) *component.Node {
	for _, r := range s.Roots() {
		if n := r.FindByID(id); n != nil {
			return n
		}
	}
	return nil
}

// Walk visits every node depth-first.
func (s *Session) Walk(fn func(n *component.Node, depth int)) {
	for _, r := range s.Roots() {
		r.Walk(fn)
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IsIdle returns true if the session has been idle longer than timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive) > timeout
}

// Snapshot serializes the current tree back into a document.
func (s *Session) Snapshot() types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	doc.Components = make([]types.NodeRecord, 0, len(s.roots))
	for _, r := range s.roots {
		doc.Components = append(doc.Components, r.ToPersisted())
	}
	return doc
}

// Saved records the metadata of a stored snapshot.
func (s *Session) Saved(doc types.Document) {
	s.mu.Lock()
	s.doc.CreatedAt = doc.CreatedAt
	s.doc.UpdatedAt = doc.UpdatedAt
	s.mu.Unlock()
}

// Close destroys the tree, closing every binding. Later calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	roots := s.roots
	s.roots = nil
	s.mu.Unlock()

	var errs []error
	for _, r := range roots {
		errs = append(errs, r.Destroy())
	}
	return errors.Join(errs...)
}

// Manager tracks open sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new session over the decoded roots of doc.
func (m *Manager) Create(doc types.Document, roots []*component.Node) *Session {
	s := newSession(doc, roots)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ForDocument returns the ids of sessions previewing doc, sorted.
func (m *Manager) ForDocument(doc string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.DocumentID == doc {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
