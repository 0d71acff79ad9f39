// Package event defines the change events emitted while documents are
// edited and previewed, and a bounded per-document history of them.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type names what changed.
type Type string

const (
	PropertyChanged Type = "property"
	StyleChanged    Type = "style"
	DataDelivered   Type = "data"
	ChildrenChanged Type = "children"
	DocumentSaved   Type = "document.saved"
	DocumentDeleted Type = "document.deleted"
)

// Change is a single edit or delivery on a document. NodeID and Path are
// empty for document-level events.
type Change struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	DocumentID string    `json:"documentId"`
	NodeID     string    `json:"nodeId,omitempty"`
	Path       []string  `json:"path,omitempty"`
	Value      any       `json:"value,omitempty"`
	Session    string    `json:"session,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newChange(t Type, doc, node string) Change {
	return Change{
		ID:         uuid.NewString(),
		Type:       t,
		DocumentID: doc,
		NodeID:     node,
		OccurredAt: time.Now().UTC(),
	}
}

// NewPropertyChanged records a property form write.
func NewPropertyChanged(doc, node string, path []string, value any) Change {
	c := newChange(PropertyChanged, doc, node)
	c.Path = append([]string(nil), path...)
	c.Value = value
	return c
}

// NewStyleChanged records a style form write.
func NewStyleChanged(doc, node string, path []string, value any) Change {
	c := newChange(StyleChanged, doc, node)
	c.Path = append([]string(nil), path...)
	c.Value = value
	return c
}

// NewDataDelivered records a binding delivery; value is the result status.
func NewDataDelivered(doc, node string, status string) Change {
	c := newChange(DataDelivered, doc, node)
	c.Value = status
	return c
}

// NewChildrenChanged records a change of node's children; value is the new count.
func NewChildrenChanged(doc, node string, count int) Change {
	c := newChange(ChildrenChanged, doc, node)
	c.Value = count
	return c
}

// NewDocumentSaved records a document write.
func NewDocumentSaved(doc string, components int) Change {
	c := newChange(DocumentSaved, doc, "")
	c.Value = components
	return c
}

func NewDocumentDeleted(doc string) Change {
	return newChange(DocumentDeleted, doc, "")
}

// WithSession returns c tagged with the live session that produced it.
func (c Change) WithSession(id string) Change {
	c.Session = id
	return c
}
