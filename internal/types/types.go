// Package types holds the persisted JSON shapes shared by the engine, the
// stores and the HTTP API. Optional members use omitempty so stored
// documents stay minimal.
package types

import "time"

// DataMode selects where a component takes its data from.
type DataMode string

const (
	DataModeSelf   DataMode = "self"
	DataModeGlobal DataMode = "global"
	DataModeGroup  DataMode = "group"
)

// Valid reports whether m is a known mode. The empty mode is valid and
// means self.
func (m DataMode) Valid() bool {
	switch m {
	case "", DataModeSelf, DataModeGlobal, DataModeGroup:
		return true
	default:
		return false
	}
}

// ScriptRecord is the persisted form of a post-fetch transform.
type ScriptRecord struct {
	Type string `json:"type" yaml:"type"` // "js"
	Code string `json:"code" yaml:"code"`
}

// DataRecord is the persisted form of a data-source binding.
type DataRecord struct {
	Type           string `json:"type" yaml:"type"`
	RequestOptions any    `json:"requestOptions,omitempty" yaml:"requestOptions,omitempty"`
}

// NodeRecord is the persisted form of a component and its descendants.
type NodeRecord struct {
	ID             string         `json:"id" yaml:"id"`
	Kind           string         `json:"kind" yaml:"kind"`
	Name           string         `json:"name" yaml:"name"`
	PropertyValues map[string]any `json:"propertyValues,omitempty" yaml:"propertyValues,omitempty"`
	Style          map[string]any `json:"style,omitempty" yaml:"style,omitempty"`
	Children       []NodeRecord   `json:"children,omitempty" yaml:"children,omitempty"`
	DataMode       DataMode       `json:"dataMode,omitempty" yaml:"dataMode,omitempty"`
	Displayed      *bool          `json:"displayed,omitempty" yaml:"displayed,omitempty"`
	Locked         bool           `json:"locked,omitempty" yaml:"locked,omitempty"`
	Selected       bool           `json:"selected,omitempty" yaml:"selected,omitempty"`
	Script         *ScriptRecord  `json:"script,omitempty" yaml:"script,omitempty"`
	Data           *DataRecord    `json:"data,omitempty" yaml:"data,omitempty"`
	GroupStyle     map[string]any `json:"groupStyle,omitempty" yaml:"groupStyle,omitempty"`
}

// Count returns the number of records in the subtree rooted at r.
func (r NodeRecord) Count() int {
	n := 1
	for _, c := range r.Children {
		n += c.Count()
	}
	return n
}

// Document is a stored canvas: an ordered list of root components.
type Document struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Components []NodeRecord `json:"components" yaml:"components"`
	CreatedAt  time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt" yaml:"updatedAt"`
}

// DocumentSummary is a Document without its components, used in listings.
type DocumentSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ComponentCount int       `json:"componentCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Summary returns the listing form of d.
func (d Document) Summary() DocumentSummary {
	n := 0
	for _, c := range d.Components {
		n += c.Count()
	}
	return DocumentSummary{ID: d.ID, Name: d.Name, ComponentCount: n, UpdatedAt: d.UpdatedAt}
}
