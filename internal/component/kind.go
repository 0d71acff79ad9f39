package component

import (
	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/types"
)

// DefaultSize is the width and height given to nodes whose kind sets none.
const DefaultSize = 100

// Kind describes a component type: its schemas, default geometry and demo
// data. Kinds are shared between nodes and must not be mutated after
// registration; nodes clone the schemas on creation.
type Kind struct {
	Name           string         `json:"name"`
	Group          string         `json:"group,omitempty"`
	Icon           string         `json:"icon,omitempty"`
	Width          float64        `json:"width,omitempty"`
	Height         float64        `json:"height,omitempty"`
	DataMode       types.DataMode `json:"dataMode,omitempty"`
	PropertySchema form.Schema    `json:"propertySchema"`
	StyleSchema    form.Schema    `json:"styleSchema"`
	ExampleData    any            `json:"exampleData,omitempty"`
	ExtraStyle     map[string]any `json:"extraStyle,omitempty"`

	// StyleToCSS converts the values of custom-kind style fields into style
	// entries. It runs last when the style projection is computed.
	StyleToCSS func(custom map[string]any) map[string]any `json:"-"`
}

func (k *Kind) size() (w, h float64) {
	w, h = k.Width, k.Height
	if w <= 0 {
		w = DefaultSize
	}
	if h <= 0 {
		h = DefaultSize
	}
	return w, h
}

// KindResolver looks kinds up by name.
type KindResolver interface {
	Kind(name string) (*Kind, bool)
}

// KindFunc adapts a function to KindResolver.
type KindFunc func(name string) (*Kind, bool)

func (f KindFunc) Kind(name string) (*Kind, bool) { return f(name) }

// KindMap is a fixed set of kinds keyed by name.
type KindMap map[string]*Kind

func (m KindMap) Kind(name string) (*Kind, bool) {
	k, ok := m[name]
	return k, ok
}
