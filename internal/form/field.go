// Package form models the declarative schemas that describe a component's
// editable properties and styles, and the caches that project them into
// plain value maps.
//
// A Schema is an ordered list of groups; each group holds an ordered list of
// fields. Group order is display order. Field keys are unique within a group
// and group keys are unique within a schema.
package form

import (
	"fmt"
	"reflect"
	"strings"
)

// FieldKind selects the editor control used for a field and the option
// variant it may carry.
type FieldKind int

const (
	KindText FieldKind = iota
	KindTextarea
	KindNumber
	KindColor
	KindSelect
	KindRadio
	KindSwitch
	KindJSON
	KindCustom
)

var kindNames = [...]string{
	KindText:     "text",
	KindTextarea: "textarea",
	KindNumber:   "number",
	KindColor:    "color",
	KindSelect:   "select",
	KindRadio:    "radio",
	KindSwitch:   "switch",
	KindJSON:     "json",
	KindCustom:   "custom",
}

// String returns the catalog name of the kind.
func (k FieldKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseFieldKind maps a catalog name back to a FieldKind.
func ParseFieldKind(s string) (FieldKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return FieldKind(i), nil
		}
	}
	return 0, fmt.Errorf("form: unknown field kind %q", s)
}

func (k FieldKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *FieldKind) UnmarshalText(b []byte) error {
	v, err := ParseFieldKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Options is the per-kind configuration attached to a field. The concrete
// variants are NumberOptions, SelectOptions, TextOptions and CustomOptions.
type Options interface {
	clone() Options
}

// Default bounds applied to number fields that configure none.
const (
	DefaultNumberMin = -9999999999
	DefaultNumberMax = 9999999999
)

// NumberOptions configures a number field. Nil members fall back to the
// package defaults.
type NumberOptions struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Precision *int     `json:"precision,omitempty"`
	Prefix    string   `json:"prefix,omitempty"`
	Suffix    string   `json:"suffix,omitempty"`
}

// Bounds returns the effective min and max.
func (o NumberOptions) Bounds() (lo, hi float64) {
	lo, hi = DefaultNumberMin, DefaultNumberMax
	if o.Min != nil {
		lo = *o.Min
	}
	if o.Max != nil {
		hi = *o.Max
	}
	return lo, hi
}

// Clamp limits v to the configured bounds.
func (o NumberOptions) Clamp(v float64) float64 {
	lo, hi := o.Bounds()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (o NumberOptions) clone() Options {
	c := o
	if o.Min != nil {
		v := *o.Min
		c.Min = &v
	}
	if o.Max != nil {
		v := *o.Max
		c.Max = &v
	}
	if o.Precision != nil {
		v := *o.Precision
		c.Precision = &v
	}
	return c
}

// Choice is one selectable entry of a select or radio field.
type Choice struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// SelectOptions configures select and radio fields.
type SelectOptions struct {
	Choices []Choice `json:"choices"`
}

// Has reports whether v is one of the configured choice values.
func (o SelectOptions) Has(v any) bool {
	for _, c := range o.Choices {
		if reflect.DeepEqual(c.Value, v) {
			return true
		}
	}
	return false
}

func (o SelectOptions) clone() Options {
	c := SelectOptions{Choices: make([]Choice, len(o.Choices))}
	copy(c.Choices, o.Choices)
	return c
}

// TextOptions configures text and textarea fields.
type TextOptions struct {
	Prefix      string `json:"prefix,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

func (o TextOptions) clone() Options { return o }

// CustomOptions names an externally rendered editor and its arguments.
type CustomOptions struct {
	ComponentType string         `json:"componentType"`
	Args          map[string]any `json:"args,omitempty"`
}

func (o CustomOptions) clone() Options {
	c := o
	if o.Args != nil {
		c.Args = CloneValue(o.Args).(map[string]any)
	}
	return c
}

// Field is one editable setting. Value is the field's current value and is
// the storage location for the property or style it describes.
type Field struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Value    any       `json:"value,omitempty"`
	ReadOnly bool      `json:"readOnly,omitempty"`
	Disabled bool      `json:"disabled,omitempty"`
	Options  Options   `json:"options,omitempty"`
}

// Editable reports whether a user may change the field.
func (f *Field) Editable() bool {
	return !f.ReadOnly && !f.Disabled
}

// Number returns the field's number options, or zero options when the field
// carries none.
func (f *Field) Number() NumberOptions {
	if o, ok := f.Options.(NumberOptions); ok {
		return o
	}
	return NumberOptions{}
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	c := *f
	c.Value = CloneValue(f.Value)
	if f.Options != nil {
		c.Options = f.Options.clone()
	}
	return &c
}

// Group is a labeled, ordered set of fields.
type Group struct {
	Key    string   `json:"key"`
	Label  string   `json:"label"`
	Fields []*Field `json:"children"`
}

// Field returns the field with the given key.
func (g *Group) Field(key string) (*Field, bool) {
	for _, f := range g.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	c := &Group{Key: g.Key, Label: g.Label, Fields: make([]*Field, len(g.Fields))}
	for i, f := range g.Fields {
		c.Fields[i] = f.Clone()
	}
	return c
}
