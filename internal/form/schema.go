package form

import (
	"errors"
	"fmt"
	"math"
)

// GeometryGroup is the key of the synthetic style group that holds a
// component's position and size.
const GeometryGroup = "position"

// ErrInvalidSchema is returned by Validate.
var ErrInvalidSchema = errors.New("form: invalid schema")

// Schema is an ordered sequence of groups.
type Schema []*Group

// FindGroup returns the group with the given key.
func (s Schema) FindGroup(key string) (*Group, bool) {
	for _, g := range s {
		if g.Key == key {
			return g, true
		}
	}
	return nil, false
}

// Find resolves a [groupKey, fieldKey] path. A miss is reported through the
// boolean, never as an error.
func (s Schema) Find(path []string) (*Field, bool) {
	if len(path) != 2 {
		return nil, false
	}
	g, ok := s.FindGroup(path[0])
	if !ok {
		return nil, false
	}
	return g.Field(path[1])
}

// SetDefault stores value as the current value of the field at path and
// reports whether a field matched.
func (s Schema) SetDefault(path []string, value any) bool {
	f, ok := s.Find(path)
	if !ok {
		return false
	}
	f.Value = value
	return true
}

// SetFlat assigns value to every field keyed key in any group and reports
// whether at least one field matched. Style records are stored flat, so
// reseeding a style schema goes through here.
func (s Schema) SetFlat(key string, value any) bool {
	matched := false
	for _, g := range s {
		if f, ok := g.Field(key); ok {
			f.Value = value
			matched = true
		}
	}
	return matched
}

// EnsureGroup returns the group keyed key, prepending the group produced by
// build when none exists yet. Calling it again is a no-op.
func (s *Schema) EnsureGroup(key string, build func() *Group) *Group {
	if g, ok := s.FindGroup(key); ok {
		return g
	}
	g := build()
	if g.Key == "" {
		g.Key = key
	}
	*s = append(Schema{g}, *s...)
	return g
}

// Walk calls fn for every field in display order.
func (s Schema) Walk(fn func(g *Group, f *Field)) {
	for _, g := range s {
		for _, f := range g.Fields {
			fn(g, f)
		}
	}
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	c := make(Schema, len(s))
	for i, g := range s {
		c[i] = g.Clone()
	}
	return c
}

// Validate checks key presence and uniqueness.
func (s Schema) Validate() error {
	groups := make(map[string]bool, len(s))
	for i, g := range s {
		if g == nil || g.Key == "" {
			return fmt.Errorf("%w: group %d has no key", ErrInvalidSchema, i)
		}
		if groups[g.Key] {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalidSchema, g.Key)
		}
		groups[g.Key] = true

		fields := make(map[string]bool, len(g.Fields))
		for j, f := range g.Fields {
			if f == nil || f.Key == "" {
				return fmt.Errorf("%w: field %d of group %q has no key", ErrInvalidSchema, j, g.Key)
			}
			if fields[f.Key] {
				return fmt.Errorf("%w: duplicate field %q in group %q", ErrInvalidSchema, f.Key, g.Key)
			}
			fields[f.Key] = true
			if err := validateOptions(g.Key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateOptions(group string, f *Field) error {
	switch o := f.Options.(type) {
	case nil:
		return nil
	case NumberOptions:
		if f.Kind != KindNumber {
			return fmt.Errorf("%w: %s.%s: number options on %s field", ErrInvalidSchema, group, f.Key, f.Kind)
		}
		lo, hi := o.Bounds()
		if lo > hi {
			return fmt.Errorf("%w: %s.%s: min %v exceeds max %v", ErrInvalidSchema, group, f.Key, lo, hi)
		}
	case SelectOptions:
		if f.Kind != KindSelect && f.Kind != KindRadio {
			return fmt.Errorf("%w: %s.%s: choices on %s field", ErrInvalidSchema, group, f.Key, f.Kind)
		}
		if f.Value != nil && !o.Has(f.Value) {
			return fmt.Errorf("%w: %s.%s: default %v is not a choice", ErrInvalidSchema, group, f.Key, f.Value)
		}
	case CustomOptions:
		if f.Kind != KindCustom {
			return fmt.Errorf("%w: %s.%s: custom options on %s field", ErrInvalidSchema, group, f.Key, f.Kind)
		}
		if o.ComponentType == "" {
			return fmt.Errorf("%w: %s.%s: custom field without componentType", ErrInvalidSchema, group, f.Key)
		}
	}
	return nil
}

// CloneValue deep-copies the JSON-shaped containers inside v. Scalars and
// unknown types are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = CloneValue(e)
		}
		return c
	case []any:
		if t == nil {
			return t
		}
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = CloneValue(e)
		}
		return c
	case map[string]string:
		if t == nil {
			return t
		}
		c := make(map[string]string, len(t))
		for k, e := range t {
			c[k] = e
		}
		return c
	case []string:
		if t == nil {
			return t
		}
		return append([]string(nil), t...)
	default:
		return v
	}
}

// ToFloat converts the numeric types produced by JSON, YAML and CUE decoding.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Round returns v rounded half away from zero when it is numeric, and v
// unchanged otherwise.
func Round(v any) any {
	f, ok := ToFloat(v)
	if !ok {
		return v
	}
	return math.Round(f)
}
