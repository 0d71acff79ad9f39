// Package component implements the component tree: nodes that own
// schema-driven property and style state, a data binding and an optional
// script hook, plus the codec to and from persisted records.
//
// Tree mutations (children, change operations, binding configuration) are
// expected from one goroutine at a time per tree. Value reads are safe to
// run concurrently with them, since source adapters read property values
// from their own goroutines while delivering.
package component

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/script"
	"github.com/matthewbaird/canvas/internal/types"
)

// Synthetic property group and field keys.
const (
	CommonGroup = "common"
	NameField   = "name"
	KindField   = "component"
	IDField     = "id"
)

var geometryKeys = []string{"left", "top", "width", "height", "rotate"}

// Position is the geometry of a node in pixels and degrees.
type Position struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate float64 `json:"rotate"`
}

func (p *Position) set(key string, v float64) bool {
	switch key {
	case "left":
		p.Left = v
	case "top":
		p.Top = v
	case "width":
		p.Width = v
	case "height":
		p.Height = v
	case "rotate":
		p.Rotate = v
	default:
		return false
	}
	return true
}

func (p Position) get(key string) float64 {
	switch key {
	case "left":
		return p.Left
	case "top":
		return p.Top
	case "width":
		return p.Width
	case "height":
		return p.Height
	case "rotate":
		return p.Rotate
	}
	return 0
}

// ChangeFunc observes property or style writes.
type ChangeFunc func(path []string, value any)

// Option configures New.
type Option func(*Node)

// WithID sets the node id instead of generating one.
func WithID(id string) Option {
	return func(n *Node) {
		if id != "" {
			n.id = id
		}
	}
}

// WithName sets the node name. The kind name is used otherwise.
func WithName(name string) Option {
	return func(n *Node) {
		if name != "" {
			n.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.log = l
		}
	}
}

// Node is one element of the component tree.
type Node struct {
	kind *Kind

	// mu guards the state read by deliveries: identity, schemas, caches and
	// style overlays.
	mu         sync.Mutex
	id         string
	name       string
	pos        Position
	props      form.Schema
	style      form.Schema
	propCache  *form.ValueCache
	styleCache *form.ValueCache
	extraStyle map[string]any
	groupStyle map[string]any

	displayed bool
	locked    bool
	selected  bool
	dataMode  types.DataMode

	// parent is a back reference only; a node is owned by exactly one
	// children slice.
	parent   *Node
	children []*Node

	binding    *binding.Binding
	script     *script.Hook
	onProperty ChangeFunc
	onStyle    ChangeFunc
	destroyed  bool

	log *zap.Logger
}

// New creates a node of the given kind with default geometry.
func New(kind *Kind, opts ...Option) *Node {
	n := &Node{
		kind:      kind,
		id:        uuid.NewString(),
		name:      kind.Name,
		displayed: true,
		dataMode:  kind.DataMode,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(n)
	}
	if n.dataMode == "" {
		n.dataMode = types.DataModeSelf
	}
	n.log = n.log.Named("component").With(zap.String("kind", kind.Name), zap.String("id", n.id))

	w, h := kind.size()
	n.pos = Position{Width: w, Height: h}
	n.props = kind.PropertySchema.Clone()
	n.style = kind.StyleSchema.Clone()
	n.style.EnsureGroup(form.GeometryGroup, func() *form.Group { return positionGroup(n.pos) })
	n.syncPosition()
	n.extraStyle = cloneMap(kind.ExtraStyle)
	n.initCaches()
	n.binding = binding.New(n.PropertyValues, binding.WithLogger(n.log))
	return n
}

func (n *Node) initCaches() {
	overlays := []form.Overlay{func(map[string]any) map[string]any { return n.extraStyle }}
	if n.kind.StyleToCSS != nil {
		overlays = append(overlays, n.kind.StyleToCSS)
	}
	n.propCache = form.NewValueCache(form.Grouped)
	n.styleCache = form.NewValueCache(form.Flat, overlays...)
}

func positionGroup(p Position) *form.Group {
	zero := 0
	px := func(key, label string, v float64) *form.Field {
		return &form.Field{Key: key, Label: label, Kind: form.KindNumber, Value: v,
			Options: form.NumberOptions{Precision: &zero, Suffix: "px"}}
	}
	return &form.Group{
		Key:   form.GeometryGroup,
		Label: "Position",
		Fields: []*form.Field{
			px("left", "Left", p.Left),
			px("top", "Top", p.Top),
			px("width", "Width", p.Width),
			px("height", "Height", p.Height),
			{Key: "rotate", Label: "Rotate", Kind: form.KindNumber, Value: p.Rotate,
				Options: form.NumberOptions{Suffix: "°"}},
		},
	}
}

// syncPosition copies numeric geometry field values into pos. Callers hold
// mu or own the node exclusively.
func (n *Node) syncPosition() {
	g, ok := n.style.FindGroup(form.GeometryGroup)
	if !ok {
		return
	}
	for _, key := range geometryKeys {
		f, ok := g.Field(key)
		if !ok {
			continue
		}
		if v, ok := form.ToFloat(f.Value); ok {
			r := math.Round(v)
			n.pos.set(key, r)
			f.Value = r
		}
	}
}

func isGeometryKey(key string) bool {
	for _, k := range geometryKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ID returns the node id.
func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// Name returns the user label.
func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// Kind returns the node's kind.
func (n *Node) Kind() *Kind { return n.kind }

// Position returns the current geometry.
func (n *Node) Position() Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the ordered children.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Binding returns the node's data binding.
func (n *Node) Binding() *binding.Binding { return n.binding }

// Script returns the attached script hook, if any.
func (n *Node) Script() *script.Hook { return n.script }

// Visible reports whether the node is displayed.
func (n *Node) Visible() bool { return n.displayed }

// SetVisible shows or hides the node.
func (n *Node) SetVisible(v bool) { n.displayed = v }

// Locked reports whether the editor should refuse to move the node.
func (n *Node) Locked() bool { return n.locked }

// SetLocked locks or unlocks the node.
func (n *Node) SetLocked(v bool) { n.locked = v }

// Selected reports whether the node is selected in the editor.
func (n *Node) Selected() bool { return n.selected }

// SetSelected marks the node selected or not.
func (n *Node) SetSelected(v bool) { n.selected = v }

// DataMode returns where the node takes its data from.
func (n *Node) DataMode() types.DataMode { return n.dataMode }

// SetDataMode sets where the node takes its data from.
func (n *Node) SetDataMode(m types.DataMode) error {
	if !m.Valid() {
		return fmt.Errorf("component: invalid data mode %q", m)
	}
	if m == "" {
		m = types.DataModeSelf
	}
	n.dataMode = m
	return nil
}

// GroupStyle returns a copy of the group style, or nil.
func (n *Node) GroupStyle() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return cloneMap(n.groupStyle)
}

// SetGroupStyle replaces the group style.
func (n *Node) SetGroupStyle(s map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groupStyle = cloneMap(s)
}

// SetExtraStyle replaces the computed style entries merged over the style
// projection.
func (n *Node) SetExtraStyle(s map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.extraStyle = cloneMap(s)
	n.styleCache.MarkDirty()
}

// SetPropertyObserver registers fn to run after every property write.
func (n *Node) SetPropertyObserver(fn ChangeFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onProperty = fn
}

// SetStyleObserver registers fn to run after every style write.
func (n *Node) SetStyleObserver(fn ChangeFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onStyle = fn
}

// PropertyValues returns {groupKey: {fieldKey: value}}. The map is shared
// with the cache and must not be modified.
func (n *Node) PropertyValues() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.propCache.Get(n.props)
}

// StyleValues returns the flat style projection including overlays. The
// map is shared with the cache and must not be modified.
func (n *Node) StyleValues() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.styleCache.Get(n.style)
}

// CacheStats returns how often the property and style projections have
// been computed.
func (n *Node) CacheStats() (property, style int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.propCache.Computes(), n.styleCache.Computes()
}

// ChangeProperty writes value at [group, field] and reports whether a
// field matched. The common name path renames the node instead and skips
// the observer.
func (n *Node) ChangeProperty(path []string, value any) bool {
	n.mu.Lock()
	n.propCache.MarkDirty()
	if len(path) == 2 && path[0] == CommonGroup && path[1] == NameField {
		n.name = fmt.Sprint(value)
		n.mu.Unlock()
		return true
	}
	matched := n.props.SetDefault(path, value)
	cb := n.onProperty
	n.mu.Unlock()

	if !matched {
		n.log.Debug("property path not found", zap.Strings("path", path))
	}
	if cb != nil {
		cb(path, value)
	}
	return matched
}

// ChangeStyle writes value at path and reports whether a field matched.
// Geometry writes are rounded and mirrored into Position; a one-element
// path naming the geometry group takes an object and copies its numeric
// members.
func (n *Node) ChangeStyle(path []string, value any) bool {
	if len(path) == 0 {
		return false
	}
	n.mu.Lock()
	n.styleCache.MarkDirty()
	matched := false
	if path[0] == form.GeometryGroup {
		switch {
		case len(path) == 2 && isGeometryKey(path[1]):
			if v, ok := form.ToFloat(value); ok {
				r := math.Round(v)
				n.pos.set(path[1], r)
				value = r
			}
		case len(path) == 1:
			matched = n.setBulkPosition(value)
		}
	}
	if n.style.SetDefault(path, value) {
		matched = true
	}
	cb := n.onStyle
	n.mu.Unlock()

	if cb != nil {
		cb(path, value)
	}
	return matched
}

func (n *Node) setBulkPosition(value any) bool {
	var m map[string]any
	switch v := value.(type) {
	case map[string]any:
		m = v
	case Position:
		m = map[string]any{"left": v.Left, "top": v.Top, "width": v.Width, "height": v.Height, "rotate": v.Rotate}
	default:
		return false
	}
	matched := false
	for _, key := range geometryKeys {
		f, ok := form.ToFloat(m[key])
		if !ok {
			continue
		}
		r := math.Round(f)
		n.pos.set(key, r)
		n.style.SetDefault([]string{form.GeometryGroup, key}, r)
		matched = true
	}
	return matched
}

// PropertyForm returns a copy of the property schema with the synthetic
// common group first: the editable name and the read-only kind and id.
func (n *Node) PropertyForm() form.Schema {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.props.Clone()
	s.EnsureGroup(CommonGroup, func() *form.Group {
		return &form.Group{Key: CommonGroup, Label: "Common", Fields: []*form.Field{
			{Key: NameField, Label: "Name", Kind: form.KindText, Value: n.name},
			{Key: KindField, Label: "Component", Kind: form.KindText, Value: n.kind.Name, ReadOnly: true},
			{Key: IDField, Label: "Component ID", Kind: form.KindText, Value: n.id, ReadOnly: true},
		}}
	})
	return s
}

// StyleForm returns a copy of the style schema; the geometry group is
// always present and first unless the kind placed it.
func (n *Node) StyleForm() form.Schema {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.style.Clone()
	if g, ok := s.FindGroup(form.GeometryGroup); ok {
		for _, key := range geometryKeys {
			if f, ok := g.Field(key); ok {
				f.Value = n.pos.get(key)
			}
		}
	}
	return s
}

// SetPropertyValues seeds the property schema from a grouped value map.
// Unknown groups and fields are ignored.
func (n *Node) SetPropertyValues(values map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for group, raw := range values {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for key, v := range fields {
			n.props.SetDefault([]string{group, key}, form.CloneValue(v))
		}
	}
	n.propCache.MarkDirty()
}

// SetStyleValues seeds the style schema from a flat value map. Geometry
// entries also update Position.
func (n *Node) SetStyleValues(values map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key, v := range values {
		n.style.SetFlat(key, form.CloneValue(v))
	}
	n.syncPosition()
	n.styleCache.MarkDirty()
}

// SetDataConfig replaces the node's data source. The new source connects
// immediately only when a delivery callback is registered.
func (n *Node) SetDataConfig(ctx context.Context, typ string, src any) error {
	return n.binding.SetSource(ctx, typ, src)
}

// SetDeliveryCallback registers the consumer of this node's data and
// reconnects the current source through it.
func (n *Node) SetDeliveryCallback(ctx context.Context, cb binding.Callback) error {
	return n.binding.RegisterDelivery(ctx, cb)
}

// SetScript replaces the post-fetch transform. A nil hook removes it.
func (n *Node) SetScript(ctx context.Context, h *script.Hook) error {
	n.script = h
	if h == nil {
		return n.binding.SetHook(ctx, nil)
	}
	return n.binding.SetHook(ctx, h)
}

// LoadDemoData delivers the kind's example data through the pipeline after
// the demo delay.
func (n *Node) LoadDemoData() *time.Timer {
	return n.binding.Simulate(form.CloneValue(n.kind.ExampleData))
}

// Destroy closes the bindings of the node and its descendants and detaches
// it from its parent. Every close is attempted; failures are joined.
func (n *Node) Destroy() error {
	if n.parent != nil {
		n.parent.removeChild(n)
		n.parent = nil
	}
	return n.destroy()
}

func (n *Node) destroy() error {
	if n.destroyed {
		return nil
	}
	n.destroyed = true
	var errs []error
	for _, c := range n.children {
		c.parent = nil
		errs = append(errs, c.destroy())
	}
	n.children = nil
	if err := n.binding.Close(); err != nil {
		errs = append(errs, fmt.Errorf("component %s: %w", n.id, err))
	}
	n.mu.Lock()
	n.onProperty, n.onStyle = nil, nil
	n.mu.Unlock()
	return errors.Join(errs...)
}

// Destroyed reports whether Destroy has run.
func (n *Node) Destroyed() bool { return n.destroyed }

func cloneMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return form.CloneValue(m).(map[string]any)
}
