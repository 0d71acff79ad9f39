package form

// Cached holds a lazily computed value. It is not safe for concurrent use;
// owners serialize access.
type Cached[T any] struct {
	dirty    bool
	value    T
	computes int
}

// NewCached returns a cache that computes on first Get.
func NewCached[T any]() *Cached[T] {
	return &Cached[T]{dirty: true}
}

// Get returns the cached value, calling compute first when the cache is
// dirty.
func (c *Cached[T]) Get(compute func() T) T {
	if c.dirty {
		c.value = compute()
		c.dirty = false
		c.computes++
	}
	return c.value
}

// Invalidate marks the value stale.
func (c *Cached[T]) Invalidate() { c.dirty = true }

// Dirty reports whether the next Get recomputes.
func (c *Cached[T]) Dirty() bool { return c.dirty }

// Computes returns how many times the value has been computed.
func (c *Cached[T]) Computes() int { return c.computes }

// Layout selects how a ValueCache shapes its projection.
type Layout int

const (
	// Grouped produces {groupKey: {fieldKey: value}}.
	Grouped Layout = iota
	// Flat produces {fieldKey: value} across all groups.
	Flat
)

// Overlay contributes extra entries to a flat projection. custom holds the
// current values of every custom-kind field. The returned entries are merged
// over the projection; a nil result adds nothing.
type Overlay func(custom map[string]any) map[string]any

// ValueCache materializes a Schema into a value map on demand.
type ValueCache struct {
	layout   Layout
	overlays []Overlay
	cached   *Cached[map[string]any]
}

// NewValueCache builds a cache. Overlays only apply to the Flat layout and
// run in order.
func NewValueCache(layout Layout, overlays ...Overlay) *ValueCache {
	return &ValueCache{
		layout:   layout,
		overlays: overlays,
		cached:   NewCached[map[string]any](),
	}
}

// Get returns the projection of s, recomputing only when dirty. Each
// recomputation allocates a new map, so a map returned earlier is never
// modified afterwards. Callers must treat the result as read-only.
func (c *ValueCache) Get(s Schema) map[string]any {
	return c.cached.Get(func() map[string]any {
		if c.layout == Grouped {
			return grouped(s)
		}
		return c.flat(s)
	})
}

// MarkDirty forces the next Get to recompute.
func (c *ValueCache) MarkDirty() { c.cached.Invalidate() }

// Dirty reports whether the next Get recomputes.
func (c *ValueCache) Dirty() bool { return c.cached.Dirty() }

// Computes returns the number of recomputations so far.
func (c *ValueCache) Computes() int { return c.cached.Computes() }

func grouped(s Schema) map[string]any {
	out := make(map[string]any, len(s))
	for _, g := range s {
		vals := make(map[string]any, len(g.Fields))
		for _, f := range g.Fields {
			vals[f.Key] = CloneValue(f.Value)
		}
		out[g.Key] = vals
	}
	return out
}

func (c *ValueCache) flat(s Schema) map[string]any {
	out := make(map[string]any)
	custom := make(map[string]any)
	s.Walk(func(g *Group, f *Field) {
		v := CloneValue(f.Value)
		if g.Key == GeometryGroup && f.Kind == KindNumber {
			v = Round(v)
		}
		if f.Kind == KindCustom {
			custom[f.Key] = v
		}
		out[f.Key] = v
	})
	for _, o := range c.overlays {
		for k, v := range o(custom) {
			out[k] = v
		}
	}
	return out
}
