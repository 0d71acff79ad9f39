// Package catalog loads component kinds from CUE definitions.
//
// Kinds live under a top-level `kinds` struct. Each entry is unified with
// the embedded #Kind definition, which rejects unknown members and checks
// per-field-kind options, then decoded into a component.Kind.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/form"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed kinds.cue
var builtinSource []byte

var (
	// ErrDuplicateKind is returned when a kind name is registered twice.
	ErrDuplicateKind = errors.New("catalog: duplicate kind")
	// ErrInvalidKind wraps CUE validation and schema errors.
	ErrInvalidKind = errors.New("catalog: invalid kind")
)

// Registry holds kinds by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*component.Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*component.Kind)}
}

// Builtin returns a registry holding the embedded kinds.
func Builtin() (*Registry, error) {
	kinds, err := Load(builtinSource, "kinds.cue")
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	if err := r.Register(kinds...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds kinds after validating their schemas. Nothing is added
// when any kind fails.
func (r *Registry) Register(kinds ...*component.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		if k == nil || k.Name == "" {
			return fmt.Errorf("%w: kind without name", ErrInvalidKind)
		}
		if _, exists := r.kinds[k.Name]; exists || batch[k.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateKind, k.Name)
		}
		batch[k.Name] = true
		if err := k.PropertySchema.Validate(); err != nil {
			return fmt.Errorf("%w: %s properties: %w", ErrInvalidKind, k.Name, err)
		}
		if err := k.StyleSchema.Validate(); err != nil {
			return fmt.Errorf("%w: %s style: %w", ErrInvalidKind, k.Name, err)
		}
		if err := checkComputedStyle(k); err != nil {
			return fmt.Errorf("%w: %s style: %w", ErrInvalidKind, k.Name, err)
		}
	}
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
	return nil
}

// checkComputedStyle rejects kinds whose extra style or custom field
// converter writes a key that is also a style field key. Such an entry would
// be persisted under the field's key and overwrite the field on reload.
func checkComputedStyle(k *component.Kind) error {
	fields := make(map[string]bool)
	custom := make(map[string]any)
	k.StyleSchema.Walk(func(_ *form.Group, f *form.Field) {
		fields[f.Key] = true
		if f.Kind == form.KindCustom {
			custom[f.Key] = form.CloneValue(f.Value)
		}
	})
	for key := range k.ExtraStyle {
		if fields[key] {
			return fmt.Errorf("extra style %q shadows a style field", key)
		}
	}
	if k.StyleToCSS == nil {
		return nil
	}
	for key := range k.StyleToCSS(custom) {
		if fields[key] {
			return fmt.Errorf("computed style %q shadows a style field", key)
		}
	}
	return nil
}

// Kind implements component.KindResolver.
func (r *Registry) Kind(name string) (*component.Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns the registered kind names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the registered kinds sorted by name.
func (r *Registry) All() []*component.Kind {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*component.Kind, 0, len(names))
	for _, n := range names {
		out = append(out, r.kinds[n])
	}
	return out
}

// Instantiate creates a node of the named kind.
func (r *Registry) Instantiate(name string, opts ...component.Option) (*component.Node, error) {
	k, ok := r.Kind(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", component.ErrUnknownKind, name)
	}
	return component.New(k, opts...), nil
}

// Load compiles CUE source holding a `kinds` struct.
func Load(src []byte, filename string) ([]*component.Kind, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("catalog: compile %s: %w", filename, err)
	}
	return extract(ctx, v)
}

// LoadDir loads the CUE package in dir.
func LoadDir(dir string) ([]*component.Kind, error) {
	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, fmt.Errorf("catalog: no CUE instances in %s", dir)
	}
	if err := insts[0].Err; err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", dir, err)
	}
	ctx := cuecontext.New()
	v := ctx.BuildInstance(insts[0])
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("catalog: build %s: %w", dir, err)
	}
	return extract(ctx, v)
}

func extract(ctx *cue.Context, v cue.Value) ([]*component.Kind, error) {
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("catalog: compile schema: %w", err)
	}
	kindDef := schema.LookupPath(cue.ParsePath("#Kind"))

	kinds := v.LookupPath(cue.ParsePath("kinds"))
	if !kinds.Exists() {
		return nil, fmt.Errorf("%w: no kinds struct", ErrInvalidKind)
	}
	iter, err := kinds.Fields()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKind, err)
	}

	var out []*component.Kind
	for iter.Next() {
		label := iter.Selector().Unquoted()
		kv := iter.Value().Unify(kindDef)
		if err := kv.Validate(cue.Concrete(true)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidKind, label, err)
		}
		var def kindSpec
		if err := kv.Decode(&def); err != nil {
			return nil, fmt.Errorf("%w: %s: decode: %w", ErrInvalidKind, label, err)
		}
		k, err := def.build()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidKind, label, err)
		}
		out = append(out, k)
	}
	return out, nil
}
