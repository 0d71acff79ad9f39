package component

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/script"
	"github.com/matthewbaird/canvas/internal/types"
)

var (
	// ErrUnknownKind is returned when a record names a kind the resolver
	// does not know.
	ErrUnknownKind = errors.New("component: unknown kind")
	// ErrInvalidRecord is returned by ValidateRecord.
	ErrInvalidRecord = errors.New("component: invalid record")
)

// ToPersisted serializes the subtree rooted at n. Empty members, including
// an empty children list, are omitted.
func (n *Node) ToPersisted() types.NodeRecord {
	props := n.PropertyValues()
	style := n.StyleValues()

	n.mu.Lock()
	rec := types.NodeRecord{
		ID:             n.id,
		Kind:           n.kind.Name,
		Name:           n.name,
		PropertyValues: cloneMap(props),
		Style:          cloneMap(style),
		DataMode:       n.dataMode,
		Locked:         n.locked,
		Selected:       n.selected,
		GroupStyle:     cloneMap(n.groupStyle),
	}
	n.mu.Unlock()

	if !n.displayed {
		hidden := false
		rec.Displayed = &hidden
	}
	if n.script != nil {
		rec.Script = n.script.Record()
	}
	if typ, opts, ok := n.binding.Descriptor(); ok {
		rec.Data = &types.DataRecord{Type: typ, RequestOptions: form.CloneValue(opts)}
	}
	for _, c := range n.children {
		rec.Children = append(rec.Children, c.ToPersisted())
	}
	return rec
}

// SourceResolver rebuilds a source handle from its persisted descriptor.
type SourceResolver interface {
	Build(typ string, options any) (any, error)
}

// Decoder rebuilds node trees from records.
type Decoder struct {
	Kinds KindResolver
	// Sources rebuilds data sources. When nil, sources are kept as inert
	// Pending descriptors.
	Sources       SourceResolver
	Logger        *zap.Logger
	ScriptOptions []script.Option
}

// Decode rebuilds the subtree described by rec. Sources are attached but
// not connected; register a delivery callback to start them.
func (d Decoder) Decode(ctx context.Context, rec types.NodeRecord) (*Node, error) {
	if d.Kinds == nil {
		return nil, fmt.Errorf("%w %q: no kind resolver", ErrUnknownKind, rec.Kind)
	}
	kind, ok := d.Kinds.Kind(rec.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, rec.Kind)
	}
	n := New(kind, WithID(rec.ID), WithName(rec.Name), WithLogger(d.Logger))
	if err := d.fill(ctx, n, rec); err != nil {
		if derr := n.Destroy(); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, err
	}
	return n, nil
}

func (d Decoder) fill(ctx context.Context, n *Node, rec types.NodeRecord) error {
	n.SetPropertyValues(rec.PropertyValues)
	n.SetStyleValues(rec.Style)
	n.SetGroupStyle(rec.GroupStyle)
	if rec.DataMode != "" {
		if err := n.SetDataMode(rec.DataMode); err != nil {
			return err
		}
	}
	n.displayed = rec.Displayed == nil || *rec.Displayed
	n.locked = rec.Locked
	n.selected = rec.Selected

	if rec.Script != nil {
		opts := append([]script.Option{script.WithLogger(d.Logger)}, d.ScriptOptions...)
		h, err := script.Compile(*rec.Script, opts...)
		if err != nil {
			return fmt.Errorf("component %s: %w", n.id, err)
		}
		if err := n.SetScript(ctx, h); err != nil {
			return err
		}
	}
	if rec.Data != nil {
		var src any = &Pending{Type: rec.Data.Type, RequestOptions: form.CloneValue(rec.Data.RequestOptions)}
		if d.Sources != nil {
			built, err := d.Sources.Build(rec.Data.Type, rec.Data.RequestOptions)
			if err != nil {
				return fmt.Errorf("component %s: %w", n.id, err)
			}
			src = built
		}
		if err := n.SetDataConfig(ctx, rec.Data.Type, src); err != nil {
			return err
		}
	}
	for _, cr := range rec.Children {
		c, err := d.Decode(ctx, cr)
		if err != nil {
			return err
		}
		if err := n.AppendChild(c); err != nil {
			return err
		}
	}
	return nil
}

// FromPersisted rebuilds a tree using kinds for schema lookup. Data
// sources are kept as inert descriptors.
func FromPersisted(rec types.NodeRecord, kinds KindResolver) (*Node, error) {
	return Decoder{Kinds: kinds}.Decode(context.Background(), rec)
}

// ValidateRecord checks a record tree before it is decoded: every node
// names a kind known to kinds (when kinds is non-nil), ids are unique,
// data modes are known and data descriptors carry a type.
func ValidateRecord(rec types.NodeRecord, kinds KindResolver) error {
	ids := make(map[string]string)
	var errs []error
	var walk func(r types.NodeRecord, at string)
	walk = func(r types.NodeRecord, at string) {
		if r.Kind == "" {
			errs = append(errs, fmt.Errorf("%w: %s: missing kind", ErrInvalidRecord, at))
		} else if kinds != nil {
			if _, ok := kinds.Kind(r.Kind); !ok {
				errs = append(errs, fmt.Errorf("%w: %s: %w %q", ErrInvalidRecord, at, ErrUnknownKind, r.Kind))
			}
		}
		if r.ID != "" {
			if prev, dup := ids[r.ID]; dup {
				errs = append(errs, fmt.Errorf("%w: %s: id %q already used at %s", ErrInvalidRecord, at, r.ID, prev))
			} else {
				ids[r.ID] = at
			}
		}
		if !r.DataMode.Valid() {
			errs = append(errs, fmt.Errorf("%w: %s: unknown data mode %q", ErrInvalidRecord, at, r.DataMode))
		}
		if r.Data != nil && r.Data.Type == "" {
			errs = append(errs, fmt.Errorf("%w: %s: data without type", ErrInvalidRecord, at))
		}
		for i, c := range r.Children {
			walk(c, fmt.Sprintf("%s.children[%d]", at, i))
		}
	}
	walk(rec, "$")
	return errors.Join(errs...)
}

// ValidateRecords validates each root of a document.
func ValidateRecords(recs []types.NodeRecord, kinds KindResolver) error {
	var errs []error
	for i, r := range recs {
		if err := ValidateRecord(r, kinds); err != nil {
			errs = append(errs, fmt.Errorf("components[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Normalize decodes and re-encodes recs so every record carries the full
// value set of its kind's schemas. Scripts are compiled and sources stay
// inert; the first decode error is returned with its root index.
func Normalize(recs []types.NodeRecord, kinds KindResolver) ([]types.NodeRecord, error) {
	out := make([]types.NodeRecord, 0, len(recs))
	for i, rec := range recs {
		n, err := FromPersisted(rec, kinds)
		if err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		out = append(out, n.ToPersisted())
		if err := n.Destroy(); err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
	}
	return out, nil
}
