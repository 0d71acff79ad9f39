package component

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
)

var (
	// ErrCycle is returned when a node would become its own ancestor.
	ErrCycle = errors.New("component: node would become its own ancestor")
	// ErrIndex is returned for out-of-range child positions.
	ErrIndex = errors.New("component: child index out of range")
)

// AddOptions controls AddChildren.
type AddOptions struct {
	// DeepCopy attaches independent copies instead of the given nodes.
	DeepCopy bool
	// Replace destroys the current children first. Nodes that are both
	// current and incoming are kept alive unless DeepCopy attaches copies
	// in their place.
	Replace bool
	// FreshIDs gives deep copies new ids.
	FreshIDs bool
}

// AddChildren attaches nodes in order. Nodes already attached elsewhere are
// moved. Nothing changes when any node would create a cycle.
func (n *Node) AddChildren(nodes []*Node, opts AddOptions) error {
	incoming := make([]*Node, 0, len(nodes))
	seen := make(map[*Node]bool, len(nodes))
	for _, c := range nodes {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		if opts.DeepCopy {
			cp, err := c.clone(opts.FreshIDs)
			if err != nil {
				return err
			}
			incoming = append(incoming, cp)
			continue
		}
		if c.isAncestorOf(n) {
			return fmt.Errorf("%w: %s under %s", ErrCycle, c.ID(), n.ID())
		}
		incoming = append(incoming, c)
	}

	var errs []error
	if opts.Replace {
		old := n.children
		n.children = nil
		for _, o := range old {
			o.parent = nil
			if opts.DeepCopy || !seen[o] {
				errs = append(errs, o.destroy())
			}
		}
	}
	for _, c := range incoming {
		c.attachTo(n)
		n.children = append(n.children, c)
	}
	return errors.Join(errs...)
}

// AppendChild attaches c as the last child.
func (n *Node) AppendChild(c *Node) error {
	return n.AddChildren([]*Node{c}, AddOptions{})
}

// UpdateChild replaces the child at index i with c and destroys the
// previous occupant.
func (n *Node) UpdateChild(i int, c *Node) error {
	if i < 0 || i >= len(n.children) {
		return fmt.Errorf("%w: %d of %d", ErrIndex, i, len(n.children))
	}
	old := n.children[i]
	if old == c {
		return nil
	}
	if c.parent == n {
		return fmt.Errorf("component: %s is already a child of %s", c.ID(), n.ID())
	}
	if c.isAncestorOf(n) {
		return fmt.Errorf("%w: %s under %s", ErrCycle, c.ID(), n.ID())
	}
	c.attachTo(nil)
	c.parent = n
	n.children[i] = c
	old.parent = nil
	return old.destroy()
}

// RemoveChild detaches and destroys the direct child with the given id.
func (n *Node) RemoveChild(id string) (bool, error) {
	for _, c := range n.children {
		if c.ID() == id {
			return true, c.Destroy()
		}
	}
	return false, nil
}

// attachTo moves n under parent, detaching it from its current parent.
// The caller appends n to parent's children.
func (n *Node) attachTo(parent *Node) {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	n.parent = parent
}

func (n *Node) removeChild(c *Node) {
	for i, x := range n.children {
		if x == c {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			return
		}
	}
}

// isAncestorOf reports whether n is other or one of its ancestors.
func (n *Node) isAncestorOf(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth first, parents before children.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.children {
		c.walk(fn, depth+1)
	}
}

// FindByID returns the node in the subtree with the given id.
func (n *Node) FindByID(id string) *Node {
	if n.ID() == id {
		return n
	}
	for _, c := range n.children {
		if found := c.FindByID(id); found != nil {
			return found
		}
	}
	return nil
}

// Clone returns a detached deep copy of the subtree with the same ids.
// The copy shares no mutable state with n. Its sources are unconnected
// and its observers and delivery callbacks are unset.
func (n *Node) Clone() (*Node, error) {
	return n.clone(false)
}

func (n *Node) clone(freshIDs bool) (*Node, error) {
	n.mu.Lock()
	c := &Node{
		kind:       n.kind,
		id:         n.id,
		name:       n.name,
		pos:        n.pos,
		props:      n.props.Clone(),
		style:      n.style.Clone(),
		extraStyle: cloneMap(n.extraStyle),
		groupStyle: cloneMap(n.groupStyle),
		displayed:  n.displayed,
		locked:     n.locked,
		selected:   n.selected,
		dataMode:   n.dataMode,
		log:        n.log,
	}
	n.mu.Unlock()
	if freshIDs {
		c.id = uuid.NewString()
	}
	c.initCaches()
	c.binding = binding.New(c.PropertyValues, binding.WithLogger(c.log))

	ctx := context.Background()
	if n.script != nil {
		h, err := n.script.Clone()
		if err != nil {
			return nil, fmt.Errorf("component %s: clone script: %w", n.id, err)
		}
		c.script = h
		if err := c.binding.SetHook(ctx, h); err != nil {
			return nil, err
		}
	}
	if typ, opts, ok := n.binding.Descriptor(); ok {
		src := any(&Pending{Type: typ, RequestOptions: form.CloneValue(opts)})
		if cl, isCloner := n.binding.Source().(binding.Cloner); isCloner {
			src = cl.CloneSource()
		}
		if err := c.binding.SetSource(ctx, typ, src); err != nil {
			return nil, err
		}
	}
	for _, child := range n.children {
		cc, err := child.clone(freshIDs)
		if err != nil {
			return nil, err
		}
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c, nil
}

// Pending is an inert source that only remembers its persisted descriptor.
// It stands in for sources that cannot be rebuilt, such as records decoded
// without a source registry.
type Pending struct {
	Type           string
	RequestOptions any
}

// Options returns the persisted request options.
func (p *Pending) Options() any { return p.RequestOptions }
