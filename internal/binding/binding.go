// Package binding manages the single external data-source connection of a
// component and composes the callback pipeline that carries fetched results
// through the script hook to the consumer.
//
// A binding moves DISCONNECTED -> CONNECTING -> CONNECTED, back to
// DISCONNECTED on close, and from CONNECTED to CONNECTING when its source,
// sink or hook is replaced. The previous handle is always closed before the
// next connect is issued.
package binding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DemoDelay is how long Simulate waits before delivering.
const DemoDelay = 200 * time.Millisecond

// State is the connection state of a binding.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.log = l
		}
	}
}

// WithDemoDelay overrides DemoDelay.
func WithDemoDelay(d time.Duration) Option {
	return func(b *Binding) { b.demoDelay = d }
}

// Binding owns at most one active source handle. Its methods are safe for
// concurrent use. The composed callback never takes the binding's lock, so
// adapters may deliver synchronously from Connect.
type Binding struct {
	mu        sync.Mutex
	state     atomic.Int32
	props     func() map[string]any
	log       *zap.Logger
	demoDelay time.Duration

	typ  string
	src  any
	hook Hook
	sink Callback
	// open is set while the stored handle has not been closed since it was
	// stored or last connected.
	open bool
}

// New creates a disconnected binding. props supplies the owning node's
// property values to the hook; it may be nil.
func New(props func() map[string]any, opts ...Option) *Binding {
	b := &Binding{
		props:     props,
		log:       zap.NewNop(),
		demoDelay: DemoDelay,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SetSource closes the current handle, stores the new one and connects it
// when a sink is registered. A nil src detaches the binding. Adapter errors
// are returned unchanged in meaning, wrapped with context.
func (b *Binding) SetSource(ctx context.Context, typ string, src any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.closeLocked(); err != nil {
		return err
	}
	b.typ, b.src = typ, src
	if src == nil {
		b.typ = ""
		return nil
	}
	b.open = true
	if b.sink == nil {
		return nil
	}
	return b.connectLocked(ctx)
}

// RegisterDelivery installs sink as the final stage of the pipeline and
// reconnects the current handle with the newly composed callback. A nil
// sink leaves the handle closed.
func (b *Binding) RegisterDelivery(ctx context.Context, sink Callback) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sink = sink
	return b.reconnectLocked(ctx)
}

// SetHook replaces the script hook and reconnects like RegisterDelivery.
func (b *Binding) SetHook(ctx context.Context, hook Hook) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hook = hook
	return b.reconnectLocked(ctx)
}

// Simulate delivers example as a successful DEMO result through the
// composed callback after the demo delay. The pipeline is composed when the
// timer fires, so a sink or hook replaced in the meantime is used. The
// source handle is not touched. It returns nil when no sink is registered.
func (b *Binding) Simulate(example any) *time.Timer {
	b.mu.Lock()
	hasSink := b.sink != nil
	delay := b.demoDelay
	b.mu.Unlock()

	if !hasSink {
		return nil
	}
	return time.AfterFunc(delay, func() {
		b.mu.Lock()
		cb := b.composeLocked()
		b.mu.Unlock()
		if cb != nil {
			cb(Result{Status: StatusSuccess, Data: example, Origin: OriginDemo})
		}
	})
}

// Close closes the current handle. Closing an already closed binding is a
// no-op. The handle stays stored so it can be persisted or reconnected.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

// State returns the connection state.
func (b *Binding) State() State { return State(b.state.Load()) }

// SourceType returns the stored source type, or "" when detached.
func (b *Binding) SourceType() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typ
}

// Source returns the stored handle.
func (b *Binding) Source() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.src
}

// Hook returns the current hook.
func (b *Binding) Hook() Hook {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hook
}

// HasSink reports whether a delivery callback is registered.
func (b *Binding) HasSink() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink != nil
}

// Descriptor returns the persisted form of the source: its type and, when
// the handle implements Describer, its request options.
func (b *Binding) Descriptor() (typ string, options any, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.src == nil {
		return "", nil, false
	}
	if d, isDesc := b.src.(Describer); isDesc {
		options = d.Options()
	}
	return b.typ, options, true
}

func (b *Binding) reconnectLocked(ctx context.Context) error {
	if b.src == nil {
		return nil
	}
	if err := b.closeLocked(); err != nil {
		return err
	}
	if b.sink == nil {
		return nil
	}
	return b.connectLocked(ctx)
}

func (b *Binding) connectLocked(ctx context.Context) error {
	c, ok := b.src.(Connector)
	if !ok {
		return nil
	}
	b.open = true
	b.state.Store(int32(Connecting))
	if err := c.Connect(ctx, b.composeLocked()); err != nil {
		b.state.Store(int32(Disconnected))
		return fmt.Errorf("binding: connect %s source: %w", b.typ, err)
	}
	b.state.Store(int32(Connected))
	b.log.Debug("source connected", zap.String("type", b.typ))
	return nil
}

// closeLocked closes the stored handle unless it is already closed. On
// failure the handle stays open and the state is unchanged, so a later call
// retries.
func (b *Binding) closeLocked() error {
	if !b.open {
		return nil
	}
	if c, ok := b.src.(Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("binding: close %s source: %w", b.typ, err)
		}
	}
	b.open = false
	b.state.Store(int32(Disconnected))
	b.log.Debug("source closed", zap.String("type", b.typ))
	return nil
}

// composeLocked builds the pipeline raw result -> hook -> sink from the
// current hook and sink. The closure captures values, not the binding, so a
// later replacement never changes a callback already handed to an adapter.
func (b *Binding) composeLocked() Callback {
	sink := b.sink
	if sink == nil {
		return nil
	}
	hook, props := b.hook, b.props
	return func(r Result) {
		if hook == nil {
			r.AfterData = r.Data
			sink(r)
			return
		}
		var p map[string]any
		if r.OK() && props != nil {
			p = props()
		}
		sink(hook.Apply(r, p))
	}
}
