// Package eventbus provides an in-process pub/sub bus for document change
// events. Live sessions and HTTP handlers publish; subscribers process
// events asynchronously in a single consumer goroutine.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/event"
)

// DefaultBufferSize is used when New is given a non-positive size.
const DefaultBufferSize = 256

// Handler processes a change event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, c event.Change) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, c event.Change) error

func (f HandlerFunc) HandleEvent(ctx context.Context, c event.Change) error {
	return f(ctx, c)
}

// Bus is a simple in-process event bus. Events are published to a buffered
// channel and dispatched to all subscribers in order, one event at a time.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan event.Change
	done        chan struct{}
	started     bool
	stopped     bool
	log         *zap.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size. A nil logger
// disables logging.
func New(bufSize int, log *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		events: make(chan event.Change, bufSize),
		done:   make(chan struct{}),
		log:    log.Named("eventbus"),
	}
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. Non-blocking: if the buffer is full
// or the bus is stopped the event is dropped and a warning is logged.
func (b *Bus) Publish(_ context.Context, c event.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.log.Warn("publish after stop", zap.String("type", string(c.Type)), zap.String("id", c.ID))
		return
	}
	select {
	case b.events <- c:
	default:
		b.log.Warn("buffer full, dropping event",
			zap.String("type", string(c.Type)),
			zap.String("id", c.ID),
			zap.String("document", c.DocumentID))
	}
}

// Start begins the consumer goroutine. It processes events until the
// context is cancelled or Stop is called, draining what is buffered.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			select {
			case c, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, c)
			case <-ctx.Done():
				b.drain(ctx)
				return
			}
		}
	}()
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case c, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, c)
		default:
			return
		}
	}
}

// Stop closes the bus and waits for the consumer goroutine to finish.
// Events still buffered are dispatched first. Stop is idempotent.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	close(b.events)
	b.mu.Unlock()

	if started {
		<-b.done
	}
}

func (b *Bus) dispatch(ctx context.Context, c event.Change) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, c); err != nil {
			b.log.Warn("handler error",
				zap.String("handler", s.name),
				zap.String("type", string(c.Type)),
				zap.Error(err))
		}
	}
}
