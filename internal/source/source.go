// Package source provides data-source adapters for component bindings and
// a registry that rebuilds them from persisted descriptors.
//
// Every adapter honors Close: once Close returns, the callback handed to
// the closed connection is never called again. Callbacks must not close
// their own source synchronously.
package source

import (
	"context"
	"sync"

	"github.com/matthewbaird/canvas/internal/binding"
)

// conn tracks the current connection of an adapter. Each Connect starts a
// new generation; deliveries tagged with an older generation are dropped.
type conn struct {
	mu     sync.RWMutex
	gen    uint64
	cb     binding.Callback
	cancel context.CancelFunc
}

// open starts a generation and returns it with a context that is cancelled
// by the next open or close. The context does not inherit cancellation from
// parent; Connect contexts are request scoped while connections outlive
// them.
func (c *conn) open(parent context.Context, cb binding.Callback) (uint64, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	c.gen++
	c.cb, c.cancel = cb, cancel
	return c.gen, ctx
}

// close ends the current generation and waits for in-flight deliveries.
func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.cb = nil
}

// deliver calls the callback of generation gen, if it is still current.
func (c *conn) deliver(gen uint64, r binding.Result) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if gen != c.gen || c.cb == nil {
		return false
	}
	c.cb(r)
	return true
}

func success(data any) binding.Result {
	return binding.Result{Status: binding.StatusSuccess, Data: data}
}

func failure(err error) binding.Result {
	return binding.Result{Status: binding.StatusFailed, Data: map[string]any{"error": err.Error()}}
}
