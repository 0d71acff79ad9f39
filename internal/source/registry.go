package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownType is returned by Build for unregistered source types.
var ErrUnknownType = errors.New("source: unknown type")

// Built-in source types.
const (
	TypeStatic    = "static"
	TypeREST      = "rest"
	TypeWebSocket = "websocket"
)

// Factory builds a source from persisted request options.
type Factory func(options any) (any, error)

// Registry maps source types to factories. It implements
// component.SourceResolver.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the static, rest and websocket types
// registered. client is used by REST sources; nil selects the default.
func NewRegistry(client *http.Client, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("source")
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(TypeStatic, func(options any) (any, error) {
		var o struct {
			Data any `json:"data"`
		}
		if err := decodeOptions(options, &o); err != nil {
			return nil, err
		}
		return NewStatic(o.Data), nil
	})
	r.Register(TypeREST, func(options any) (any, error) {
		var o RESTOptions
		if err := decodeOptions(options, &o); err != nil {
			return nil, err
		}
		return NewREST(o, client, log)
	})
	r.Register(TypeWebSocket, func(options any) (any, error) {
		var o WebSocketOptions
		if err := decodeOptions(options, &o); err != nil {
			return nil, err
		}
		return NewWebSocket(o, log)
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build constructs an unconnected source.
func (r *Registry) Build(typ string, options any) (any, error) {
	r.mu.RLock()
	f, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typ)
	}
	src, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("source: build %s: %w", typ, err)
	}
	return src, nil
}

// decodeOptions maps loosely typed request options onto a struct through
// their JSON form.
func decodeOptions(options any, into any) error {
	if options == nil {
		return nil
	}
	b, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
