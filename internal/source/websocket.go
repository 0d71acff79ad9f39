package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/binding"
)

// WebSocketOptions is the persisted configuration of a websocket source.
type WebSocketOptions struct {
	URL string `json:"url"`
}

// WebSocket delivers every JSON frame read from a websocket as a
// successful result.
type WebSocket struct {
	opts WebSocketOptions
	log  *zap.Logger
	c    conn

	mu sync.Mutex
	ws *websocket.Conn
}

var (
	_ binding.Connector = (*WebSocket)(nil)
	_ binding.Closer    = (*WebSocket)(nil)
	_ binding.Describer = (*WebSocket)(nil)
	_ binding.Cloner    = (*WebSocket)(nil)
)

// NewWebSocket returns an unconnected source.
func NewWebSocket(opts WebSocketOptions, log *zap.Logger) (*WebSocket, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("source: websocket: url is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocket{opts: opts, log: log}, nil
}

// Connect dials synchronously so dial failures reach the caller, then reads
// in the background.
func (s *WebSocket) Connect(ctx context.Context, cb binding.Callback) error {
	gen, runCtx := s.c.open(ctx, cb)
	ws, _, err := websocket.Dial(ctx, s.opts.URL, nil)
	if err != nil {
		s.c.close()
		return fmt.Errorf("source: websocket dial %s: %w", s.opts.URL, err)
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	go s.read(runCtx, gen, ws)
	return nil
}

func (s *WebSocket) read(ctx context.Context, gen uint64, ws *websocket.Conn) {
	defer ws.CloseNow()
	for {
		var v any
		if err := wsjson.Read(ctx, ws, &v); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.log.Warn("websocket source read failed", zap.String("url", s.opts.URL), zap.Error(err))
			s.c.deliver(gen, failure(err))
			return
		}
		if !s.c.deliver(gen, success(v)) {
			return
		}
	}
}

func (s *WebSocket) Close() error {
	s.c.close()
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	s.mu.Unlock()
	if ws == nil {
		return nil
	}
	if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		s.log.Debug("websocket source close", zap.Error(err))
	}
	return nil
}

func (s *WebSocket) Options() any {
	return map[string]any{"url": s.opts.URL}
}

func (s *WebSocket) CloneSource() any {
	return &WebSocket{opts: s.opts, log: s.log}
}
