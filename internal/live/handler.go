// Package live serves interactive previews of stored documents over
// WebSocket. Each connection rebuilds the document's component tree,
// connects every data binding, and streams deliveries to the client while
// it edits properties and styles.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/event"
	"github.com/matthewbaird/canvas/internal/store"
)

const (
	// DefaultOutboundBuffer is the number of server messages queued per
	// connection before data deliveries are dropped.
	DefaultOutboundBuffer = 64
	writeTimeout          = 5 * time.Second
)

// Config holds the dependencies of a Handler.
type Config struct {
	Store    store.Store
	Kinds    component.KindResolver
	Sources  component.SourceResolver
	Sessions *Manager
	Bus      event.Publisher
	Logger   *zap.Logger
	// IdleTimeout closes connections that send nothing for this long.
	// Zero disables it.
	IdleTimeout    time.Duration
	OutboundBuffer int
}

// Handler manages live preview connections.
type Handler struct {
	cfg Config
	log *zap.Logger
}

// NewHandler creates a live preview handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Sessions == nil {
		cfg.Sessions = NewManager()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OutboundBuffer < 1 {
		cfg.OutboundBuffer = DefaultOutboundBuffer
	}
	return &Handler{cfg: cfg, log: cfg.Logger.Named("live")}
}

// Sessions returns the session manager.
func (h *Handler) Sessions() *Manager { return h.cfg.Sessions }

// Open loads document id and rebuilds its tree. The returned session is
// registered but its bindings are not connected until Run.
func (h *Handler) Open(ctx context.Context, id string) (*Session, error) {
	doc, err := h.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dec := component.Decoder{Kinds: h.cfg.Kinds, Sources: h.cfg.Sources, Logger: h.cfg.Logger}
	roots := make([]*component.Node, 0, len(doc.Components))
	for i, rec := range doc.Components {
		n, err := dec.Decode(ctx, rec)
		if err != nil {
			for _, r := range roots {
				_ = r.Destroy()
			}
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		roots = append(roots, n)
	}
	return h.cfg.Sessions.Create(doc, roots), nil
}

// conn is one accepted connection and its outbound queue.
type conn struct {
	ws   *websocket.Conn
	sess *Session
	out  chan ServerMessage
	log  *zap.Logger
}

// Run upgrades to WebSocket and serves sess until the client disconnects.
// The session is closed and unregistered on return.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request, sess *Session) {
	defer h.release(sess)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{
		ws:   ws,
		sess: sess,
		out:  make(chan ServerMessage, h.cfg.OutboundBuffer),
		log:  h.log.With(zap.String("session", sess.ID), zap.String("document", sess.DocumentID)),
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	c.send(ctx, ServerMessage{Type: MsgSession, Data: SessionData{
		SessionID:  sess.ID,
		DocumentID: sess.DocumentID,
		Name:       sess.Name(),
		Nodes:      nodeInfos(sess),
	}})
	h.connect(ctx, c)
	c.log.Info("session opened")

	h.readLoop(ctx, c)
	cancel()
	<-writerDone
}

func (h *Handler) release(sess *Session) {
	if err := sess.Close(); err != nil {
		h.log.Warn("closing session", zap.String("session", sess.ID), zap.Error(err))
	}
	h.cfg.Sessions.Remove(sess.ID)
}

// connect wires observers and delivery callbacks on every node. Nodes
// without a source stay disconnected.
func (h *Handler) connect(ctx context.Context, c *conn) {
	c.sess.Walk(func(n *component.Node, _ int) {
		node := n
		id := node.ID()
		node.SetPropertyObserver(func(path []string, value any) {
			h.publish(ctx, event.NewPropertyChanged(c.sess.DocumentID, id, path, value).WithSession(c.sess.ID))
		})
		node.SetStyleObserver(func(path []string, value any) {
			h.publish(ctx, event.NewStyleChanged(c.sess.DocumentID, id, path, value).WithSession(c.sess.ID))
		})
		err := node.SetDeliveryCallback(ctx, func(res binding.Result) {
			h.publish(ctx, event.NewDataDelivered(c.sess.DocumentID, id, string(res.Status)).WithSession(c.sess.ID))
			c.push(ServerMessage{Type: MsgData, Data: DataMessage{
				NodeID:    id,
				Status:    res.Status,
				Data:      res.Data,
				AfterData: res.AfterData,
				Origin:    res.Origin,
			}})
		})
		if err != nil {
			c.log.Warn("connecting source", zap.String("node", id), zap.Error(err))
			c.push(ServerMessage{Type: MsgData, Data: DataMessage{
				NodeID: id,
				Status: binding.StatusFailed,
				Data:   map[string]any{"error": err.Error()},
			}})
		}
	})
}

func (h *Handler) publish(ctx context.Context, ch event.Change) {
	if h.cfg.Bus != nil {
		h.cfg.Bus.Publish(ctx, ch)
	}
}

func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		var msg ClientMessage
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if h.cfg.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, h.cfg.IdleTimeout)
		}
		err := wsjson.Read(readCtx, c.ws, &msg)
		cancel()
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				c.log.Info("connection closed", zap.Int("status", int(websocket.CloseStatus(err))))
			case errors.Is(err, context.DeadlineExceeded):
				c.log.Info("connection idle")
			default:
				c.log.Debug("read", zap.Error(err))
			}
			return
		}
		c.sess.Touch()

		switch msg.Type {
		case MsgChangeProperty:
			h.handleChange(ctx, c, msg, false)
		case MsgChangeStyle:
			h.handleChange(ctx, c, msg, true)
		case MsgDemo:
			h.handleDemo(ctx, c, msg)
		case MsgForm:
			h.handleForm(ctx, c, msg)
		case MsgTree:
			c.send(ctx, ServerMessage{Type: MsgTree, RequestID: msg.ID, Data: nodeInfos(c.sess)})
		case MsgSave:
			h.handleSave(ctx, c, msg)
		case MsgPing:
			c.send(ctx, ServerMessage{Type: MsgPong, RequestID: msg.ID})
		default:
			c.sendError(ctx, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleChange(ctx context.Context, c *conn, msg ClientMessage, style bool) {
	var data ChangeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		c.sendError(ctx, msg.ID, "invalid_data", "invalid change data")
		return
	}
	if len(data.Path) == 0 {
		c.sendError(ctx, msg.ID, "invalid_data", "empty path")
		return
	}
	n := c.sess.Find(data.NodeID)
	if n == nil {
		c.sendError(ctx, msg.ID, "not_found", fmt.Sprintf("node %q not found", data.NodeID))
		return
	}

	ack := AckData{NodeID: data.NodeID}
	if style {
		ack.Matched = n.ChangeStyle(data.Path, data.Value)
		ack.Values = n.StyleValues()
	} else {
		ack.Matched = n.ChangeProperty(data.Path, data.Value)
		ack.Values = n.PropertyValues()
	}
	c.send(ctx, ServerMessage{Type: MsgAck, RequestID: msg.ID, Data: ack})
}

func (h *Handler) handleDemo(ctx context.Context, c *conn, msg ClientMessage) {
	n, ok := c.node(ctx, msg)
	if !ok {
		return
	}
	if n.LoadDemoData() == nil {
		c.sendError(ctx, msg.ID, "no_sink", "node has no delivery callback")
		return
	}
	c.send(ctx, ServerMessage{Type: MsgAck, RequestID: msg.ID, Data: AckData{NodeID: n.ID(), Matched: true}})
}

func (h *Handler) handleForm(ctx context.Context, c *conn, msg ClientMessage) {
	n, ok := c.node(ctx, msg)
	if !ok {
		return
	}
	c.send(ctx, ServerMessage{Type: MsgForm, RequestID: msg.ID, Data: FormData{
		NodeID:     n.ID(),
		Properties: n.PropertyForm(),
		Style:      n.StyleForm(),
	}})
}

func (h *Handler) handleSave(ctx context.Context, c *conn, msg ClientMessage) {
	saved, err := h.cfg.Store.Save(ctx, c.sess.Snapshot())
	if err != nil {
		c.log.Warn("saving document", zap.Error(err))
		c.sendError(ctx, msg.ID, "save_failed", err.Error())
		return
	}
	c.sess.Saved(saved)
	h.publish(ctx, event.NewDocumentSaved(saved.ID, saved.Summary().ComponentCount).WithSession(c.sess.ID))
	c.send(ctx, ServerMessage{Type: MsgSaved, RequestID: msg.ID, Data: SavedData{
		DocumentID: saved.ID,
		UpdatedAt:  saved.UpdatedAt,
	}})
}

func (c *conn) node(ctx context.Context, msg ClientMessage) (*component.Node, bool) {
	var ref NodeRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil {
		c.sendError(ctx, msg.ID, "invalid_data", "invalid node reference")
		return nil, false
	}
	n := c.sess.Find(ref.NodeID)
	if n == nil {
		c.sendError(ctx, msg.ID, "not_found", fmt.Sprintf("node %q not found", ref.NodeID))
		return nil, false
	}
	return n, true
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, msg)
			cancel()
			if err != nil {
				c.log.Debug("write error", zap.Error(err))
				return
			}
		}
	}
}

// send queues a reply, waiting for room in the queue.
func (c *conn) send(ctx context.Context, msg ServerMessage) {
	select {
	case c.out <- msg:
	case <-ctx.Done():
	}
}

// push queues a delivery without blocking; binding callbacks run on source
// goroutines and must not stall them.
func (c *conn) push(msg ServerMessage) {
	select {
	case c.out <- msg:
	default:
		c.log.Warn("outbound queue full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *conn) sendError(ctx context.Context, requestID, code, message string) {
	c.send(ctx, ServerMessage{
		Type:      MsgError,
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}

func nodeInfos(s *Session) []NodeInfo {
	var out []NodeInfo
	s.Walk(func(n *component.Node, depth int) {
		info := NodeInfo{
			ID:     n.ID(),
			Kind:   n.Kind().Name,
			Name:   n.Name(),
			Depth:  depth,
			Source: n.Binding().SourceType(),
		}
		if p := n.Parent(); p != nil {
			info.Parent = p.ID()
		}
		out = append(out, info)
	})
	return out
}
