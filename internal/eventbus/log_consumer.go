package eventbus

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/event"
)

// LogConsumer logs every change event at debug level.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(log *zap.Logger) *LogConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogConsumer{log: log.Named("change")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, ch event.Change) error {
	fields := []zap.Field{
		zap.String("type", string(ch.Type)),
		zap.String("document", ch.DocumentID),
	}
	if ch.NodeID != "" {
		fields = append(fields, zap.String("node", ch.NodeID))
	}
	if len(ch.Path) > 0 {
		fields = append(fields, zap.String("path", strings.Join(ch.Path, ".")))
	}
	if ch.Session != "" {
		fields = append(fields, zap.String("session", ch.Session))
	}
	c.log.Debug("change", fields...)
	return nil
}
