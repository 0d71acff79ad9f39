package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/canvas/internal/event"
)

type recorder struct {
	mu  sync.Mutex
	got []event.Change
}

func (r *recorder) HandleEvent(_ context.Context, c event.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, c)
	return nil
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.got))
	for i, c := range r.got {
		out[i] = c.Type
	}
	return out
}

func TestBus_DispatchesInOrderAndDrainsOnStop(t *testing.T) {
	b := New(16, nil)
	rec := &recorder{}
	b.Subscribe("rec", rec)
	b.Start(context.Background())

	b.Publish(context.Background(), event.NewPropertyChanged("d", "n", []string{"axis", "title"}, "x"))
	b.Publish(context.Background(), event.NewStyleChanged("d", "n", []string{"position", "left"}, 4))
	b.Publish(context.Background(), event.NewDocumentSaved("d", 3))
	b.Stop()

	assert.Equal(t, []event.Type{event.PropertyChanged, event.StyleChanged, event.DocumentSaved}, rec.types())

	// Publishing after Stop must not panic.
	b.Publish(context.Background(), event.NewDocumentDeleted("d"))
	b.Stop()
	assert.Len(t, rec.types(), 3)
}

func TestBus_HandlerErrorIsLoggedAndOthersStillRun(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := New(4, zap.New(core))
	rec := &recorder{}
	b.Subscribe("failing", HandlerFunc(func(context.Context, event.Change) error {
		return errors.New("boom")
	}))
	b.Subscribe("rec", rec)
	b.Start(context.Background())

	b.Publish(context.Background(), event.NewDocumentSaved("d", 0))
	b.Stop()

	assert.Len(t, rec.types(), 1)
	entries := logs.FilterMessage("handler error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["handler"])
}

func TestBus_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := New(1, zap.New(core))

	// Not started: the first event fills the buffer.
	b.Publish(context.Background(), event.NewDocumentSaved("d", 0))
	b.Publish(context.Background(), event.NewDocumentSaved("d", 1))

	assert.Equal(t, 1, logs.FilterMessage("buffer full, dropping event").Len())
	b.Stop()
}

func TestBus_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := New(8, nil)
	rec := &recorder{}
	b.Subscribe("rec", rec)
	b.Start(ctx)

	b.Publish(ctx, event.NewDocumentSaved("d", 0))
	cancel()
	b.Stop()

	assert.Len(t, rec.types(), 1)
}

func TestLogConsumer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewLogConsumer(zap.New(core))

	ch := event.NewPropertyChanged("doc-1", "node-1", []string{"axis", "title"}, "x").WithSession("s1")
	require.NoError(t, c.HandleEvent(context.Background(), ch))

	all := logs.All()
	require.Len(t, all, 1)
	fields := all[0].ContextMap()
	assert.Equal(t, "property", fields["type"])
	assert.Equal(t, "doc-1", fields["document"])
	assert.Equal(t, "node-1", fields["node"])
	assert.Equal(t, "axis.title", fields["path"])
	assert.Equal(t, "s1", fields["session"])
}
