package source

import (
	"context"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
)

// Static delivers a fixed payload once per connect.
type Static struct {
	Data any
	c    conn
}

var (
	_ binding.Connector = (*Static)(nil)
	_ binding.Closer    = (*Static)(nil)
	_ binding.Describer = (*Static)(nil)
	_ binding.Cloner    = (*Static)(nil)
)

// NewStatic returns a source serving data.
func NewStatic(data any) *Static {
	return &Static{Data: data}
}

// Connect delivers the payload asynchronously.
func (s *Static) Connect(ctx context.Context, cb binding.Callback) error {
	gen, _ := s.c.open(ctx, cb)
	data := form.CloneValue(s.Data)
	go s.c.deliver(gen, success(data))
	return nil
}

func (s *Static) Close() error {
	s.c.close()
	return nil
}

func (s *Static) Options() any {
	return map[string]any{"data": form.CloneValue(s.Data)}
}

func (s *Static) CloneSource() any {
	return NewStatic(form.CloneValue(s.Data))
}
