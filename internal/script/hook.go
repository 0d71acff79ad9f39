// Package script applies user transforms to fetched data before it reaches
// a component. A transform failure never escapes the hook: it turns the
// delivered result into a FAILED result with no payload.
package script

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/types"
)

// Transform maps a fetched payload to the payload the component renders.
// props is a private copy of the component's property values.
type Transform func(data any, props map[string]any) (any, error)

var (
	// ErrNoEntryPoint is returned when a script defines no afterCallback.
	ErrNoEntryPoint = errors.New("script: afterCallback is not defined")
	// ErrUnsupported is returned for script types other than JavaScript.
	ErrUnsupported = errors.New("script: unsupported type")
)

// DefaultTimeout bounds a single JavaScript transform call.
const DefaultTimeout = time.Second

// Option configures compiled hooks.
type Option func(*config)

type config struct {
	log     *zap.Logger
	timeout time.Duration
}

// WithLogger sets the logger used to report transform failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout bounds each JavaScript call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

func newConfig(opts []Option) config {
	c := config{log: zap.NewNop(), timeout: DefaultTimeout}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// Hook implements binding.Hook.
type Hook struct {
	record    *types.ScriptRecord
	transform Transform
	opts      []Option
	log       *zap.Logger
}

var _ binding.Hook = (*Hook)(nil)

// New wraps a Go transform. A nil transform yields a passthrough hook.
func New(t Transform, opts ...Option) *Hook {
	c := newConfig(opts)
	return &Hook{transform: t, opts: opts, log: c.log}
}

// Compile builds a hook from its persisted form. Empty code compiles to a
// passthrough hook that still persists its record.
func Compile(rec types.ScriptRecord, opts ...Option) (*Hook, error) {
	switch strings.ToLower(rec.Type) {
	case "", "js", "javascript":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, rec.Type)
	}
	h := New(nil, opts...)
	if strings.TrimSpace(rec.Code) != "" {
		t, err := compileJS(rec.Code, newConfig(opts))
		if err != nil {
			return nil, err
		}
		h.transform = t
	}
	if rec.Type == "" {
		rec.Type = "js"
	}
	h.record = &rec
	return h, nil
}

// CompileJS compiles a JavaScript program that defines
// afterCallback(data, props).
func CompileJS(code string, opts ...Option) (*Hook, error) {
	return Compile(types.ScriptRecord{Type: "js", Code: code}, opts...)
}

// Record returns the persisted form, or nil for hooks built with New.
func (h *Hook) Record() *types.ScriptRecord {
	if h == nil || h.record == nil {
		return nil
	}
	r := *h.record
	return &r
}

// Clone returns an independent hook. Compiled hooks are recompiled so the
// copy does not share a runtime.
func (h *Hook) Clone() (*Hook, error) {
	if h.record == nil {
		c := *h
		return &c, nil
	}
	return Compile(*h.record, h.opts...)
}

// Apply runs the transform on successful results. Without a transform the
// payload passes through as AfterData. FAILED input is returned untouched.
func (h *Hook) Apply(r binding.Result, props map[string]any) binding.Result {
	if h == nil || h.transform == nil {
		r.AfterData = r.Data
		return r
	}
	if !r.OK() {
		return r
	}
	out, err := h.run(r.Data, props)
	if err != nil {
		h.log.Warn("script transform failed", zap.Error(err))
		r.AfterData = nil
		r.Status = binding.StatusFailed
		return r
	}
	r.AfterData = out
	return r
}

func (h *Hook) run(data any, props map[string]any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("script: transform panicked: %v", p)
		}
	}()
	var cp map[string]any
	if props != nil {
		cp = form.CloneValue(props).(map[string]any)
	}
	return h.transform(form.CloneValue(data), cp)
}
