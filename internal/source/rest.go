package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
)

// RESTOptions is the persisted configuration of a REST source.
type RESTOptions struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
	// IntervalMS polls at this period when positive; zero fetches once.
	IntervalMS int `json:"interval,omitempty"`
}

// REST fetches JSON over HTTP, once or on an interval.
type REST struct {
	opts   RESTOptions
	client *http.Client
	log    *zap.Logger
	c      conn
}

var (
	_ binding.Connector = (*REST)(nil)
	_ binding.Closer    = (*REST)(nil)
	_ binding.Describer = (*REST)(nil)
	_ binding.Cloner    = (*REST)(nil)
)

// NewREST validates opts and returns an unconnected source. A nil client
// uses http.DefaultClient.
func NewREST(opts RESTOptions, client *http.Client, log *zap.Logger) (*REST, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("source: rest: url is required")
	}
	opts.Method = strings.ToUpper(opts.Method)
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.IntervalMS < 0 {
		return nil, fmt.Errorf("source: rest: negative interval %d", opts.IntervalMS)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &REST{opts: opts, client: client, log: log}, nil
}

// Connect starts fetching in the background.
func (s *REST) Connect(ctx context.Context, cb binding.Callback) error {
	gen, runCtx := s.c.open(ctx, cb)
	go s.poll(runCtx, gen)
	return nil
}

func (s *REST) Close() error {
	s.c.close()
	return nil
}

func (s *REST) Options() any {
	out := map[string]any{"url": s.opts.URL, "method": s.opts.Method}
	if h := stringMap(s.opts.Headers); h != nil {
		out["headers"] = h
	}
	if s.opts.Body != nil {
		out["body"] = form.CloneValue(s.opts.Body)
	}
	if s.opts.IntervalMS > 0 {
		out["interval"] = s.opts.IntervalMS
	}
	return out
}

func (s *REST) CloneSource() any {
	o := s.opts
	o.Headers = make(map[string]string, len(s.opts.Headers))
	for k, v := range s.opts.Headers {
		o.Headers[k] = v
	}
	o.Body = form.CloneValue(s.opts.Body)
	return &REST{opts: o, client: s.client, log: s.log}
}

func (s *REST) poll(ctx context.Context, gen uint64) {
	if !s.fetch(ctx, gen) || s.opts.IntervalMS == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(s.opts.IntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.fetch(ctx, gen) {
				return
			}
		}
	}
}

// fetch performs one request and reports whether the connection is still
// current.
func (s *REST) fetch(ctx context.Context, gen uint64) bool {
	data, err := s.do(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.log.Warn("rest source fetch failed", zap.String("url", s.opts.URL), zap.Error(err))
		return s.c.deliver(gen, failure(err))
	}
	return s.c.deliver(gen, success(data))
}

func (s *REST) do(ctx context.Context) (any, error) {
	var body io.Reader
	if s.opts.Body != nil {
		b, err := json.Marshal(s.opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, s.opts.Method, s.opts.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s", s.opts.Method, s.opts.URL, resp.Status)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return data, nil
}

func stringMap(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
