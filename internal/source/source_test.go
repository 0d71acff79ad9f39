package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/canvas/internal/binding"
)

func recv(t *testing.T, ch <-chan binding.Result) binding.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return binding.Result{}
	}
}

func TestConn_DropsStaleGenerations(t *testing.T) {
	var c conn
	var got []binding.Result
	gen, ctx := c.open(context.Background(), func(r binding.Result) { got = append(got, r) })

	assert.True(t, c.deliver(gen, success(1)))
	c.close()
	assert.Error(t, ctx.Err())
	assert.False(t, c.deliver(gen, success(2)))

	gen2, _ := c.open(context.Background(), func(r binding.Result) { got = append(got, r) })
	assert.False(t, c.deliver(gen, success(3)))
	assert.True(t, c.deliver(gen2, success(4)))
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[1].Data)
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string]any{"v": 1.0})
	ch := make(chan binding.Result, 1)
	require.NoError(t, s.Connect(context.Background(), func(r binding.Result) { ch <- r }))

	r := recv(t, ch)
	assert.Equal(t, binding.StatusSuccess, r.Status)
	assert.Equal(t, map[string]any{"v": 1.0}, r.Data)
	require.NoError(t, s.Close())
	assert.Equal(t, map[string]any{"data": map[string]any{"v": 1.0}}, s.Options())
}

func TestREST_FetchOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[1,2]}`))
	}))
	defer srv.Close()

	s, err := NewREST(RESTOptions{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}}, srv.Client(), nil)
	require.NoError(t, err)
	ch := make(chan binding.Result, 1)
	require.NoError(t, s.Connect(context.Background(), func(r binding.Result) { ch <- r }))

	r := recv(t, ch)
	assert.Equal(t, binding.StatusSuccess, r.Status)
	assert.Equal(t, map[string]any{"rows": []any{1.0, 2.0}}, r.Data)
	require.NoError(t, s.Close())
}

func TestREST_HTTPErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewREST(RESTOptions{URL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	ch := make(chan binding.Result, 1)
	require.NoError(t, s.Connect(context.Background(), func(r binding.Result) { ch <- r }))

	r := recv(t, ch)
	assert.Equal(t, binding.StatusFailed, r.Status)
	assert.Contains(t, r.Data.(map[string]any)["error"], "500")
}

func TestREST_PollsUntilClosed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Write([]byte(strings.Repeat("1", int(n))))
	}))
	defer srv.Close()

	s, err := NewREST(RESTOptions{URL: srv.URL, IntervalMS: 10}, srv.Client(), nil)
	require.NoError(t, err)
	var delivered atomic.Int32
	require.NoError(t, s.Connect(context.Background(), func(binding.Result) { delivered.Add(1) }))

	require.Eventually(t, func() bool { return delivered.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	after := delivered.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, delivered.Load())
}

func TestREST_ReplacedSourceNeverReachesSink(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte(`"from-a"`))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"from-b"`))
	}))
	defer fast.Close()

	a, err := NewREST(RESTOptions{URL: slow.URL}, nil, nil)
	require.NoError(t, err)
	b, err := NewREST(RESTOptions{URL: fast.URL}, nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []any
	bind := binding.New(nil)
	ctx := context.Background()
	require.NoError(t, bind.RegisterDelivery(ctx, func(r binding.Result) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r.Data)
	}))
	require.NoError(t, bind.SetSource(ctx, TypeREST, a))
	require.NoError(t, bind.SetSource(ctx, TypeREST, b))
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{"from-b"}, got)
}

func TestWebSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		wsjson.Write(ctx, c, map[string]any{"tick": 1})
		wsjson.Write(ctx, c, map[string]any{"tick": 2})
		c.Read(ctx)
	}))
	defer srv.Close()

	s, err := NewWebSocket(WebSocketOptions{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	require.NoError(t, err)
	ch := make(chan binding.Result, 4)
	require.NoError(t, s.Connect(context.Background(), func(r binding.Result) { ch <- r }))

	assert.Equal(t, map[string]any{"tick": 1.0}, recv(t, ch).Data)
	assert.Equal(t, map[string]any{"tick": 2.0}, recv(t, ch).Data)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestWebSocket_DialErrorPropagates(t *testing.T) {
	s, err := NewWebSocket(WebSocketOptions{URL: "ws://127.0.0.1:1/none"}, nil)
	require.NoError(t, err)
	assert.Error(t, s.Connect(context.Background(), func(binding.Result) {}))
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.Equal(t, []string{TypeREST, TypeStatic, TypeWebSocket}, r.Types())

	src, err := r.Build(TypeREST, map[string]any{"url": "http://x.test/api", "method": "post", "interval": 1000.0})
	require.NoError(t, err)
	rest := src.(*REST)
	assert.Equal(t, http.MethodPost, rest.opts.Method)
	assert.Equal(t, 1000, rest.opts.IntervalMS)
	assert.Equal(t, map[string]any{"url": "http://x.test/api", "method": "POST", "interval": 1000}, rest.Options())

	src, err = r.Build(TypeStatic, map[string]any{"data": []any{1.0}})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, src.(*Static).Data)

	_, err = r.Build(TypeREST, map[string]any{})
	assert.Error(t, err)
	_, err = r.Build("mqtt", nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}
