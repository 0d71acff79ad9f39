package component

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/script"
)

func chartKind() *Kind {
	return &Kind{
		Name:   "bar-chart",
		Group:  "chart",
		Width:  400,
		Height: 300,
		PropertySchema: form.Schema{
			{Key: "title", Label: "Title", Fields: []*form.Field{
				{Key: "text", Label: "Text", Kind: form.KindText, Value: "Chart"},
				{Key: "size", Label: "Size", Kind: form.KindNumber, Value: 14.0},
			}},
			{Key: "series", Label: "Series", Fields: []*form.Field{
				{Key: "stacked", Label: "Stacked", Kind: form.KindSwitch, Value: false},
			}},
		},
		StyleSchema: form.Schema{
			{Key: "look", Label: "Look", Fields: []*form.Field{
				{Key: "background", Label: "Background", Kind: form.KindColor, Value: "#fff"},
			}},
		},
		ExampleData: []any{1.0, 2.0, 3.0},
	}
}

func groupKind() *Kind {
	return &Kind{Name: "group"}
}

type testSource struct {
	mu       sync.Mutex
	cb       binding.Callback
	closed   bool
	connects int
	closes   int
	opts     map[string]any
}

func (s *testSource) Connect(_ context.Context, cb binding.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	s.cb, s.closed = cb, false
	return nil
}

func (s *testSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	return nil
}

func (s *testSource) Options() any { return s.opts }

func (s *testSource) CloneSource() any {
	return &testSource{opts: form.CloneValue(s.opts).(map[string]any)}
}

func (s *testSource) deliver(r binding.Result) {
	s.mu.Lock()
	cb, closed := s.cb, s.closed
	s.mu.Unlock()
	if cb != nil && !closed {
		cb(r)
	}
}

func TestNew_Defaults(t *testing.T) {
	n := New(chartKind())
	assert.NotEmpty(t, n.ID())
	assert.Equal(t, "bar-chart", n.Name())
	assert.Equal(t, Position{Width: 400, Height: 300}, n.Position())
	assert.True(t, n.Visible())

	sf := n.StyleForm()
	require.NotEmpty(t, sf)
	assert.Equal(t, form.GeometryGroup, sf[0].Key)

	bare := New(groupKind(), WithID("g1"), WithName("Group"))
	assert.Equal(t, "g1", bare.ID())
	assert.Equal(t, "Group", bare.Name())
	assert.Equal(t, float64(DefaultSize), bare.Position().Width)
	assert.Equal(t, float64(DefaultSize), bare.Position().Height)
}

func TestNew_DoesNotShareKindSchema(t *testing.T) {
	k := chartKind()
	a, b := New(k), New(k)
	a.ChangeProperty([]string{"title", "text"}, "A")

	assert.Equal(t, "Chart", b.PropertyValues()["title"].(map[string]any)["text"])
	f, _ := k.PropertySchema.Find([]string{"title", "text"})
	assert.Equal(t, "Chart", f.Value)
}

func TestChangeProperty_ReflectedAndCached(t *testing.T) {
	n := New(chartKind())

	v := n.PropertyValues()
	assert.Equal(t, "Chart", v["title"].(map[string]any)["text"])
	n.PropertyValues()
	props, _ := n.CacheStats()
	assert.Equal(t, 1, props)

	assert.True(t, n.ChangeProperty([]string{"title", "text"}, "Sales"))
	assert.True(t, n.ChangeProperty([]string{"title", "size"}, 18.0))
	v = n.PropertyValues()
	assert.Equal(t, "Sales", v["title"].(map[string]any)["text"])
	assert.Equal(t, 18.0, v["title"].(map[string]any)["size"])
	n.PropertyValues()
	props, _ = n.CacheStats()
	assert.Equal(t, 2, props)

	assert.False(t, n.ChangeProperty([]string{"title", "ghost"}, 1))
}

func TestChangeProperty_CommonNameRenames(t *testing.T) {
	n := New(chartKind())
	var observed [][]string
	n.SetPropertyObserver(func(path []string, _ any) { observed = append(observed, path) })

	assert.True(t, n.ChangeProperty([]string{CommonGroup, NameField}, "Revenue"))
	assert.Equal(t, "Revenue", n.Name())
	assert.Empty(t, observed)

	n.ChangeProperty([]string{"series", "stacked"}, true)
	assert.Equal(t, [][]string{{"series", "stacked"}}, observed)
}

func TestChangeStyle_RoundsGeometry(t *testing.T) {
	n := New(chartKind())
	var observed []any
	n.SetStyleObserver(func(_ []string, v any) { observed = append(observed, v) })

	assert.True(t, n.ChangeStyle([]string{form.GeometryGroup, "left"}, 3.7))
	assert.Equal(t, 4.0, n.Position().Left)
	assert.Equal(t, 4.0, n.StyleValues()["left"])
	assert.Equal(t, []any{4.0}, observed)

	assert.True(t, n.ChangeStyle([]string{"look", "background"}, "#000"))
	assert.Equal(t, "#000", n.StyleValues()["background"])

	assert.True(t, n.ChangeStyle([]string{form.GeometryGroup}, map[string]any{"top": 10.4, "width": "wide", "height": 50}))
	p := n.Position()
	assert.Equal(t, 10.0, p.Top)
	assert.Equal(t, 400.0, p.Width)
	assert.Equal(t, 50.0, p.Height)
	assert.Equal(t, 10.0, n.StyleValues()["top"])
}

func TestStyleValues_CachedBetweenWrites(t *testing.T) {
	n := New(chartKind())
	n.StyleValues()
	n.StyleValues()
	_, style := n.CacheStats()
	assert.Equal(t, 1, style)

	n.ChangeStyle([]string{"look", "background"}, "#111")
	n.StyleValues()
	n.StyleValues()
	_, style = n.CacheStats()
	assert.Equal(t, 2, style)
}

func TestStyleValues_Overlays(t *testing.T) {
	k := chartKind()
	k.ExtraStyle = map[string]any{"zIndex": 2.0}
	k.StyleSchema[0].Fields = append(k.StyleSchema[0].Fields, &form.Field{
		Key: "shadow", Kind: form.KindCustom, Value: "soft",
		Options: form.CustomOptions{ComponentType: "shadow-editor"},
	})
	k.StyleToCSS = func(custom map[string]any) map[string]any {
		if custom["shadow"] == "soft" {
			return map[string]any{"boxShadow": "0 1px 2px"}
		}
		return nil
	}
	n := New(k)

	v := n.StyleValues()
	assert.Equal(t, 2.0, v["zIndex"])
	assert.Equal(t, "0 1px 2px", v["boxShadow"])

	n.SetExtraStyle(map[string]any{"zIndex": 5.0})
	assert.Equal(t, 5.0, n.StyleValues()["zIndex"])
}

func TestPropertyForm_CommonGroup(t *testing.T) {
	n := New(chartKind(), WithID("n1"), WithName("Revenue"))
	pf := n.PropertyForm()
	require.Equal(t, CommonGroup, pf[0].Key)

	name, ok := pf.Find([]string{CommonGroup, NameField})
	require.True(t, ok)
	assert.Equal(t, "Revenue", name.Value)
	assert.True(t, name.Editable())

	id, _ := pf.Find([]string{CommonGroup, IDField})
	assert.Equal(t, "n1", id.Value)
	assert.False(t, id.Editable())

	kind, _ := pf.Find([]string{CommonGroup, KindField})
	assert.Equal(t, "bar-chart", kind.Value)
	assert.False(t, kind.Editable())

	// The live schema is not modified.
	_, ok = n.PropertyValues()[CommonGroup]
	assert.False(t, ok)
}

func TestNode_DeliveryThroughScript(t *testing.T) {
	ctx := context.Background()
	n := New(chartKind())
	n.ChangeProperty([]string{"title", "text"}, "Sales")

	h, err := script.CompileJS(`function afterCallback(data, props) {
		return props.title.text + ":" + data.length;
	}`)
	require.NoError(t, err)
	require.NoError(t, n.SetScript(ctx, h))

	src := &testSource{}
	require.NoError(t, n.SetDataConfig(ctx, "test", src))
	assert.Equal(t, 0, src.connects)

	got := make(chan binding.Result, 2)
	require.NoError(t, n.SetDeliveryCallback(ctx, func(r binding.Result) { got <- r }))
	assert.Equal(t, 1, src.connects)

	src.deliver(binding.Result{Status: binding.StatusSuccess, Data: []any{1, 2}})
	r := <-got
	assert.Equal(t, binding.StatusSuccess, r.Status)
	assert.Equal(t, "Sales:2", r.AfterData)

	src.deliver(binding.Result{Status: binding.StatusFailed, Data: "timeout"})
	r = <-got
	assert.Equal(t, binding.StatusFailed, r.Status)
	assert.Nil(t, r.AfterData)
}

func TestNode_LoadDemoData(t *testing.T) {
	ctx := context.Background()
	n := New(chartKind())
	got := make(chan binding.Result, 1)
	require.NoError(t, n.SetDeliveryCallback(ctx, func(r binding.Result) { got <- r }))

	require.NotNil(t, n.LoadDemoData())
	select {
	case r := <-got:
		assert.Equal(t, binding.OriginDemo, r.Origin)
		assert.Equal(t, []any{1.0, 2.0, 3.0}, r.AfterData)
	case <-time.After(2 * time.Second):
		t.Fatal("demo data not delivered")
	}
}

func TestNode_DestroyClosesSubtree(t *testing.T) {
	ctx := context.Background()
	root := New(groupKind())
	child := New(chartKind())
	grandchild := New(chartKind())
	require.NoError(t, child.AppendChild(grandchild))
	require.NoError(t, root.AppendChild(child))

	sources := []*testSource{{}, {}}
	for i, n := range []*Node{child, grandchild} {
		require.NoError(t, n.SetDeliveryCallback(ctx, func(binding.Result) {}))
		require.NoError(t, n.SetDataConfig(ctx, "test", sources[i]))
	}

	require.NoError(t, root.Destroy())
	for _, s := range sources {
		assert.Equal(t, 1, s.closes)
	}
	assert.True(t, grandchild.Destroyed())
	assert.Equal(t, binding.Disconnected, child.Binding().State())
	require.NoError(t, root.Destroy())
	assert.Equal(t, 1, sources[0].closes)
}
