package script

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/types"
)

func success(data any) binding.Result {
	return binding.Result{Status: binding.StatusSuccess, Data: data}
}

func TestHook_PassthroughWithoutTransform(t *testing.T) {
	var h *Hook
	r := h.Apply(success(7), nil)
	assert.Equal(t, 7, r.AfterData)
	assert.Equal(t, binding.StatusSuccess, r.Status)

	r = New(nil).Apply(binding.Result{Status: binding.StatusFailed, Data: "x"}, nil)
	assert.Equal(t, "x", r.AfterData)
	assert.Equal(t, binding.StatusFailed, r.Status)
}

func TestHook_TransformSuccess(t *testing.T) {
	h := New(func(data any, props map[string]any) (any, error) {
		return data.(int) * props["base"].(map[string]any)["factor"].(int), nil
	})
	r := h.Apply(success(3), map[string]any{"base": map[string]any{"factor": 4}})
	assert.Equal(t, binding.StatusSuccess, r.Status)
	assert.Equal(t, 3, r.Data)
	assert.Equal(t, 12, r.AfterData)
}

func TestHook_TransformErrorForcesFailed(t *testing.T) {
	h := New(func(any, map[string]any) (any, error) { return nil, errors.New("bad") })
	r := h.Apply(binding.Result{Status: binding.StatusSuccess, Data: 1, AfterData: "stale"}, nil)
	assert.Equal(t, binding.StatusFailed, r.Status)
	assert.Nil(t, r.AfterData)
}

func TestHook_TransformPanicForcesFailed(t *testing.T) {
	h := New(func(any, map[string]any) (any, error) { panic("kaboom") })
	r := h.Apply(success(1), nil)
	assert.Equal(t, binding.StatusFailed, r.Status)
	assert.Nil(t, r.AfterData)
}

func TestHook_FailedInputNeverInvokesTransform(t *testing.T) {
	called := false
	h := New(func(any, map[string]any) (any, error) { called = true; return nil, nil })
	in := binding.Result{Status: binding.StatusFailed, Data: "err"}
	r := h.Apply(in, nil)
	assert.False(t, called)
	assert.Equal(t, in, r)
}

func TestHook_PropsAreCopied(t *testing.T) {
	props := map[string]any{"base": map[string]any{"k": 1}}
	h := New(func(_ any, p map[string]any) (any, error) {
		p["base"].(map[string]any)["k"] = 2
		return nil, nil
	})
	h.Apply(success(nil), props)
	assert.Equal(t, 1, props["base"].(map[string]any)["k"])
}

func TestCompileJS(t *testing.T) {
	h, err := CompileJS(`function afterCallback(data, props) {
		return { total: data.items.length, title: props.base.title };
	}`)
	require.NoError(t, err)

	r := h.Apply(success(map[string]any{"items": []any{1, 2, 3}}), map[string]any{
		"base": map[string]any{"title": "Sales"},
	})
	require.Equal(t, binding.StatusSuccess, r.Status)
	out, ok := r.AfterData.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, out["total"])
	assert.Equal(t, "Sales", out["title"])

	assert.Equal(t, &types.ScriptRecord{Type: "js", Code: h.Record().Code}, h.Record())
}

func TestCompileJS_ThrowForcesFailed(t *testing.T) {
	h, err := CompileJS(`function afterCallback() { throw new Error("nope") }`)
	require.NoError(t, err)
	r := h.Apply(success(1), nil)
	assert.Equal(t, binding.StatusFailed, r.Status)
	assert.Nil(t, r.AfterData)
}

func TestCompileJS_Timeout(t *testing.T) {
	h, err := CompileJS(`function afterCallback() { for (;;) {} }`, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	r := h.Apply(success(1), nil)
	assert.Equal(t, binding.StatusFailed, r.Status)

	// The runtime is usable again after an interrupt.
	h2, err := CompileJS(`function afterCallback(d) { return d + 1 }`, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.EqualValues(t, 2, h2.Apply(success(1), nil).AfterData)
}

func TestCompile_Errors(t *testing.T) {
	_, err := CompileJS(`var x = 1;`)
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	_, err = CompileJS(`var afterCallback = 3;`)
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	_, err = CompileJS(`function (`)
	assert.Error(t, err)

	_, err = Compile(types.ScriptRecord{Type: "lua", Code: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)

	h, err := Compile(types.ScriptRecord{})
	require.NoError(t, err)
	assert.Equal(t, "js", h.Record().Type)
	assert.Equal(t, 5, h.Apply(success(5), nil).AfterData)
}

func TestHook_CloneRecompiles(t *testing.T) {
	h, err := CompileJS(`var n = 0; function afterCallback() { n++; return n }`)
	require.NoError(t, err)
	h.Apply(success(nil), nil)
	h.Apply(success(nil), nil)

	c, err := h.Clone()
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.Apply(success(nil), nil).AfterData)
	assert.EqualValues(t, 3, h.Apply(success(nil), nil).AfterData)
}
