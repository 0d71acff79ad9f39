package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// EntryPoint is the function a JavaScript transform must define.
const EntryPoint = "afterCallback"

type jsRuntime struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	fn      goja.Callable
	timeout time.Duration
}

func compileJS(code string, c config) (Transform, error) {
	prog, err := goja.Compile("script.js", code, false)
	if err != nil {
		return nil, fmt.Errorf("script: compile: %w", err)
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("script: evaluate: %w", err)
	}
	v := vm.Get(EntryPoint)
	if v == nil {
		return nil, ErrNoEntryPoint
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a function", ErrNoEntryPoint, EntryPoint)
	}
	rt := &jsRuntime{vm: vm, fn: fn, timeout: c.timeout}
	return rt.call, nil
}

// call serializes access to the runtime; goja runtimes are not safe for
// concurrent use.
func (rt *jsRuntime) call(data any, props map[string]any) (any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.timeout > 0 {
		timer := time.AfterFunc(rt.timeout, func() {
			rt.vm.Interrupt(fmt.Sprintf("timed out after %s", rt.timeout))
		})
		defer func() {
			timer.Stop()
			rt.vm.ClearInterrupt()
		}()
	}

	res, err := rt.fn(goja.Undefined(), rt.vm.ToValue(data), rt.vm.ToValue(props))
	if err != nil {
		return nil, fmt.Errorf("script: %s: %w", EntryPoint, err)
	}
	return res.Export(), nil
}
