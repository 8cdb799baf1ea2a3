// Package jsruntime runs gesture scripts. A script is a JavaScript function
// taking a device and an argument object:
//
//	function(device, args) {
//	  var size = device.windowSize();
//	  device.tap(size.width / 2, size.height / 2);
//	  device.sleep(200);
//	  return { tapped: true };
//	}
package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/tansive/wdaclient/internal/common/apperrors"
)

// DefaultTimeout bounds a run when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// JSFunction is a compiled script. The program is compiled once and loaded
// into a fresh VM on every Run.
type JSFunction struct {
	program *goja.Program
}

// Options for controlling execution
type Options struct {
	Timeout time.Duration // max execution time
}

// New compiles a JSFunction from a JS function source string.
func New(_ context.Context, jsCode string) (*JSFunction, apperrors.Error) {
	if strings.TrimSpace(jsCode) == "" {
		return nil, ErrInvalidJSFunction.Msg("script is empty")
	}
	prog, err := goja.Compile("script", fmt.Sprintf("(%s)", jsCode), false)
	if err != nil {
		return nil, ErrInvalidJSFunction.Err(err)
	}
	if _, lerr := load(goja.New(), prog); lerr != nil {
		return nil, lerr
	}
	return &JSFunction{program: prog}, nil
}

func load(vm *goja.Runtime, prog *goja.Program) (goja.Callable, apperrors.Error) {
	v, err := vm.RunProgram(prog)
	if err != nil {
		return nil, ErrInvalidJSFunction.Err(err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, ErrInvalidJSFunction.Msg("script is not a function")
	}
	return fn, nil
}

// Run calls the function with device and args and returns its exported
// result. The run is interrupted when the timeout expires or ctx is done.
func (j *JSFunction) Run(ctx context.Context, device Device, args map[string]any, opts Options) (any, apperrors.Error) {
	if device == nil {
		return nil, ErrJSExecutionError.Msg("device is nil")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// New VM per run to isolate memory
	vm := goja.New()
	bindConsole(ctx, vm)
	fn, lerr := load(vm, j.program)
	if lerr != nil {
		return nil, lerr
	}
	binding := &deviceBinding{ctx: ctx, vm: vm, device: device}

	done := make(chan struct{})
	var result goja.Value
	var callErr error
	go func() {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("panic: %v", r)
			}
			close(done)
		}()
		result, callErr = fn(goja.Undefined(), binding.object(), vm.ToValue(args))
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		<-done
		return nil, ErrJSRuntimeTimeout.Err(ctx.Err())
	case <-done:
	}

	if callErr != nil {
		var interrupted *goja.InterruptedError
		if errors.As(callErr, &interrupted) || ctx.Err() != nil {
			return nil, ErrJSRuntimeTimeout.Err(ctx.Err())
		}
		if derr := binding.firstError(); derr != nil {
			return nil, ErrDeviceCall.MsgErr("device call failed", derr)
		}
		var jsErr *goja.Exception
		if errors.As(callErr, &jsErr) {
			return nil, ErrJSRuntimeError.Msg(jsErr.Value().String())
		}
		return nil, ErrJSExecutionError.Err(callErr)
	}
	if result == nil {
		return nil, nil
	}
	return result.Export(), nil
}
