package jsruntime

import (
	"github.com/tansive/wdaclient/internal/common/apperrors"
)

var (
	ErrJSRuntime         = apperrors.New("jsruntime error")
	ErrJSRuntimeTimeout  = ErrJSRuntime.New("jsruntime timeout")
	ErrInvalidJSFunction = ErrJSRuntime.New("invalid javascript function")
	ErrJSRuntimeError    = ErrJSRuntime.New("script error")
	ErrJSExecutionError  = ErrJSRuntime.New("js execution error")

	// ErrDeviceCall wraps the error of a device method that the script did
	// not catch. The device error stays reachable with errors.Is.
	ErrDeviceCall = ErrJSRuntime.New("device call failed")
)
