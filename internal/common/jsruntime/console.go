package jsruntime

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

func bindConsole(ctx context.Context, vm *goja.Runtime) {
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		log.Ctx(ctx).Info().Str("source", "script").Msg(format(call))
		return goja.Undefined()
	})
	_ = console.Set("error", func(call goja.FunctionCall) goja.Value {
		log.Ctx(ctx).Error().Str("source", "script").Msg(format(call))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
}

func format(call goja.FunctionCall) string {
	args := make([]any, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.Export()
	}
	return fmt.Sprintf("%v", args)
}
