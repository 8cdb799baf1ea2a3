package jsruntime

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dop251/goja"
	jsonitor "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// DefaultSwipeDuration is used by device.swipe when no duration is given.
const DefaultSwipeDuration = 500 * time.Millisecond

// Device is the part of *wda.Client a script can drive.
type Device interface {
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, fromX, fromY, toX, toY int, d time.Duration) error
	Press(ctx context.Context, key wda.Keycode) error
	SendKeys(ctx context.Context, text string) error
	WindowSize(ctx context.Context) (wda.Size, error)
	PerformActions(ctx context.Context, seqs ...actions.Sequence) error
}

var _ Device = (*wda.Client)(nil)

// deviceBinding exposes a Device to the VM as the "device" argument. The
// first device error is kept so Run can return it with its kind intact.
type deviceBinding struct {
	ctx    context.Context
	vm     *goja.Runtime
	device Device

	mu  sync.Mutex
	err error
}

func (b *deviceBinding) object() *goja.Object {
	obj := b.vm.NewObject()
	_ = obj.Set("tap", b.tap)
	_ = obj.Set("swipe", b.swipe)
	_ = obj.Set("press", b.press)
	_ = obj.Set("sendKeys", b.sendKeys)
	_ = obj.Set("windowSize", b.windowSize)
	_ = obj.Set("perform", b.perform)
	_ = obj.Set("sleep", b.sleep)
	return obj
}

// fail records err and throws it into the script.
func (b *deviceBinding) fail(method string, err error) {
	log.Ctx(b.ctx).Error().Err(err).Str("method", method).Msg("device call failed")
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	panic(b.vm.NewGoError(err))
}

func (b *deviceBinding) firstError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *deviceBinding) argError(msg string) {
	panic(b.vm.NewTypeError(msg))
}

func (b *deviceBinding) ints(call goja.FunctionCall, method string, n int) []int {
	if len(call.Arguments) < n {
		b.argError(method + ": expected " + strconv.Itoa(n) + " numeric arguments")
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(call.Argument(i).ToInteger())
	}
	return out
}

func (b *deviceBinding) tap(call goja.FunctionCall) goja.Value {
	xy := b.ints(call, "tap", 2)
	if err := b.device.Tap(b.ctx, xy[0], xy[1]); err != nil {
		b.fail("tap", err)
	}
	return goja.Undefined()
}

// swipe(fromX, fromY, toX, toY[, durationMs])
func (b *deviceBinding) swipe(call goja.FunctionCall) goja.Value {
	p := b.ints(call, "swipe", 4)
	d := DefaultSwipeDuration
	if len(call.Arguments) > 4 {
		d = time.Duration(call.Argument(4).ToInteger()) * time.Millisecond
	}
	if err := b.device.Swipe(b.ctx, p[0], p[1], p[2], p[3], d); err != nil {
		b.fail("swipe", err)
	}
	return goja.Undefined()
}

func (b *deviceBinding) press(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		b.argError("press: expected a button name")
	}
	if err := b.device.Press(b.ctx, wda.Keycode(call.Argument(0).String())); err != nil {
		b.fail("press", err)
	}
	return goja.Undefined()
}

func (b *deviceBinding) sendKeys(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		b.argError("sendKeys: expected text")
	}
	if err := b.device.SendKeys(b.ctx, call.Argument(0).String()); err != nil {
		b.fail("sendKeys", err)
	}
	return goja.Undefined()
}

func (b *deviceBinding) windowSize(call goja.FunctionCall) goja.Value {
	size, err := b.device.WindowSize(b.ctx)
	if err != nil {
		b.fail("windowSize", err)
	}
	return b.vm.ToValue(map[string]any{
		"width":  size.Width,
		"height": size.Height,
	})
}

// perform takes an array of input sources in wire form.
func (b *deviceBinding) perform(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		b.argError("perform: expected an array of input sources")
	}
	data, err := json.Marshal(call.Argument(0).Export())
	if err != nil {
		b.argError("perform: " + err.Error())
	}
	var seqs []actions.Sequence
	if err := json.Unmarshal(data, &seqs); err != nil {
		b.argError("perform: " + err.Error())
	}
	if err := b.device.PerformActions(b.ctx, seqs...); err != nil {
		b.fail("perform", err)
	}
	return goja.Undefined()
}

// sleep(ms) pauses the script. It returns early when the run is cancelled.
func (b *deviceBinding) sleep(call goja.FunctionCall) goja.Value {
	d := time.Duration(call.Argument(0).ToInteger()) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-b.ctx.Done():
		b.fail("sleep", b.ctx.Err())
	}
	return goja.Undefined()
}
