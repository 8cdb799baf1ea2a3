package actions

// GestureAction names a step of the flat gesture list.
type GestureAction string

const (
	GestureTap     GestureAction = "tap"
	GesturePress   GestureAction = "press"
	GestureMoveTo  GestureAction = "moveTo"
	GestureWait    GestureAction = "wait"
	GestureRelease GestureAction = "release"
)

// GestureOptions holds the optional arguments of a Gesture. Unset fields are
// not sent.
type GestureOptions struct {
	X       *int   `json:"x,omitempty"`
	Y       *int   `json:"y,omitempty"`
	Element string `json:"element,omitempty"`
	Count   *int   `json:"count,omitempty" validate:"omitempty,gte=1"`
	Ms      *int   `json:"ms,omitempty" validate:"omitempty,gte=0"`
}

// Gesture is one step of the older touch/perform encoding.
type Gesture struct {
	Action  GestureAction   `json:"action" validate:"required,oneof=tap press moveTo wait release"`
	Options *GestureOptions `json:"options,omitempty" validate:"omitempty"`
}

// Tap taps at (x, y).
func Tap(x, y int) Gesture {
	return Gesture{Action: GestureTap, Options: &GestureOptions{X: &x, Y: &y}}
}

// TapElement taps the element with the given id count times.
func TapElement(element string, count int) Gesture {
	return Gesture{Action: GestureTap, Options: &GestureOptions{Element: element, Count: &count}}
}

// Press presses at (x, y) without releasing.
func Press(x, y int) Gesture {
	return Gesture{Action: GesturePress, Options: &GestureOptions{X: &x, Y: &y}}
}

// MoveTo drags the pressed pointer to (x, y).
func MoveTo(x, y int) Gesture {
	return Gesture{Action: GestureMoveTo, Options: &GestureOptions{X: &x, Y: &y}}
}

// Wait holds the current state for ms milliseconds.
func Wait(ms int) Gesture {
	return Gesture{Action: GestureWait, Options: &GestureOptions{Ms: &ms}}
}

// Release lifts the pointer.
func Release() Gesture {
	return Gesture{Action: GestureRelease}
}
