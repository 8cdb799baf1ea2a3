// Package actions builds pointer and key input sequences in the wire format
// of the agent's /actions endpoint, plus the older flat gesture list accepted
// by /wda/touch/perform. Everything here is a value type; nothing performs I/O.
//
// A square drawn with one finger:
//
//	finger := actions.Pointer("finger1", []actions.PointerAction{
//		actions.Move(142, 240),
//		actions.Down(),
//		actions.Move(0, 100, actions.WithOrigin(actions.OriginPointer)),
//		actions.Move(100, 0, actions.WithOrigin(actions.OriginPointer)),
//		actions.Up(),
//	})
package actions

import (
	jsonitor "github.com/json-iterator/go"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// SourceType is the kind of input source a Sequence drives.
type SourceType string

const (
	SourcePointer SourceType = "pointer"
	SourceKey     SourceType = "key"
	SourceNull    SourceType = "null"
)

// PointerActionType is the primitive performed by a PointerAction.
type PointerActionType string

const (
	PointerMove PointerActionType = "pointerMove"
	PointerDown PointerActionType = "pointerDown"
	PointerUp   PointerActionType = "pointerUp"
	Pause       PointerActionType = "pause"
)

// KeyActionType is the primitive performed by a KeyAction.
type KeyActionType string

const (
	KeyDown KeyActionType = "keyDown"
	KeyUp   KeyActionType = "keyUp"
)

// PointerType is the physical device a pointer source emulates.
type PointerType string

const (
	PointerTouch PointerType = "touch"
	PointerMouse PointerType = "mouse"
	PointerPen   PointerType = "pen"
)

// Origin selects the coordinate frame of a pointerMove.
type Origin string

const (
	OriginViewport Origin = "viewport" // relative to the top left of the screen
	OriginPointer  Origin = "pointer"  // relative to the previous pointer position
)

// DefaultMoveDuration is the duration in milliseconds used by Move when none is given.
const DefaultMoveDuration = 100

// PointerAction is one step of a pointer source. Nil fields are not sent.
type PointerAction struct {
	Type     PointerActionType `json:"type" validate:"required,oneof=pointerMove pointerDown pointerUp pause"`
	Duration *int              `json:"duration,omitempty" validate:"omitempty,gte=0"`
	X        *int              `json:"x,omitempty"`
	Y        *int              `json:"y,omitempty"`
	Origin   Origin            `json:"origin,omitempty" validate:"omitempty,oneof=viewport pointer"`
	Button   *int              `json:"button,omitempty" validate:"omitempty,gte=0"`
}

// KeyAction is one step of a key source.
type KeyAction struct {
	Type  KeyActionType `json:"type" validate:"required,oneof=keyDown keyUp"`
	Value string        `json:"value" validate:"required"`
}

// Parameters carries the pointer type of a pointer source.
type Parameters struct {
	PointerType PointerType `json:"pointerType" validate:"required,oneof=touch mouse pen"`
}

// Sequence is the ordered list of steps for one input source. Steps of a
// single source are replayed in order; sources submitted together run
// concurrently on the agent.
//
// Only the step list matching Type is serialised, under the "actions" key.
type Sequence struct {
	Type           SourceType      `validate:"required,oneof=pointer key null"`
	ID             string          `validate:"required"`
	Parameters     *Parameters     `validate:"omitempty"`
	PointerActions []PointerAction `validate:"dive"`
	KeyActions     []KeyAction     `validate:"dive"`
}

type wireSequence struct {
	Type       SourceType          `json:"type"`
	ID         string              `json:"id"`
	Parameters *Parameters         `json:"parameters,omitempty"`
	Actions    jsonitor.RawMessage `json:"actions"`
}

// MarshalJSON implements json.Marshaler.
func (s Sequence) MarshalJSON() ([]byte, error) {
	var steps any
	switch s.Type {
	case SourcePointer:
		steps = s.PointerActions
		if s.PointerActions == nil {
			steps = []PointerAction{}
		}
	case SourceKey:
		steps = s.KeyActions
		if s.KeyActions == nil {
			steps = []KeyAction{}
		}
	default:
		steps = []struct{}{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireSequence{
		Type:       s.Type,
		ID:         s.ID,
		Parameters: s.Parameters,
		Actions:    raw,
	})
}

// UnmarshalJSON implements json.Unmarshaler. An unknown source type is kept
// with no steps and left for Validate to reject.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	var w wireSequence
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Sequence{
		Type:       w.Type,
		ID:         w.ID,
		Parameters: w.Parameters,
	}
	if len(w.Actions) == 0 || string(w.Actions) == "null" {
		return nil
	}
	switch w.Type {
	case SourcePointer:
		return json.Unmarshal(w.Actions, &s.PointerActions)
	case SourceKey:
		return json.Unmarshal(w.Actions, &s.KeyActions)
	default:
		return nil
	}
}

// MoveOption customises a Move step.
type MoveOption func(*PointerAction)

// WithDuration sets the move duration in milliseconds.
func WithDuration(ms int) MoveOption {
	return func(a *PointerAction) {
		a.Duration = &ms
	}
}

// WithOrigin sets the coordinate frame of the move.
func WithOrigin(o Origin) MoveOption {
	return func(a *PointerAction) {
		a.Origin = o
	}
}

// Move returns a pointerMove to (x, y), taking DefaultMoveDuration
// milliseconds relative to the viewport unless overridden.
func Move(x, y int, opts ...MoveOption) PointerAction {
	a := PointerAction{
		Type:     PointerMove,
		Duration: intPtr(DefaultMoveDuration),
		X:        &x,
		Y:        &y,
		Origin:   OriginViewport,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Down presses the primary button.
func Down() PointerAction {
	return PointerAction{Type: PointerDown, Button: intPtr(0)}
}

// Up releases the primary button.
func Up() PointerAction {
	return PointerAction{Type: PointerUp, Button: intPtr(0)}
}

// PauseFor waits ms milliseconds.
func PauseFor(ms int) PointerAction {
	return PointerAction{Type: Pause, Duration: &ms}
}

func KeyDownAction(value string) KeyAction {
	return KeyAction{Type: KeyDown, Value: value}
}

func KeyUpAction(value string) KeyAction {
	return KeyAction{Type: KeyUp, Value: value}
}

// Pointer returns a pointer source. The pointer type defaults to touch.
func Pointer(id string, steps []PointerAction, pointerType ...PointerType) Sequence {
	pt := PointerTouch
	if len(pointerType) > 0 {
		pt = pointerType[0]
	}
	return Sequence{
		Type:           SourcePointer,
		ID:             id,
		Parameters:     &Parameters{PointerType: pt},
		PointerActions: steps,
	}
}

// Key returns a key source.
func Key(id string, steps []KeyAction) Sequence {
	return Sequence{
		Type:       SourceKey,
		ID:         id,
		KeyActions: steps,
	}
}

// Null returns a source with no steps, used to pad tick counts.
func Null(id string) Sequence {
	return Sequence{
		Type: SourceNull,
		ID:   id,
	}
}

func intPtr(v int) *int {
	return &v
}
