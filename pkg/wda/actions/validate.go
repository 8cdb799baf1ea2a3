package actions

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tansive/wdaclient/internal/common/apperrors"
)

// ErrInvalidActions is returned for sequences or gestures the agent would reject.
var ErrInvalidActions = apperrors.New("invalid actions")

var (
	actionValidator     *validator.Validate
	actionValidatorOnce sync.Once
)

// V returns the validator shared by the package.
func V() *validator.Validate {
	actionValidatorOnce.Do(func() {
		actionValidator = validator.New(validator.WithRequiredStructEnabled())
		actionValidator.RegisterStructValidation(pointerActionLevel, PointerAction{})
		actionValidator.RegisterStructValidation(sequenceLevel, Sequence{})
		actionValidator.RegisterStructValidation(gestureLevel, Gesture{})
	})
	return actionValidator
}

func pointerActionLevel(sl validator.StructLevel) {
	a := sl.Current().Interface().(PointerAction)
	switch a.Type {
	case PointerMove:
		if a.X == nil {
			sl.ReportError(a.X, "x", "X", "required_for_move", "")
		}
		if a.Y == nil {
			sl.ReportError(a.Y, "y", "Y", "required_for_move", "")
		}
	case Pause:
		if a.Duration == nil {
			sl.ReportError(a.Duration, "duration", "Duration", "required_for_pause", "")
		}
	}
}

func sequenceLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(Sequence)
	switch s.Type {
	case SourcePointer:
		if len(s.KeyActions) > 0 {
			sl.ReportError(s.KeyActions, "actions", "KeyActions", "pointer_steps_only", "")
		}
	case SourceKey:
		if len(s.PointerActions) > 0 {
			sl.ReportError(s.PointerActions, "actions", "PointerActions", "key_steps_only", "")
		}
		if s.Parameters != nil {
			sl.ReportError(s.Parameters, "parameters", "Parameters", "pointer_only", "")
		}
	case SourceNull:
		if len(s.PointerActions) > 0 || len(s.KeyActions) > 0 {
			sl.ReportError(s.PointerActions, "actions", "PointerActions", "empty_for_null", "")
		}
	}
}

func gestureLevel(sl validator.StructLevel) {
	g := sl.Current().Interface().(Gesture)
	hasPoint := g.Options != nil && g.Options.X != nil && g.Options.Y != nil
	hasElement := g.Options != nil && g.Options.Element != ""
	switch g.Action {
	case GestureTap, GesturePress, GestureMoveTo:
		if !hasPoint && !hasElement {
			sl.ReportError(g.Options, "options", "Options", "point_or_element", "")
		}
	case GestureWait:
		if g.Options == nil || g.Options.Ms == nil {
			sl.ReportError(g.Options, "options", "Options", "ms_required", "")
		}
	}
}

// Validate checks every sequence and rejects duplicate source ids.
func Validate(seqs ...Sequence) error {
	if len(seqs) == 0 {
		return ErrInvalidActions.Msg("no input sources")
	}
	seen := make(map[string]struct{}, len(seqs))
	for i, s := range seqs {
		if err := V().Struct(s); err != nil {
			return ErrInvalidActions.Msg(fmt.Sprintf("source %d: %s", i, describe(err)))
		}
		if _, dup := seen[s.ID]; dup {
			return ErrInvalidActions.Msg("duplicate input source id " + s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// ValidateGestures checks every gesture of a touch/perform list.
func ValidateGestures(gestures ...Gesture) error {
	if len(gestures) == 0 {
		return ErrInvalidActions.Msg("no gestures")
	}
	for i, g := range gestures {
		if err := V().Struct(g); err != nil {
			return ErrInvalidActions.Msg(fmt.Sprintf("gesture %d: %s", i, describe(err)))
		}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}
