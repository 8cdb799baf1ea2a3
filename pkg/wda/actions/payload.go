package actions

import (
	"github.com/anand-gl/jsoncanonicalizer"
)

// Request is the body of POST /session/{id}/actions.
type Request struct {
	Actions []Sequence `json:"actions"`
}

// TouchRequest is the body of POST /session/{id}/wda/touch/perform.
type TouchRequest struct {
	Actions []Gesture `json:"actions"`
}

// NewRequest validates seqs and wraps them in a Request.
func NewRequest(seqs ...Sequence) (Request, error) {
	if err := Validate(seqs...); err != nil {
		return Request{}, err
	}
	return Request{Actions: seqs}, nil
}

// NewTouchRequest validates gestures and wraps them in a TouchRequest.
func NewTouchRequest(gestures ...Gesture) (TouchRequest, error) {
	if err := ValidateGestures(gestures...); err != nil {
		return TouchRequest{}, err
	}
	return TouchRequest{Actions: gestures}, nil
}

// Canonical renders v in RFC 8785 canonical form: sorted keys and no
// insignificant whitespace. Two payloads describing the same input render
// to identical bytes.
func Canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to encode payload", err)
	}
	out, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to canonicalize payload", err)
	}
	return out, nil
}
