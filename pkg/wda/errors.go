package wda

import (
	"errors"
	"fmt"

	"github.com/tansive/wdaclient/internal/common/apperrors"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

var (
	// ErrWDA is the root of every error returned by the client.
	ErrWDA = apperrors.New("wda error")

	// ErrRequest covers non-200 responses, undecodable bodies and an agent
	// that stays unreachable after a successful recovery.
	ErrRequest = ErrWDA.New("request error")

	// ErrSessionDoesNotExist is returned when the agent no longer knows the
	// session. SessionRequest handles it by regenerating the session once.
	ErrSessionDoesNotExist = ErrRequest.New("session does not exist")

	// ErrAPI matches every *APIError.
	ErrAPI = ErrWDA.New("agent reported an error")

	// ErrFatal is returned when the agent is unreachable and recovery is not
	// configured or failed. It is never retried.
	ErrFatal = ErrWDA.New("agent unreachable")

	ErrIncompatibleAgent = ErrWDA.New("incompatible agent version")
	ErrInvalidArgument   = ErrWDA.New("invalid argument")

	// ErrInvalidActions is returned before any I/O for action sequences or
	// gestures the agent would reject.
	ErrInvalidActions = actions.ErrInvalidActions
)

// APIError is an application-level failure reported by the agent in the
// "value" object of a decoded response. Code and Message are copied verbatim.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent error %q (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrAPI) and errors.Is(err, ErrWDA) hold.
func (e *APIError) Is(target error) bool {
	return errors.Is(ErrAPI, target)
}

// IsSessionMissing reports whether err is the session-missing condition.
func IsSessionMissing(err error) bool {
	return errors.Is(err, ErrSessionDoesNotExist)
}
