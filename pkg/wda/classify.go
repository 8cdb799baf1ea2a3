package wda

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/tansive/wdaclient/pkg/transport"
	"github.com/tidwall/gjson"
)

// SessionMissingMarker is the text the agent puts in a response when the
// session in the path is gone.
const SessionMissingMarker = "Session does not exist"

// FailureKind classifies the outcome of one transport exchange.
type FailureKind int

const (
	KindOK FailureKind = iota
	KindSessionMissing
	KindHTTPError
	KindTransportUnreachable
	KindDecodeError
)

func (k FailureKind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindSessionMissing:
		return "SESSION_MISSING"
	case KindHTTPError:
		return "HTTP_ERROR"
	case KindTransportUnreachable:
		return "TRANSPORT_UNREACHABLE"
	case KindDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Classify maps the result of Connector.Do to a FailureKind. A 200 body
// must be a JSON object to be OK.
//
// Only TRANSPORT_UNREACHABLE leads to recovery, and only SESSION_MISSING
// leads to session regeneration. A connector error that is not an
// unreachable agent is an HTTP_ERROR.
func Classify(resp *transport.Response, err error) FailureKind {
	if err != nil {
		if transport.IsUnreachable(err) || errors.Is(err, context.DeadlineExceeded) {
			return KindTransportUnreachable
		}
		return KindHTTPError
	}
	if resp == nil {
		return KindTransportUnreachable
	}
	status := resp.StatusCode
	if (status == http.StatusOK || (status >= 400 && status < 500)) &&
		bytes.Contains(resp.Body, []byte(SessionMissingMarker)) {
		return KindSessionMissing
	}
	if status != http.StatusOK {
		return KindHTTPError
	}
	if !gjson.ValidBytes(resp.Body) || !gjson.ParseBytes(resp.Body).IsObject() {
		return KindDecodeError
	}
	return KindOK
}

// responseError converts a non-OK classification of a completed exchange
// into the error returned to callers. A body whose "value" carries "error"
// is an *APIError whatever the status.
func responseError(kind FailureKind, resp *transport.Response) error {
	switch kind {
	case KindSessionMissing:
		return ErrSessionDoesNotExist.Msg(string(resp.Body))
	case KindDecodeError:
		return ErrRequest.Msg("response is not json: " + truncate(string(resp.Body)))
	case KindHTTPError:
		if apiErr := valueError(resp); apiErr != nil {
			return apiErr
		}
		return ErrRequest.Msg(http.StatusText(resp.StatusCode) + ": " + truncate(string(resp.Body))).SetStatusCode(resp.StatusCode)
	}
	return valueError(resp)
}

// valueError returns an *APIError when value.error is set, nil otherwise.
func valueError(resp *transport.Response) error {
	if !gjson.ValidBytes(resp.Body) {
		return nil
	}
	value := gjson.GetBytes(resp.Body, "value")
	if !value.IsObject() {
		return nil
	}
	code := value.Get("error")
	if code.Type == gjson.Null || code.Type == gjson.False || code.String() == "" {
		return nil
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       code.String(),
		Message:    value.Get("message").String(),
	}
}
