package wda

import (
	"context"
	"errors"
	"strings"

	"github.com/avast/retry-go/v4"
	jsonitor "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/internal/common/logtrace"
	"github.com/tansive/wdaclient/internal/common/uuid"
	"github.com/tansive/wdaclient/pkg/transport"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// requestContext attaches a request id and a logger carrying it. Nested
// calls of one logical request keep the id already in ctx.
func (c *Client) requestContext(ctx context.Context) context.Context {
	id := logtrace.RequestIDFromContext(ctx)
	if id != "" && log.Ctx(ctx).GetLevel() != zerolog.Disabled {
		return ctx
	}
	if id == "" {
		id = uuid.NewRequestID()
		ctx = logtrace.WithRequestID(ctx, id)
	}
	logger := c.logger.With().Str("request_id", id).Logger()
	return logger.WithContext(ctx)
}

// Request performs one logical exchange with the agent and returns the
// decoded body.
//
// If the agent cannot be reached, the configured Recoverer is invoked. A
// missing Recoverer or a failed recovery returns ErrFatal at once; a
// successful recovery is followed by exactly one more attempt. A body whose
// "value" carries "error" is returned as an *APIError and never retried.
func (c *Client) Request(ctx context.Context, method transport.Method, path string, payload any) (*Response, error) {
	ctx = c.requestContext(ctx)
	logger := log.Ctx(ctx)

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, ErrInvalidArgument.MsgErr("unable to encode payload", err)
		}
	}
	logger.Debug().Msg("$ " + curlLine(string(method), c.url+"/"+strings.TrimLeft(path, "/"), c.timeout, body))

	resp, err := c.send(ctx, transport.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return nil, err
	}

	kind := Classify(resp, nil)
	if e := logger.Debug(); e.Enabled() {
		e.Int("status", resp.StatusCode).
			Stringer("kind", kind).
			Msg("==> Response <==\n" + shortJSON(resp.Body))
	}
	if kind != KindOK {
		return nil, responseError(kind, resp)
	}
	if apiErr := valueError(resp); apiErr != nil {
		return nil, apiErr
	}

	out := &Response{StatusCode: resp.StatusCode, Raw: resp.Body}
	if err := json.Unmarshal(resp.Body, &out.Body); err != nil {
		return nil, ErrRequest.MsgErr("unable to decode response", err)
	}
	return out, nil
}

// SessionRequest performs Request against /session/{id}/path. When the agent
// reports the session as gone, the session is regenerated and the call is
// retried once. A second failure of the same kind is returned as ErrRequest.
func (c *Client) SessionRequest(ctx context.Context, method transport.Method, path string, payload any) (*Response, error) {
	ctx = c.requestContext(ctx)

	id, err := c.sessions.get(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.Request(ctx, method, sessionPath(id, path), payload)
	if !IsSessionMissing(err) {
		return resp, err
	}

	log.Ctx(ctx).Info().Str("session_id", id).Msg("session does not exist, generating a new one")
	id, err = c.sessions.regenerate(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err = c.Request(ctx, method, sessionPath(id, path), payload)
	if IsSessionMissing(err) {
		return nil, ErrRequest.Msg(err.Error())
	}
	return resp, err
}

func sessionPath(id, path string) string {
	return "/session/" + id + "/" + strings.TrimLeft(path, "/")
}

// send runs the exchange with the recovery-gated retry.
func (c *Client) send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	logger := log.Ctx(ctx)
	attempt := 0

	resp, err := retry.DoWithData(func() (*transport.Response, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.connector.Do(attemptCtx, req)
		if Classify(resp, err) != KindTransportUnreachable {
			if err != nil {
				return nil, retry.Unrecoverable(ErrRequest.MsgErr("request failed", err))
			}
			return resp, nil
		}
		if err == nil {
			err = transport.ErrUnreachable.Msg("no response")
		}
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(ErrRequest.MsgErr("request aborted", ctx.Err(), err))
		}
		if attempt > 1 {
			return nil, ErrRequest.MsgErr("agent still unreachable after recovery", err)
		}
		if c.recoverer == nil {
			return nil, retry.Unrecoverable(ErrFatal.MsgErr("no recovery handler configured", err))
		}
		logger.Warn().Err(err).Msg("agent unreachable, trying to recover")
		if !c.recoverer.Recover(ctx) {
			return nil, retry.Unrecoverable(ErrFatal.MsgErr("recovery failed", err))
		}
		logger.Info().Msg("agent recovered")
		return nil, ErrRequest.MsgErr("agent was unreachable", err)
	}, c.retryOptions(ctx)...)

	if err != nil && !errors.Is(err, ErrWDA) {
		err = ErrRequest.MsgErr("request aborted", err)
	}
	return resp, err
}

func (c *Client) retryOptions(ctx context.Context) []retry.Option {
	opts := []retry.Option{
		retry.Attempts(2),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
	if c.retryJitter > 0 {
		opts = append(opts,
			retry.MaxJitter(c.retryJitter),
			retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)))
	} else {
		opts = append(opts, retry.DelayType(retry.FixedDelay))
	}
	return opts
}
