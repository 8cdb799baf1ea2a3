// Package transport sends single request/response exchanges to a remote
// automation agent. It resolves an agent address into a connection, either a
// direct network socket or a tunnel to a port on a locally attached device,
// and reports exchanges that could not complete as ErrUnreachable. It knows
// nothing about sessions, retries or the agent's JSON envelope.
package transport

import (
	"context"
	"io"
)

// Method is an HTTP method understood by the agent.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Request is one outbound call. Body is sent as application/json when set.
type Request struct {
	Method Method // MethodGet or MethodPost
	Path   string // agent path, e.g. "/status"
	Body   []byte // optional JSON body
}

// Response is the raw outcome of a completed exchange.
type Response struct {
	StatusCode int    // HTTP status code
	Body       []byte // full response body
}

// Connector performs a single exchange with the agent.
// Implementations must return an error satisfying IsUnreachable when no
// response could be obtained at all (refused connection, failed device
// tunnel, timeout before a response).
type Connector interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, req Request) (*Response, error)

func (f ConnectorFunc) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Verify that HTTPConnector implements the Connector interface.
var _ Connector = &HTTPConnector{}
var _ io.Closer = &HTTPConnector{}
