package wda

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tansive/wdaclient/internal/agentsim"
	"github.com/tansive/wdaclient/pkg/transport"
)

func newSimClient(t *testing.T, opts ...Option) (*Client, *agentsim.Agent, *httptest.Server) {
	t.Helper()
	agent := agentsim.New(agentsim.Options{})
	srv := httptest.NewServer(agent.Handler())
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryDelay(0, 0)}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, agent, srv
}

type step func(req transport.Request) (*transport.Response, error)

// scriptedConnector answers each Do with the next step. The last step is
// repeated once the script is exhausted.
type scriptedConnector struct {
	mu    sync.Mutex
	steps []step
	calls []transport.Request
}

func (s *scriptedConnector) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	i := len(s.calls) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i](req)
}

func (s *scriptedConnector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func reply(status int, body string) step {
	return func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

func unreachable() step {
	return func(req transport.Request) (*transport.Response, error) {
		return nil, transport.ErrUnreachable.Msg("connection refused")
	}
}

func newScriptedClient(t *testing.T, steps []step, opts ...Option) (*Client, *scriptedConnector) {
	t.Helper()
	conn := &scriptedConnector{steps: steps}
	opts = append([]Option{WithConnector(conn), WithRetryDelay(0, 0)}, opts...)
	c, err := New("http://agent.test:8100", opts...)
	require.NoError(t, err)
	return c, conn
}

type countingRecoverer struct {
	mu     sync.Mutex
	calls  int
	result bool
	onCall func()
}

func (r *countingRecoverer) Recover(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.onCall != nil {
		r.onCall()
	}
	return r.result
}

func (r *countingRecoverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

