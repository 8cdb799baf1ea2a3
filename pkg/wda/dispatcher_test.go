package wda

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/wdaclient/pkg/transport"
)

func TestRequestReturnsDecodedBody(t *testing.T) {
	body := `{"value":{"ios":{"ip":"10.0.0.2"},"list":[1,2]},"sessionId":"abc","extra":true}`
	c, conn := newScriptedClient(t, []step{reply(http.StatusOK, body)})

	resp, err := c.Request(context.Background(), MethodGet, "/status", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, conn.callCount())
	assert.JSONEq(t, body, string(resp.Raw))
	assert.Equal(t, map[string]any{
		"value":     map[string]any{"ios": map[string]any{"ip": "10.0.0.2"}, "list": []any{float64(1), float64(2)}},
		"sessionId": "abc",
		"extra":     true,
	}, resp.Body)
	assert.Equal(t, "abc", resp.SessionID())
	assert.Equal(t, "10.0.0.2", resp.Value().Get("ios.ip").String())
}

func TestRequestSendsJSONBody(t *testing.T) {
	c, conn := newScriptedClient(t, []step{reply(http.StatusOK, `{"value":null}`)})

	_, err := c.Request(context.Background(), MethodPost, "wda/tap", map[string]int{"x": 1})
	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.Equal(t, MethodPost, conn.calls[0].Method)
	assert.Equal(t, "wda/tap", conn.calls[0].Path)
	assert.JSONEq(t, `{"x":1}`, string(conn.calls[0].Body))

	_, err = c.Request(context.Background(), MethodGet, "/status", nil)
	require.NoError(t, err)
	assert.Nil(t, conn.calls[1].Body)
}

func TestRequestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{
			name:   "on 200",
			status: http.StatusOK,
			body:   `{"value":{"error":"no such element","message":"unable to find element"}}`,
		},
		{
			name:   "on 500",
			status: http.StatusInternalServerError,
			body:   `{"value":{"error":"unknown error","message":"something broke"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, conn := newScriptedClient(t, []step{reply(tt.status, tt.body)})

			_, err := c.Request(context.Background(), MethodGet, "/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAPI)
			assert.ErrorIs(t, err, ErrWDA)
			assert.NotErrorIs(t, err, ErrRequest)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, resultString(tt.body, "value.error"), apiErr.Code)
			assert.Equal(t, resultString(tt.body, "value.message"), apiErr.Message)
			assert.Equal(t, 1, conn.callCount(), "application errors are never retried")
		})
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		notErr   error
		wantCode int
	}{
		{
			name:     "http error without value.error",
			status:   http.StatusBadGateway,
			body:     `{"value":"upstream"}`,
			wantErr:  ErrRequest,
			notErr:   ErrSessionDoesNotExist,
			wantCode: http.StatusBadGateway,
		},
		{
			name:    "decode error",
			status:  http.StatusOK,
			body:    `<html>not json</html>`,
			wantErr: ErrRequest,
			notErr:  ErrAPI,
		},
		{
			name:    "session missing",
			status:  http.StatusNotFound,
			body:    `{"value":{"error":"invalid session id","message":"Session does not exist"}}`,
			wantErr: ErrSessionDoesNotExist,
			notErr:  ErrAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, conn := newScriptedClient(t, []step{reply(tt.status, tt.body)})

			_, err := c.Request(context.Background(), MethodGet, "/x", nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, tt.notErr)
			assert.Equal(t, 1, conn.callCount())
			if tt.wantCode != 0 {
				var appErr interface{ StatusCode() int }
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, tt.wantCode, appErr.StatusCode())
			}
		})
	}
}

func TestRecoveryGating(t *testing.T) {
	t.Run("no recoverer is fatal without retry", func(t *testing.T) {
		c, conn := newScriptedClient(t, []step{unreachable()})

		_, err := c.Request(context.Background(), MethodGet, "/status", nil)
		assert.ErrorIs(t, err, ErrFatal)
		assert.Equal(t, 1, conn.callCount())
	})

	t.Run("successful recovery retries exactly once", func(t *testing.T) {
		rec := &countingRecoverer{result: true}
		c, conn := newScriptedClient(t, []step{unreachable(), reply(http.StatusOK, `{"value":{}}`)}, WithRecoverer(rec))

		_, err := c.Request(context.Background(), MethodGet, "/status", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, conn.callCount())
		assert.Equal(t, 1, rec.count())
	})

	t.Run("failed recovery is fatal", func(t *testing.T) {
		rec := &countingRecoverer{result: false}
		c, conn := newScriptedClient(t, []step{unreachable()}, WithRecoverer(rec))

		_, err := c.Request(context.Background(), MethodGet, "/status", nil)
		assert.ErrorIs(t, err, ErrFatal)
		assert.Equal(t, 1, conn.callCount())
		assert.Equal(t, 1, rec.count())
	})

	t.Run("still unreachable after recovery", func(t *testing.T) {
		rec := &countingRecoverer{result: true}
		c, conn := newScriptedClient(t, []step{unreachable()}, WithRecoverer(rec))

		_, err := c.Request(context.Background(), MethodGet, "/status", nil)
		assert.ErrorIs(t, err, ErrRequest)
		assert.NotErrorIs(t, err, ErrFatal)
		assert.Equal(t, 2, conn.callCount())
		assert.Equal(t, 1, rec.count(), "recovery runs at most once per call")
	})

	t.Run("recover func adapter", func(t *testing.T) {
		called := false
		rec := RecoverFunc(func(ctx context.Context) bool {
			called = true
			return true
		})
		c, _ := newScriptedClient(t, []step{unreachable(), reply(http.StatusOK, `{"value":1}`)}, WithRecoverer(rec))

		resp, err := c.Request(context.Background(), MethodGet, "/status", nil)
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, int64(1), resp.Value().Int())
	})

	t.Run("cancelled context skips recovery", func(t *testing.T) {
		rec := &countingRecoverer{result: true}
		c, _ := newScriptedClient(t, []step{unreachable()}, WithRecoverer(rec))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Request(ctx, MethodGet, "/status", nil)
		assert.ErrorIs(t, err, ErrRequest)
		assert.Equal(t, 0, rec.count())
	})
}

func TestTimeoutIsUnreachable(t *testing.T) {
	c, agent, _ := newSimClient(t, WithTimeout(50*time.Millisecond))
	agent.SetLatency(time.Second)

	start := time.Now()
	_, err := c.Request(context.Background(), MethodGet, "/status", nil)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClosedAgentWithRecovery(t *testing.T) {
	rec := &countingRecoverer{result: false}
	c, _, srv := newSimClient(t, WithRecoverer(rec))
	srv.Close()

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1, rec.count())
}

func TestSessionRequestRegeneratesOnce(t *testing.T) {
	c, agent, _ := newSimClient(t)
	ctx := context.Background()

	first, err := c.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, agent.SessionsCreated())

	agent.ExpireSessions()
	agent.ResetCalls()

	size, err := c.WindowSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 390, size.Width)

	second := c.CurrentSessionID()
	assert.NotEqual(t, first, second)
	assert.Equal(t, agent.SessionID(), second)
	assert.Equal(t, 2, agent.SessionsCreated())
	assert.Equal(t, 1, agent.CallCount(http.MethodPost, "/session"))
	assert.Equal(t, 2, agent.CallCount(http.MethodGet, "/window/size"))
}

func TestSessionRequestSecondMissIsRequestError(t *testing.T) {
	missing := reply(http.StatusNotFound, `{"value":{"error":"invalid session id","message":"Session does not exist"}}`)
	created := reply(http.StatusOK, `{"value":{"sessionId":"s2"},"sessionId":"s2"}`)
	status := reply(http.StatusOK, `{"value":{"ready":true},"sessionId":"s1"}`)

	c, conn := newScriptedClient(t, []step{status, missing, created, missing})

	_, err := c.SessionRequest(context.Background(), MethodGet, "/window/size", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequest)
	assert.NotErrorIs(t, err, ErrSessionDoesNotExist)
	assert.Contains(t, err.Error(), SessionMissingMarker)

	require.Equal(t, 4, conn.callCount())
	assert.Equal(t, "/status", conn.calls[0].Path)
	assert.Equal(t, "/session/s1/window/size", conn.calls[1].Path)
	assert.Equal(t, "/session", conn.calls[2].Path)
	assert.Equal(t, "/session/s2/window/size", conn.calls[3].Path)
}

func TestSessionFromStatusIsStale(t *testing.T) {
	c, agent, _ := newSimClient(t)
	agent.ReportStatusSession("STALE")

	_, err := c.WindowSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, agent.SessionsCreated())
	assert.Equal(t, agent.SessionID(), c.CurrentSessionID())
	assert.Equal(t, 1, agent.CallCount(http.MethodGet, "/session/STALE/window/size"))
}

func TestSessionIDIsCached(t *testing.T) {
	c, agent, _ := newSimClient(t)
	ctx := context.Background()

	id, err := c.SessionID(ctx)
	require.NoError(t, err)
	calls := len(agent.Calls())

	again, err := c.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, agent.Calls(), calls, "cached id needs no network call")

	c.InvalidateSession()
	assert.Empty(t, c.CurrentSessionID())
	_, err = c.SessionID(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(agent.Calls()), calls)
}

func TestConcurrentRegenerationCreatesOneSession(t *testing.T) {
	c, agent, _ := newSimClient(t)
	ctx := context.Background()

	_, err := c.SessionID(ctx)
	require.NoError(t, err)
	agent.ExpireSessions()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.WindowSize(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, agent.SessionsCreated())
}

func TestCreateSessionPayload(t *testing.T) {
	c, agent, _ := newSimClient(t)

	id, err := c.CreateSession(context.Background(), SessionOptions{
		BundleID:  "com.example.app",
		Arguments: []string{"-debug"},
	})
	require.NoError(t, err)
	assert.Equal(t, agent.SessionID(), id)
	assert.Equal(t, "com.example.app", agent.LastBundleID())

	calls := agent.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.JSONEq(t, `{
		"capabilities": {"alwaysMatch": {"bundleId": "com.example.app", "arguments": ["-debug"], "environment": {}, "shouldWaitForQuiescence": false}},
		"desiredCapabilities": {"bundleId": "com.example.app", "arguments": ["-debug"], "environment": {}, "shouldWaitForQuiescence": false}
	}`, string(last.Body))

	_, err = c.CreateSession(context.Background(), SessionOptions{})
	require.NoError(t, err)
	calls = agent.Calls()
	assert.JSONEq(t, `{"capabilities":{},"desiredCapabilities":{}}`, string(calls[len(calls)-1].Body))
}

func TestCreateSessionWithoutID(t *testing.T) {
	c, _ := newScriptedClient(t, []step{reply(http.StatusOK, `{"value":{}}`)})
	_, err := c.CreateSession(context.Background(), SessionOptions{})
	assert.ErrorIs(t, err, ErrRequest)
	assert.Empty(t, c.CurrentSessionID())
}

func TestNewValidation(t *testing.T) {
	_, err := New("http://localhost:8100", WithTimeout(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New("http+usbmux://abc:8100")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	c, err := New("http://localhost:8100/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8100", c.URL())
	assert.Equal(t, DefaultTimeout, c.Timeout())
	require.NoError(t, c.Close())
}

func TestCloseReleasesPrivatePool(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 100; i++ {
		c, err := New("http://127.0.0.1:8100")
		require.NoError(t, err)
		require.NoError(t, c.Close())
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)

	// a shared pool outlives the clients using it
	pool := transport.NewPool(2)
	defer pool.Close()
	c1, err := New("http://127.0.0.1:8100", WithPool(pool))
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c, _, _ := newSimClient(t, WithPool(pool))
	_, err = c.Status(context.Background())
	assert.NoError(t, err)
}
