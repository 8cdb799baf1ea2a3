package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
		check   func(t *testing.T, target Target)
	}{
		{
			name: "plain http",
			url:  "http://localhost:8100/",
			check: func(t *testing.T, target Target) {
				assert.False(t, target.IsDevice())
				assert.Equal(t, "localhost:8100", target.Host)
				assert.Equal(t, "", target.BasePath)
				assert.Equal(t, "http://localhost:8100/status", target.URL("/status"))
			},
		},
		{
			name: "https with base path",
			url:  "https://wda.example.com/agent/",
			check: func(t *testing.T, target Target) {
				assert.Equal(t, "/agent", target.BasePath)
				assert.Equal(t, "https://wda.example.com/agent/session", target.URL("session"))
			},
		},
		{
			name: "device tunnel",
			url:  "http+usbmux://00008030-001A0C3E3E38802E:8100",
			check: func(t *testing.T, target Target) {
				assert.True(t, target.IsDevice())
				assert.Equal(t, "00008030-001A0C3E3E38802E", target.UDID)
				assert.Equal(t, 8100, target.Port)
				assert.Equal(t, "http://00008030-001A0C3E3E38802E:8100/status", target.URL("/status"))
				assert.Equal(t, "http+usbmux://00008030-001A0C3E3E38802E:8100", target.Key())
			},
		},
		{
			name:    "device without port",
			url:     "http+usbmux://00008030",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "device with bad port",
			url:     "http+usbmux://00008030:99999",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "unsupported scheme",
			url:     "ftp://localhost:21",
			wantErr: ErrUnsupportedScheme,
		},
		{
			name:    "missing host",
			url:     "http://",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ParseTarget(tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, target)
		})
	}
}

func TestHTTPConnectorDo(t *testing.T) {
	var gotContentType, gotBody, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"value":{"error":"unknown command"}}`))
	}))
	defer srv.Close()

	c, err := NewHTTPConnector(srv.URL, ConnectorOptions{Timeout: time.Second})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Method: MethodPost, Path: "/wda/tap", Body: []byte(`{"x":1}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"value":{"error":"unknown command"}}`, string(resp.Body))
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/wda/tap", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"x":1}`, gotBody)

	_, err = c.Do(context.Background(), Request{Method: MethodGet, Path: "status"})
	require.NoError(t, err)
	assert.Equal(t, "", gotContentType)
	assert.Equal(t, "/status", gotPath)
}

func TestHTTPConnectorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := NewHTTPConnector(addr, ConnectorOptions{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: MethodGet, Path: "/status"})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestHTTPConnectorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewHTTPConnector(srv.URL, ConnectorOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, c.Timeout())

	_, err = c.Do(context.Background(), Request{Method: MethodGet, Path: "/status"})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestHTTPConnectorDeviceTunnel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":{}}`))
	}))
	defer srv.Close()
	srvAddr := strings.TrimPrefix(srv.URL, "http://")

	var dials atomic.Int32
	var gotUDID string
	var gotPort int
	dialer := DeviceDialerFunc(func(ctx context.Context, udid string, port int) (net.Conn, error) {
		dials.Add(1)
		gotUDID, gotPort = udid, port
		var d net.Dialer
		return d.DialContext(ctx, "tcp", srvAddr)
	})

	_, err := NewHTTPConnector("http+usbmux://abc123:8100", ConnectorOptions{})
	assert.ErrorIs(t, err, ErrNoDeviceDialer)

	c, err := NewHTTPConnector("http+usbmux://abc123:8100", ConnectorOptions{DeviceDialer: dialer})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Method: MethodGet, Path: "/status"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc123", gotUDID)
	assert.Equal(t, 8100, gotPort)
	assert.Equal(t, int32(1), dials.Load())
}

func TestHTTPConnectorDeviceDialFailure(t *testing.T) {
	dialer := DeviceDialerFunc(func(ctx context.Context, udid string, port int) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: "usbmux", Err: io.ErrUnexpectedEOF}
	})
	c, err := NewHTTPConnector("http+usbmux://abc123:8100", ConnectorOptions{DeviceDialer: dialer})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: MethodGet, Path: "/status"})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.Contains(t, err.Error(), "device abc123 port 8100")
}

func TestPool(t *testing.T) {
	p := NewPool(2)
	created := 0
	create := func() *http.Client {
		created++
		return &http.Client{}
	}

	a := p.Get("http://a:1", create)
	assert.Same(t, a, p.Get("http://a:1", create))
	b := p.Get("http://b:1", create)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, created)
}

// idleCounter is a RoundTripper that counts CloseIdleConnections calls.
type idleCounter struct {
	closed atomic.Int32
}

func (c *idleCounter) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, io.EOF
}

func (c *idleCounter) CloseIdleConnections() {
	c.closed.Add(1)
}

func TestPoolEvictionClosesIdleConnections(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	first := &idleCounter{}
	p.Get("a", func() *http.Client { return &http.Client{Transport: first} })
	p.Get("b", func() *http.Client { return &http.Client{Transport: &idleCounter{}} })

	assert.Eventually(t, func() bool { return first.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPoolClose(t *testing.T) {
	p := NewPool(4)
	counters := []*idleCounter{{}, {}}
	for i, c := range counters {
		p.Get(string(rune('a'+i)), func() *http.Client { return &http.Client{Transport: c} })
	}

	p.Close()
	for _, c := range counters {
		assert.Equal(t, int32(1), c.closed.Load())
	}
	assert.NotPanics(t, p.Close)

	// a closed pool still hands out clients, it just stops caching them
	created := 0
	create := func() *http.Client {
		created++
		return &http.Client{}
	}
	assert.NotSame(t, p.Get("a", create), p.Get("a", create))
	assert.Equal(t, 2, created)
}

func TestHTTPConnectorCloseStopsPrivatePool(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		c, err := NewHTTPConnector("http://127.0.0.1:8100", ConnectorOptions{})
		require.NoError(t, err)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond, "goroutines: before=%d", before)
}

func TestHTTPConnectorSharedPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":null}`))
	}))
	defer srv.Close()

	pool := NewPool(4)
	defer pool.Close()

	c1, err := NewHTTPConnector(srv.URL, ConnectorOptions{Pool: pool})
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	// closing a connector leaves a shared pool usable
	c2, err := NewHTTPConnector(srv.URL, ConnectorOptions{Pool: pool})
	require.NoError(t, err)
	resp, err := c2.Do(context.Background(), Request{Method: MethodGet, Path: "/status"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPConnectorPoolKey(t *testing.T) {
	connector := func(url string, opts ConnectorOptions) *HTTPConnector {
		c, err := NewHTTPConnector(url, opts)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}

	base := connector("https://device:8100", ConnectorOptions{Timeout: time.Second})
	same := connector("https://device:8100/", ConnectorOptions{Timeout: time.Second})
	slower := connector("https://device:8100", ConnectorOptions{Timeout: time.Minute})
	insecure := connector("https://device:8100", ConnectorOptions{Timeout: time.Second, DisableCertValidation: true})

	assert.Equal(t, base.poolKey(), same.poolKey())
	assert.NotEqual(t, base.poolKey(), slower.poolKey())
	assert.NotEqual(t, base.poolKey(), insecure.poolKey())
	assert.NotEqual(t, slower.poolKey(), insecure.poolKey())
}
