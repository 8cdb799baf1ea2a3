package recovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/wdaclient/pkg/wda"
)

func shell(t *testing.T, script string, tweak ...func(*Config)) *XCTestRecoverer {
	t.Helper()
	cfg := Config{
		Command:       "/bin/sh",
		Args:          []string{"-c", script},
		LaunchTimeout: 5 * time.Second,
		DrainWindow:   5 * time.Second,
	}
	for _, f := range tweak {
		f(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecoverSucceedsOnMarker(t *testing.T) {
	r := shell(t, `echo "launching"; echo "`+ReadyMarker+`"; exec sleep 30`)

	assert.True(t, r.Recover(context.Background()))
	assert.True(t, r.Running(), "launcher keeps running after success")

	require.NoError(t, r.Close())
	assert.False(t, r.Running())
}

func TestRecoverFailsWhenLauncherExits(t *testing.T) {
	r := shell(t, `echo "device not found"; exit 1`)

	start := time.Now()
	assert.False(t, r.Recover(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, r.Running())
}

func TestRecoverDrainWindow(t *testing.T) {
	r := shell(t, `echo "waiting"; exec sleep 30`, func(c *Config) {
		c.DrainWindow = 100 * time.Millisecond
	})

	start := time.Now()
	assert.False(t, r.Recover(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, r.Running())
}

func TestRecoverLaunchTimeout(t *testing.T) {
	r := shell(t, `exec sleep 30`, func(c *Config) {
		c.LaunchTimeout = 100 * time.Millisecond
		c.DrainWindow = 10 * time.Second
	})

	start := time.Now()
	assert.False(t, r.Recover(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRecoverCancelled(t *testing.T) {
	r := shell(t, `exec sleep 30`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.False(t, r.Recover(ctx))
}

func TestRecoverMissingCommand(t *testing.T) {
	r, err := New(Config{Command: "/nonexistent/launcher", UDID: "abc"})
	require.NoError(t, err)

	assert.False(t, r.Recover(context.Background()))
	assert.False(t, r.Running())
}

func TestRecoverReplacesPreviousLauncher(t *testing.T) {
	r := shell(t, `echo "`+ReadyMarker+`"; exec sleep 30`)
	ctx := context.Background()

	require.True(t, r.Recover(ctx))
	first := r.current
	require.True(t, r.Recover(ctx))

	select {
	case <-first.done:
	default:
		t.Fatal("previous launcher still running")
	}
	assert.True(t, r.Running())
}

func TestRecoverPassesEnv(t *testing.T) {
	r := shell(t, `echo "$WDA_MARKER"; exec sleep 30`, func(c *Config) {
		c.Env = map[string]string{"WDA_MARKER": ReadyMarker}
	})

	assert.True(t, r.Recover(context.Background()))
}

func TestRecoverDefaultArgs(t *testing.T) {
	r := shell(t, "", func(c *Config) {
		c.Command = "/bin/echo"
		c.Args = nil
		c.UDID = "00008101-000A"
	})
	assert.Equal(t, []string{"-u", "00008101-000A", "xctest"}, r.config.args())
	assert.False(t, r.Recover(context.Background()), "echo exits without the marker")
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"command":        "ios",
		"udid":           "abc",
		"args":           "runwda --udid abc",
		"launch_timeout": "15s",
		"drain_window":   "3s",
		"env":            map[string]any{"GO_IOS_AGENT": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Config{
		Command:       "ios",
		UDID:          "abc",
		Args:          []string{"runwda", "--udid", "abc"},
		Env:           map[string]string{"GO_IOS_AGENT": "1"},
		LaunchTimeout: 15 * time.Second,
		DrainWindow:   3 * time.Second,
	}, cfg)

	_, err = DecodeConfig(map[string]any{"launch_timeout": "soon"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewFromMap(t *testing.T) {
	r, err := NewFromMap(map[string]any{"udid": "abc"})
	require.NoError(t, err)
	assert.Equal(t, DefaultCommand, r.config.Command)
	assert.Equal(t, DefaultLaunchTimeout, r.config.LaunchTimeout)
	assert.Equal(t, DefaultDrainWindow, r.config.DrainWindow)

	_, err = NewFromMap(map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewFromMap(map[string]any{"udid": "abc", "drain_window": "-1s"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClientRecoversThroughLauncher(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":{"ready":true}}`))
	}))
	t.Cleanup(srv.Close)

	r := shell(t, `echo "`+ReadyMarker+`"; exec sleep 30`)
	relaunch := wda.RecoverFunc(func(ctx context.Context) bool {
		if !r.Recover(ctx) {
			return false
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		srv.Listener.Close()
		srv.Listener = ln
		srv.Start()
		return true
	})

	c, err := wda.New("http://"+addr, wda.WithRecoverer(relaunch), wda.WithRetryDelay(0, 0))
	require.NoError(t, err)
	defer c.Close()

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready)
	assert.True(t, r.Running())
}
