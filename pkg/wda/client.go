package wda

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/pkg/transport"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultRetryJitter = 100 * time.Millisecond
)

// Method aliases so callers of Request need not import transport.
const (
	MethodGet  = transport.MethodGet
	MethodPost = transport.MethodPost
)

// Recoverer repairs an unreachable agent out of band, for example by
// relaunching it. Recover blocks until it knows the outcome and reports
// whether the agent should now be reachable. It may be called again after
// a previous call returned.
type Recoverer interface {
	Recover(ctx context.Context) bool
}

// RecoverFunc adapts a function to the Recoverer interface.
type RecoverFunc func(ctx context.Context) bool

func (f RecoverFunc) Recover(ctx context.Context) bool {
	return f(ctx)
}

// SessionOptions scopes a created session to an application.
type SessionOptions struct {
	BundleID    string
	Arguments   []string
	Environment map[string]string
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	recoverer   Recoverer
	connector   transport.Connector
	dialer      transport.DeviceDialer
	pool        *transport.Pool
	logger      *zerolog.Logger
	retryDelay  time.Duration
	retryJitter time.Duration
	session     SessionOptions
	insecure    bool
}

// WithTimeout sets the timeout applied to every outbound exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRecoverer sets the handler invoked when the agent is unreachable.
func WithRecoverer(r Recoverer) Option {
	return func(c *clientConfig) {
		c.recoverer = r
	}
}

// WithConnector replaces the HTTP connector, mainly for tests.
func WithConnector(conn transport.Connector) Option {
	return func(c *clientConfig) {
		c.connector = conn
	}
}

// WithDeviceDialer sets the dialer used for http+usbmux addresses.
func WithDeviceDialer(d transport.DeviceDialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithPool shares a connection pool between clients.
func WithPool(p *transport.Pool) Option {
	return func(c *clientConfig) {
		c.pool = p
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = &l
	}
}

// WithRetryDelay sets the wait before the exchange that follows a
// successful recovery. A random jitter of up to jitter is added.
func WithRetryDelay(delay, jitter time.Duration) Option {
	return func(c *clientConfig) {
		c.retryDelay = delay
		c.retryJitter = jitter
	}
}

// WithSessionOptions sets the application scope used when the client has to
// create or regenerate a session on its own.
func WithSessionOptions(opts SessionOptions) Option {
	return func(c *clientConfig) {
		c.session = opts
	}
}

// WithInsecureTLS disables certificate validation for https addresses.
func WithInsecureTLS() Option {
	return func(c *clientConfig) {
		c.insecure = true
	}
}

// Client talks to one agent. It is safe for concurrent use.
type Client struct {
	url         string
	timeout     time.Duration
	connector   transport.Connector
	recoverer   Recoverer
	logger      zerolog.Logger
	retryDelay  time.Duration
	retryJitter time.Duration
	sessions    *sessionManager

	scaleMu sync.Mutex
	scale   float64
}

// New creates a client for the agent at url, e.g. http://localhost:8100 or
// http+usbmux://<udid>:8100. The latter requires WithDeviceDialer.
func New(url string, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		timeout:     DefaultTimeout,
		retryDelay:  DefaultRetryDelay,
		retryJitter: DefaultRetryJitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		return nil, ErrInvalidArgument.Msg("timeout must be positive")
	}

	conn := cfg.connector
	if conn == nil {
		hc, err := transport.NewHTTPConnector(url, transport.ConnectorOptions{
			Timeout:               cfg.timeout,
			Pool:                  cfg.pool,
			DeviceDialer:          cfg.dialer,
			DisableCertValidation: cfg.insecure,
		})
		if err != nil {
			return nil, ErrInvalidArgument.MsgErr("unable to create connector", err)
		}
		conn = hc
	}

	logger := log.Logger
	if cfg.logger != nil {
		logger = *cfg.logger
	}

	c := &Client{
		url:         strings.TrimRight(url, "/"),
		timeout:     cfg.timeout,
		connector:   conn,
		recoverer:   cfg.recoverer,
		logger:      logger.With().Str("agent", strings.TrimRight(url, "/")).Logger(),
		retryDelay:  cfg.retryDelay,
		retryJitter: cfg.retryJitter,
	}
	c.sessions = newSessionManager(c, cfg.session)
	return c, nil
}

// URL returns the agent address the client was created with.
func (c *Client) URL() string {
	return c.url
}

// Timeout returns the per-exchange timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Close releases the connections held by the client's own connector. It
// does not delete the session on the agent, and a pool passed with WithPool
// stays open. A connector given with WithConnector is closed when it
// implements io.Closer.
func (c *Client) Close() error {
	if closer, ok := c.connector.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
