package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// DefaultTimeout is applied to every exchange when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// ConnectorOptions contains options for configuring an HTTPConnector.
type ConnectorOptions struct {
	Timeout               time.Duration // per-exchange timeout, DefaultTimeout if zero
	Pool                  *Pool         // shared client pool, a private one if nil
	DeviceDialer          DeviceDialer  // required for http+usbmux targets
	DisableCertValidation bool          // skips TLS verification for https targets
}

// HTTPConnector is a Connector speaking HTTP/1.1 to the agent, either over
// the network or through a DeviceDialer tunnel.
type HTTPConnector struct {
	target    Target
	opts      ConnectorOptions
	ownsPool  bool
	closeOnce sync.Once
}

// NewHTTPConnector creates a connector for the agent at rawURL.
func NewHTTPConnector(rawURL string, opts ConnectorOptions) (*HTTPConnector, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	if target.IsDevice() && opts.DeviceDialer == nil {
		return nil, ErrNoDeviceDialer.Msg("a device dialer is required for " + target.String())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	owns := opts.Pool == nil
	if owns {
		opts.Pool = NewPool(DefaultPoolSize)
	}
	return &HTTPConnector{
		target:   target,
		opts:     opts,
		ownsPool: owns,
	}, nil
}

// Close releases the private pool created when no Pool was given. A shared
// pool is left to its owner.
func (c *HTTPConnector) Close() error {
	c.closeOnce.Do(func() {
		if c.ownsPool {
			c.opts.Pool.Close()
		}
	})
	return nil
}

// poolKey identifies the *http.Client built for this connector's target and
// options, so connectors sharing a pool only share compatible transports.
func (c *HTTPConnector) poolKey() string {
	key := c.target.Key() + "|" + c.opts.Timeout.String()
	if c.target.Scheme == SchemeHTTPS && c.opts.DisableCertValidation {
		key += "|insecure"
	}
	return key
}

// Target returns the parsed agent address.
func (c *HTTPConnector) Target() Target {
	return c.target
}

// Timeout returns the per-exchange timeout.
func (c *HTTPConnector) Timeout() time.Duration {
	return c.opts.Timeout
}

// Do sends req and reads the complete response. Any failure before the
// response body is fully read is reported as ErrUnreachable; non-200 status
// codes are not errors at this layer.
func (c *HTTPConnector) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), c.target.URL(req.Path), body)
	if err != nil {
		return nil, ErrTransport.MsgErr("failed to create request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.opts.Pool.Get(c.poolKey(), c.newHTTPClient)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, ErrUnreachable.MsgErr("request failed", pkgerrors.Wrapf(err, "%s %s", req.Method, req.Path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrUnreachable.MsgErr("failed to read response body", pkgerrors.Wrap(err, c.target.String()))
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

func (c *HTTPConnector) newHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	if c.target.IsDevice() {
		dialer := c.opts.DeviceDialer
		udid, port := c.target.UDID, c.target.Port
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			conn, err := dialer.DialDevice(ctx, udid, port)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "device %s port %d", udid, port)
			}
			return conn, nil
		}
	} else {
		transport.DialContext = (&net.Dialer{
			Timeout:   c.opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	if c.target.Scheme == SchemeHTTPS && c.opts.DisableCertValidation {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	return &http.Client{Transport: transport}
}
