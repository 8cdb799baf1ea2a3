package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeUSBMux = "http+usbmux"
)

// Target is a parsed agent address.
//
//	http://192.168.1.10:8100
//	http+usbmux://00008030-001A0C3E3E38802E:8100
type Target struct {
	Scheme   string
	Host     string // host:port as written in the URL
	UDID     string // device identifier, device targets only
	Port     int    // port on the device, device targets only
	BasePath string // path prefix without trailing slash
}

// ParseTarget parses an agent URL.
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Target{}, ErrInvalidAddress.MsgErr("unable to parse "+rawURL, err)
	}
	if u.Host == "" {
		return Target{}, ErrInvalidAddress.Msg("missing host in " + rawURL)
	}
	t := Target{
		Scheme:   u.Scheme,
		Host:     u.Host,
		BasePath: strings.TrimRight(u.Path, "/"),
	}
	switch u.Scheme {
	case SchemeHTTP, SchemeHTTPS:
		return t, nil
	case SchemeUSBMux:
		udid, portStr, err := net.SplitHostPort(u.Host)
		if err != nil {
			return Target{}, ErrInvalidAddress.MsgErr("device address must be udid:port", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, ErrInvalidAddress.Msg("invalid device port " + portStr)
		}
		if udid == "" {
			return Target{}, ErrInvalidAddress.Msg("missing device udid in " + rawURL)
		}
		t.UDID = udid
		t.Port = port
		return t, nil
	default:
		return Target{}, ErrUnsupportedScheme.Msg("unsupported scheme: " + u.Scheme)
	}
}

// IsDevice reports whether the target is reached through a device tunnel.
func (t Target) IsDevice() bool {
	return t.Scheme == SchemeUSBMux
}

// Key identifies the target in a Pool.
func (t Target) Key() string {
	return t.Scheme + "://" + t.Host
}

// URL joins the target and an agent path into the URL sent on the wire.
// Device targets are addressed over plain http through the tunnel.
func (t Target) URL(path string) string {
	scheme := t.Scheme
	if t.IsDevice() {
		scheme = SchemeHTTP
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, t.Host, t.BasePath, strings.TrimLeft(path, "/"))
}

// String returns the target as written by the user, without a trailing slash.
func (t Target) String() string {
	return t.Scheme + "://" + t.Host + t.BasePath
}
