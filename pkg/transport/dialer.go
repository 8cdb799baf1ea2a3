package transport

import (
	"context"
	"net"
)

// DeviceDialer opens a byte stream to a port on a locally attached device.
// Device discovery and the multiplexing protocol live behind this interface.
type DeviceDialer interface {
	DialDevice(ctx context.Context, udid string, port int) (net.Conn, error)
}

// DeviceDialerFunc adapts a function to the DeviceDialer interface.
type DeviceDialerFunc func(ctx context.Context, udid string, port int) (net.Conn, error)

func (f DeviceDialerFunc) DialDevice(ctx context.Context, udid string, port int) (net.Conn, error) {
	return f(ctx, udid, port)
}
