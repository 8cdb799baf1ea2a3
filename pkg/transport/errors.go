package transport

import (
	"errors"

	"github.com/tansive/wdaclient/internal/common/apperrors"
)

var (
	// ErrTransport is the base error for the package.
	ErrTransport = apperrors.New("transport error")

	// ErrUnreachable is returned when the exchange could not complete.
	ErrUnreachable = ErrTransport.New("agent unreachable")

	// ErrInvalidAddress is returned for agent URLs that cannot be parsed.
	ErrInvalidAddress = ErrTransport.New("invalid agent address")

	// ErrUnsupportedScheme is returned for URL schemes other than http,
	// https and http+usbmux.
	ErrUnsupportedScheme = ErrInvalidAddress.New("unsupported scheme")

	// ErrNoDeviceDialer is returned when a device address is used without
	// a DeviceDialer.
	ErrNoDeviceDialer = ErrTransport.New("no device dialer configured")
)

// IsUnreachable reports whether err means the agent could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
