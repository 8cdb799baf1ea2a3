// Package-level error variables for mcpservice.
package mcpservice

import (
	"github.com/tansive/wdaclient/internal/common/apperrors"
)

var (
	// ErrMCPServiceError is the base error for MCP service errors.
	ErrMCPServiceError apperrors.Error = apperrors.New("mcp service error")

	// ErrNoDevice is returned when the service is created without a device.
	ErrNoDevice apperrors.Error = ErrMCPServiceError.New("device is nil")

	// ErrServe is returned when the stdio transport stops with an error.
	ErrServe apperrors.Error = ErrMCPServiceError.New("mcp transport failed")
)
