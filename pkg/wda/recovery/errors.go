package recovery

import "github.com/tansive/wdaclient/internal/common/apperrors"

var (
	// ErrRecovery is the base error for the package.
	ErrRecovery = apperrors.New("recovery error")

	// ErrInvalidConfig is returned when the configuration map cannot be
	// decoded or is incomplete.
	ErrInvalidConfig = ErrRecovery.New("invalid config")

	// ErrLaunchFailed is logged when the launcher cannot be started.
	ErrLaunchFailed = ErrRecovery.New("launch failed")
)
