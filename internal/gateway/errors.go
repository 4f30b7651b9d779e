package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is wrapped around network failures, timeouts and 5xx
	// answers. The donor may retry.
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrRejected is wrapped around answers in which the gateway refused the request.
	ErrRejected = errors.New("gateway rejected request")

	// ErrUnsupported is returned when no adapter is registered for a code.
	ErrUnsupported = errors.New("gateway not supported")
)

// ConfigurationError reports a required gateway setting that is missing.
// It signals a broken deployment rather than a donor-recoverable failure.
type ConfigurationError struct {
	Gateway     string
	Environment string
	Key         string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("gateway %s (%s): missing required configuration %q", e.Gateway, e.Environment, e.Key)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsUnavailable reports whether err wraps ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
