package sources

import (
	"errors"
	"fmt"
)

// ErrContentTooLarge is returned when an item exceeds the configured content cap
var ErrContentTooLarge = errors.New("content exceeds maximum size")

// TransientFetchError reports a failure that is expected to go away on its own:
// network errors, timeouts, rate limiting and provider-side 5xx responses.
// Records hit by it keep their status and are retried next cycle.
type TransientFetchError struct {
	Op  string
	ID  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient failure during %s of %s: %v", e.Op, e.ID, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that an item disappeared between listing and fetching
type NotFoundError struct {
	ExternalID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.ExternalID)
}

// ConfigError reports a container that is missing, inaccessible or invalid.
// The folder is skipped for the cycle.
type ConfigError struct {
	ContainerID string
	Reason      string
	Err         error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container %q: %s: %v", e.ContainerID, e.Reason, e.Err)
	}
	return fmt.Sprintf("container %q: %s", e.ContainerID, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is or wraps a *TransientFetchError
func IsTransient(err error) bool {
	var target *TransientFetchError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a *NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConfigError reports whether err is or wraps a *ConfigError
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
