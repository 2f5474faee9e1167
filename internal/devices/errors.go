package devices

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRelayDisabled is returned when a relay operation is attempted on a
	// relay that is not enabled in configuration.
	ErrRelayDisabled = errors.New("devices: relay disabled")

	// ErrRelayFailed is returned when a relay request fails or the relay
	// answers with an unexpected status.
	ErrRelayFailed = errors.New("devices: relay request failed")

	// ErrShutdownFailed is returned when the SSH shutdown command could not
	// be delivered.
	ErrShutdownFailed = errors.New("devices: shutdown command failed")

	// ErrBackupCheckFailed is returned when the backup system's task list
	// could not be read.
	ErrBackupCheckFailed = errors.New("devices: backup check failed")
)
