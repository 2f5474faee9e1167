package automation

import "errors"

// Domain-specific errors for the automation core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrShutdownTimeout is returned when the NAS stays reachable past the
	// shutdown wait budget. The relay is left on; cutting power under a
	// live filesystem is worse than a stuck tick.
	ErrShutdownTimeout = errors.New("automation: shutdown confirmation timed out")

	// ErrStateNotFound is returned when the singleton state row is missing.
	ErrStateNotFound = errors.New("automation: state record not found")

	// ErrNoScheduleCache is returned by a tick that ran before any recording
	// schedule was ever accepted. The tick stands down with NO_ACTION; the
	// error makes the degraded run visible to callers.
	ErrNoScheduleCache = errors.New("automation: no schedule cache available")
)
