package schedule

import "errors"

// Domain-specific errors for scheduled period operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrPeriodNotFound is returned when a period does not exist.
	ErrPeriodNotFound = errors.New("schedule: period not found")

	// ErrPeriodExists is returned when creating a period with a taken ID.
	ErrPeriodExists = errors.New("schedule: period already exists")

	// ErrInvalidPeriod is returned when a period definition fails validation.
	ErrInvalidPeriod = errors.New("schedule: invalid period")
)
