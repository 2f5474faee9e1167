package plex

import "errors"

// Domain-specific errors for schedule fetching and caching.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidPayload is returned when a response fails structural validation.
	ErrInvalidPayload = errors.New("plex: invalid schedule payload")

	// ErrStalePayload is returned when a fetched payload is rejected by the
	// cache guard: it has no relevant entries while the cache still does.
	ErrStalePayload = errors.New("plex: payload rejected, cache has relevant entries")

	// ErrNoScheduleCache is returned when no cached schedule exists yet.
	ErrNoScheduleCache = errors.New("plex: no schedule cache")

	// ErrFetchFailed is returned when the schedule source is unreachable or
	// answers with an unexpected status.
	ErrFetchFailed = errors.New("plex: schedule fetch failed")

	// ErrSourceOffline is returned when the schedule source's host is not
	// reachable, so no fetch was attempted.
	ErrSourceOffline = errors.New("plex: schedule source offline")
)
