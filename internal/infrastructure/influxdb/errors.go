package influxdb

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotConnected means the client has been closed or never opened.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed means the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means telemetry is switched off in the configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
