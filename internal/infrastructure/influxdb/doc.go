// Package influxdb provides optional time-series telemetry for the NAS
// automation controller.
//
// It wraps the official influxdb-client-go v2 library with the controller's
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Tick decisions and their reasons
//   - Tick durations and throttling
//   - Device power transitions
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off, controller runs without it
//	}
//	defer client.Close()
//
//	client.WriteDecision("SHUTDOWN_NAS", "idle (day)", false)
//
// Writes are non-blocking and batched; a slow or unreachable InfluxDB never
// delays a tick. Async write errors are surfaced through SetOnError.
package influxdb
