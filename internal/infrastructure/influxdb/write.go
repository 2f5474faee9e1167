package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDecision records one tick decision.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - decision: The decision name (e.g., "NO_ACTION", "SHUTDOWN_NAS")
//   - reason: The human-readable reason attached to the decision
//   - dryRun: Whether the decision was executed or only recorded
func (c *Client) WriteDecision(decision, reason string, dryRun bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"automation_decision",
		map[string]string{
			"decision": decision,
		},
		map[string]interface{}{
			"reason":  reason,
			"dry_run": dryRun,
			"value":   1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTickDuration records how long a tick took end to end.
//
// Parameters:
//   - durationMS: Tick duration in milliseconds
//   - throttled: Whether the tick was skipped by the throttle
func (c *Client) WriteTickDuration(durationMS float64, throttled bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"automation_tick",
		map[string]string{},
		map[string]interface{}{
			"duration_ms": durationMS,
			"throttled":   throttled,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDevicePower records a device power observation or transition.
//
// Parameters:
//   - device: Device name ("nas" or "vuplus")
//   - on: Whether the device is powered
func (c *Client) WriteDevicePower(device string, on bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if on {
		value = 1.0
	}

	point := write.NewPoint(
		"device_power",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"on": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
