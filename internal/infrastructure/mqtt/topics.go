package mqtt

import "fmt"

// Topic prefixes for the controller's MQTT hierarchy.
//
// All topics live under nasauto/: system topics carry the controller's own
// availability, core topics carry decision and state events for dashboards,
// device topics carry per-device power transitions.
const (
	// TopicPrefixCore is the base for decision/state event topics.
	TopicPrefixCore = "nasauto/core"

	// TopicPrefixSystem is the base for controller availability topics.
	TopicPrefixSystem = "nasauto/system"

	// TopicPrefixDevice is the base for per-device power topics.
	TopicPrefixDevice = "nasauto/device"
)

// Topics provides builders for the controller's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Decision()
//	// Returns: "nasauto/core/decision"
type Topics struct{}

// SystemStatus returns the controller availability topic.
// Retained; the LWT publishes offline here on unexpected disconnect.
//
// Example: nasauto/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// Decision returns the topic for tick decision events.
//
// Example: nasauto/core/decision
func (Topics) Decision() string {
	return fmt.Sprintf("%s/decision", TopicPrefixCore)
}

// State returns the topic for automation state transitions.
// Retained so dashboards see the current state on subscribe.
//
// Example: nasauto/core/state
func (Topics) State() string {
	return fmt.Sprintf("%s/state", TopicPrefixCore)
}

// DevicePower returns the topic for a device's power transitions.
//
// Example: nasauto/device/nas/power
func (Topics) DevicePower(device string) string {
	return fmt.Sprintf("%s/%s/power", TopicPrefixDevice, device)
}
