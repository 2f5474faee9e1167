// Package mqtt provides the controller's MQTT publishing layer.
//
// The controller is a publish-only MQTT participant: it announces its own
// availability on nasauto/system/status (retained, with an LWT for crash
// detection) and pushes decision, state, and device power events for
// external dashboards. Inbound control flows through the HTTP API, never
// through MQTT.
//
// # Topics
//
//	nasauto/system/status        controller online/offline (retained, LWT)
//	nasauto/core/decision        tick decision events
//	nasauto/core/state           automation state transitions (retained)
//	nasauto/device/{name}/power  per-device power transitions
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Decision()
//	client.Publish(topic, payload, 1, false)
//
// The client reconnects automatically with exponential backoff. Publishes
// while disconnected fail fast with ErrNotConnected; callers treat event
// publishing as best effort.
package mqtt
