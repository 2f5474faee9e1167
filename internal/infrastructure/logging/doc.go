// Package logging wraps log/slog for the NAS automation controller.
//
// Every entry carries the service name and version, so log lines from the
// controller can be told apart from the other services feeding the same
// collector. Production runs use JSON output; development runs use the
// text handler.
//
// Configured via config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("tick complete", "decision", "NO_ACTION")
//
//	tickLog := log.With("component", "tick")
//
// Never log secrets: the SSH credentials, the Plex token and the MQTT
// password all pass through config and must not appear in log fields.
package logging
