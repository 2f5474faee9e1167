// Package config provides YAML-based configuration loading for the NAS
// automation controller.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// environment variable overrides (NASAUTO_* prefix, secrets and endpoints
// only). Validation is fail-fast: the controller refuses to start with an
// invalid configuration rather than ticking against half-configured
// hardware.
//
// Automation actions default to disabled (dry-run). Live relay and SSH
// control requires an explicit actions_enabled: true in the file.
package config
