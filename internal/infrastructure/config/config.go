package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the NAS automation controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
	Automation AutomationConfig `yaml:"automation"`
	Plex       PlexConfig       `yaml:"plex"`
	Devices    DevicesConfig    `yaml:"devices"`
	Proxmox    ProxmoxConfig    `yaml:"proxmox"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional: when disabled, status events are simply not published.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AutomationConfig contains the decision pipeline settings.
type AutomationConfig struct {
	// ActionsEnabled switches between dry-run (false, default) and live
	// device control. Dry-run computes and logs decisions without touching
	// any relay or SSH session.
	ActionsEnabled bool `yaml:"actions_enabled"`

	// TickInterval is the minimum number of seconds between executed ticks.
	// Triggers arriving earlier are throttled without side effects.
	TickInterval int `yaml:"tick_interval"`

	// LeadMinutes is how long before a recording starts the devices must
	// already be powered.
	LeadMinutes int `yaml:"lead_minutes"`

	// LagMinutes is the grace margin after a recording ends before a
	// shutdown is permitted.
	LagMinutes int `yaml:"lag_minutes"`

	// NightPeriod is the window during which an idle system shuts down
	// everything instead of only the NAS.
	NightPeriod NightPeriodConfig `yaml:"night_period"`

	// Shutdown bounds the NAS shutdown confirmation wait.
	Shutdown ShutdownConfig `yaml:"shutdown"`

	// SeedPeriods are inserted into the scheduled-period store when it is
	// empty (first boot). Later edits happen through the API.
	SeedPeriods []SeedPeriod `yaml:"seed_periods"`
}

// NightPeriodConfig describes the nightly full-power-down window.
type NightPeriodConfig struct {
	Enabled bool   `yaml:"enabled"`
	Start   string `yaml:"start"` // "HH:MM" local wall clock
	End     string `yaml:"end"`   // "HH:MM", end <= start spans midnight
}

// ShutdownConfig bounds the graceful NAS shutdown sequence.
type ShutdownConfig struct {
	// PollInterval is the number of seconds between reachability probes
	// while waiting for the NAS to go down.
	PollInterval int `yaml:"poll_interval"`

	// Timeout is the total number of seconds to wait for the NAS to
	// confirm shutdown before giving up. A timed-out shutdown is retried
	// on a later tick.
	Timeout int `yaml:"timeout"`
}

// SeedPeriod is a scheduled ON window definition in the YAML file.
type SeedPeriod struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"` // daily, weekly, once
	Weekdays []int  `yaml:"weekdays,omitempty"`
	Date     string `yaml:"date,omitempty"` // YYYY-MM-DD, once only
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Enabled  bool   `yaml:"enabled"`
	Label    string `yaml:"label,omitempty"`
}

// PlexConfig contains the upstream Plex schedule source settings.
type PlexConfig struct {
	// Host is the Plex base URL, e.g. "http://192.168.1.10:32400".
	Host  string `yaml:"host"`
	Token string `yaml:"token"`

	// RefreshInterval is the number of seconds between schedule cache
	// refresh attempts.
	RefreshInterval int `yaml:"refresh_interval"`

	// CachePath is the file holding the last known-good schedule payload.
	CachePath string `yaml:"cache_path"`
}

// DevicesConfig groups the physical device endpoints.
type DevicesConfig struct {
	NAS    NASConfig    `yaml:"nas"`
	VuPlus VuPlusConfig `yaml:"vuplus"`
}

// NASConfig contains NAS addressing, SSH and relay settings.
type NASConfig struct {
	// Host is the NAS IP or hostname, probed on the SSH port for
	// reachability.
	Host  string         `yaml:"host"`
	SSH   SSHConfig      `yaml:"ssh"`
	Relay RelayConfig    `yaml:"relay"`
	Probe NASProbeConfig `yaml:"probe"`
}

// SSHConfig contains credentials for the graceful shutdown command.
type SSHConfig struct {
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NASProbeConfig tunes the reachability probe.
type NASProbeConfig struct {
	// TimeoutMS is the TCP dial timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms"`
}

// VuPlusConfig contains the satellite receiver relay settings.
type VuPlusConfig struct {
	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig describes one Shelly smart relay channel.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Channel int    `yaml:"channel"`
}

// ProxmoxConfig contains the backup-system status check settings.
type ProxmoxConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"` // e.g. "https://pve.local:8006"
	Node        string `yaml:"node"`
	TokenID     string `yaml:"token_id"`
	TokenSecret string `yaml:"token_secret"`

	// SyncInterval is the number of seconds between backup-window sync
	// runs maintaining the auto-generated once window.
	SyncInterval int `yaml:"sync_interval"`
}

// clockPattern matches "HH:MM" wall-clock times.
var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NASAUTO_SECTION_KEY
// For example: NASAUTO_DATABASE_PATH, NASAUTO_PLEX_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Automation actions default to disabled (dry-run) so a fresh install
// never power-cycles hardware before the operator has reviewed the config.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "NAS Automation",
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Path:        "./data/nasauto.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "nasautod",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 4800,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Automation: AutomationConfig{
			ActionsEnabled: false,
			TickInterval:   60,
			LeadMinutes:    10,
			LagMinutes:     15,
			NightPeriod: NightPeriodConfig{
				Enabled: false,
				Start:   "23:30",
				End:     "06:00",
			},
			Shutdown: ShutdownConfig{
				PollInterval: 20,
				Timeout:      180,
			},
		},
		Plex: PlexConfig{
			RefreshInterval: 300,
			CachePath:       "./data/plex-scheduled.json",
		},
		Devices: DevicesConfig{
			NAS: NASConfig{
				SSH:   SSHConfig{Port: 22},
				Probe: NASProbeConfig{TimeoutMS: 1500},
			},
		},
		Proxmox: ProxmoxConfig{
			SyncInterval: 300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Only secrets and deployment-specific endpoints are overridable; structural
// settings stay in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NASAUTO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("NASAUTO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NASAUTO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NASAUTO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("NASAUTO_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("NASAUTO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("NASAUTO_PLEX_TOKEN"); v != "" {
		cfg.Plex.Token = v
	}

	if v := os.Getenv("NASAUTO_NAS_SSH_PASSWORD"); v != "" {
		cfg.Devices.NAS.SSH.Password = v
	}

	if v := os.Getenv("NASAUTO_PROXMOX_TOKEN_SECRET"); v != "" {
		cfg.Proxmox.TokenSecret = v
	}
}

// Validate checks the configuration for errors.
//
// The controller drives physical power relays, so an invalid configuration
// fails fast here: no tick runs until the file is corrected.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Automation.TickInterval < 1 {
		errs = append(errs, "automation.tick_interval must be at least 1 second")
	}
	if c.Automation.LeadMinutes < 0 {
		errs = append(errs, "automation.lead_minutes cannot be negative")
	}
	if c.Automation.LagMinutes < 0 {
		errs = append(errs, "automation.lag_minutes cannot be negative")
	}
	if c.Automation.Shutdown.PollInterval < 1 {
		errs = append(errs, "automation.shutdown.poll_interval must be at least 1 second")
	}
	if c.Automation.Shutdown.Timeout < c.Automation.Shutdown.PollInterval {
		errs = append(errs, "automation.shutdown.timeout must be >= poll_interval")
	}

	if c.Automation.NightPeriod.Enabled {
		if !clockPattern.MatchString(c.Automation.NightPeriod.Start) {
			errs = append(errs, "automation.night_period.start must be HH:MM")
		}
		if !clockPattern.MatchString(c.Automation.NightPeriod.End) {
			errs = append(errs, "automation.night_period.end must be HH:MM")
		}
	}

	for i, p := range c.Automation.SeedPeriods {
		if err := validateSeedPeriod(p); err != nil {
			errs = append(errs, fmt.Sprintf("automation.seed_periods[%d]: %v", i, err))
		}
	}

	if c.Plex.Host == "" {
		errs = append(errs, "plex.host is required")
	}
	if c.Plex.RefreshInterval < 1 {
		errs = append(errs, "plex.refresh_interval must be at least 1 second")
	}
	if c.Plex.CachePath == "" {
		errs = append(errs, "plex.cache_path is required")
	}

	// Device endpoints are only mandatory once live actions are enabled.
	// Dry-run installs may leave them blank while testing the decision logic.
	if c.Automation.ActionsEnabled {
		if c.Devices.NAS.Host == "" {
			errs = append(errs, "devices.nas.host is required when actions are enabled")
		}
		if c.Devices.NAS.Relay.Enabled && c.Devices.NAS.Relay.Host == "" {
			errs = append(errs, "devices.nas.relay.host is required when the NAS relay is enabled")
		}
		if c.Devices.NAS.Relay.Enabled && (c.Devices.NAS.SSH.User == "" || c.Devices.NAS.SSH.Password == "") {
			errs = append(errs, "devices.nas.ssh.user and password are required for graceful shutdown (set NASAUTO_NAS_SSH_PASSWORD)")
		}
		if c.Devices.VuPlus.Relay.Enabled && c.Devices.VuPlus.Relay.Host == "" {
			errs = append(errs, "devices.vuplus.relay.host is required when the receiver relay is enabled")
		}
	}

	if c.Proxmox.Enabled {
		if c.Proxmox.Host == "" || c.Proxmox.Node == "" {
			errs = append(errs, "proxmox.host and proxmox.node are required when proxmox is enabled")
		}
		if c.Proxmox.TokenID == "" || c.Proxmox.TokenSecret == "" {
			errs = append(errs, "proxmox.token_id and token_secret are required when proxmox is enabled (set NASAUTO_PROXMOX_TOKEN_SECRET)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateSeedPeriod checks one seed window definition.
func validateSeedPeriod(p SeedPeriod) error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch p.Type {
	case "daily":
	case "weekly":
		if len(p.Weekdays) == 0 {
			return fmt.Errorf("weekly period needs at least one weekday")
		}
		for _, d := range p.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("weekday %d out of range 0-6", d)
			}
		}
	case "once":
		if _, err := time.ParseInLocation("2006-01-02", p.Date, time.Local); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	default:
		return fmt.Errorf("type must be daily, weekly or once (got %q)", p.Type)
	}
	if !clockPattern.MatchString(p.Start) {
		return fmt.Errorf("start must be HH:MM")
	}
	if !clockPattern.MatchString(p.End) {
		return fmt.Errorf("end must be HH:MM")
	}
	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetTickInterval returns the minimum tick spacing as a Duration.
func (c *AutomationConfig) GetTickInterval() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}

// GetLead returns the wake-ahead margin as a Duration.
func (c *AutomationConfig) GetLead() time.Duration {
	return time.Duration(c.LeadMinutes) * time.Minute
}

// GetLag returns the post-recording grace margin as a Duration.
func (c *AutomationConfig) GetLag() time.Duration {
	return time.Duration(c.LagMinutes) * time.Minute
}

// GetShutdownPoll returns the shutdown confirmation poll interval.
func (c *AutomationConfig) GetShutdownPoll() time.Duration {
	return time.Duration(c.Shutdown.PollInterval) * time.Second
}

// GetShutdownTimeout returns the total shutdown confirmation timeout.
func (c *AutomationConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.Timeout) * time.Second
}

// GetProbeTimeout returns the NAS reachability probe timeout.
func (c *NASConfig) GetProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutMS) * time.Millisecond
}
