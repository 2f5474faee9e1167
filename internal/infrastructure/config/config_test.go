package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a YAML config to a temp file and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

const minimalYAML = `
site:
  id: test-site
plex:
  host: http://plex.local:32400
`

// ─── Loading ────────────────────────────────────────────────────────────────

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Automation.ActionsEnabled {
		t.Error("actions should default to disabled (dry-run)")
	}
	if cfg.Automation.TickInterval != 60 {
		t.Errorf("tick_interval default = %d, want 60", cfg.Automation.TickInterval)
	}
	if cfg.Automation.LeadMinutes != 10 || cfg.Automation.LagMinutes != 15 {
		t.Errorf("margins = %d/%d, want 10/15", cfg.Automation.LeadMinutes, cfg.Automation.LagMinutes)
	}
	if cfg.Automation.Shutdown.PollInterval != 20 || cfg.Automation.Shutdown.Timeout != 180 {
		t.Errorf("shutdown defaults = %d/%d, want 20/180",
			cfg.Automation.Shutdown.PollInterval, cfg.Automation.Shutdown.Timeout)
	}
	if cfg.API.Port != 4800 {
		t.Errorf("api.port default = %d, want 4800", cfg.API.Port)
	}
	if cfg.Devices.NAS.SSH.Port != 22 {
		t.Errorf("nas ssh port default = %d, want 22", cfg.Devices.NAS.SSH.Port)
	}
}

func TestLoadFileValuesOverrideDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
site:
  id: test-site
plex:
  host: http://plex.local:32400
  refresh_interval: 120
automation:
  tick_interval: 30
  lead_minutes: 5
  night_period:
    enabled: true
    start: "23:00"
    end: "05:30"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Automation.TickInterval != 30 {
		t.Errorf("tick_interval = %d, want 30", cfg.Automation.TickInterval)
	}
	if cfg.Automation.LeadMinutes != 5 {
		t.Errorf("lead_minutes = %d, want 5", cfg.Automation.LeadMinutes)
	}
	if !cfg.Automation.NightPeriod.Enabled || cfg.Automation.NightPeriod.Start != "23:00" {
		t.Errorf("night period not applied: %+v", cfg.Automation.NightPeriod)
	}
	if cfg.Plex.RefreshInterval != 120 {
		t.Errorf("plex.refresh_interval = %d, want 120", cfg.Plex.RefreshInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NASAUTO_PLEX_TOKEN", "env-token")
	t.Setenv("NASAUTO_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("NASAUTO_NAS_SSH_PASSWORD", "env-secret")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Plex.Token != "env-token" {
		t.Errorf("plex token = %q, want env override", cfg.Plex.Token)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Devices.NAS.SSH.Password != "env-secret" {
		t.Errorf("ssh password = %q, want env override", cfg.Devices.NAS.SSH.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ─── Validation ─────────────────────────────────────────────────────────────

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing plex host",
			mutate:  func(c *Config) { c.Plex.Host = "" },
			wantErr: "plex.host",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Automation.TickInterval = 0 },
			wantErr: "tick_interval",
		},
		{
			name:    "negative lead",
			mutate:  func(c *Config) { c.Automation.LeadMinutes = -1 },
			wantErr: "lead_minutes",
		},
		{
			name: "shutdown timeout below poll",
			mutate: func(c *Config) {
				c.Automation.Shutdown.PollInterval = 60
				c.Automation.Shutdown.Timeout = 30
			},
			wantErr: "shutdown.timeout",
		},
		{
			name: "bad night period clock",
			mutate: func(c *Config) {
				c.Automation.NightPeriod.Enabled = true
				c.Automation.NightPeriod.Start = "25:00"
			},
			wantErr: "night_period.start",
		},
		{
			name: "live actions without nas host",
			mutate: func(c *Config) {
				c.Automation.ActionsEnabled = true
				c.Devices.NAS.Host = ""
			},
			wantErr: "devices.nas.host",
		},
		{
			name: "proxmox enabled without token",
			mutate: func(c *Config) {
				c.Proxmox.Enabled = true
				c.Proxmox.Host = "https://pve.local:8006"
				c.Proxmox.Node = "pve"
			},
			wantErr: "token_id",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Plex.Host = "http://plex.local:32400"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSeedPeriods(t *testing.T) {
	tests := []struct {
		name   string
		period SeedPeriod
		valid  bool
	}{
		{"daily", SeedPeriod{ID: "p1", Type: "daily", Start: "08:00", End: "22:00"}, true},
		{"weekly", SeedPeriod{ID: "p2", Type: "weekly", Weekdays: []int{0, 6}, Start: "10:00", End: "18:00"}, true},
		{"once", SeedPeriod{ID: "p3", Type: "once", Date: "2026-09-01", Start: "20:00", End: "23:00"}, true},
		{"once spanning midnight", SeedPeriod{ID: "p4", Type: "once", Date: "2026-09-01", Start: "22:00", End: "02:00"}, true},
		{"weekly without weekdays", SeedPeriod{ID: "p5", Type: "weekly", Start: "10:00", End: "18:00"}, false},
		{"weekday out of range", SeedPeriod{ID: "p6", Type: "weekly", Weekdays: []int{7}, Start: "10:00", End: "18:00"}, false},
		{"once with bad date", SeedPeriod{ID: "p7", Type: "once", Date: "01.09.2026", Start: "20:00", End: "23:00"}, false},
		{"unknown type", SeedPeriod{ID: "p8", Type: "monthly", Start: "10:00", End: "18:00"}, false},
		{"bad clock", SeedPeriod{ID: "p9", Type: "daily", Start: "8am", End: "22:00"}, false},
		{"missing id", SeedPeriod{Type: "daily", Start: "08:00", End: "22:00"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSeedPeriod(tt.period)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ─── Duration getters ───────────────────────────────────────────────────────

func TestDurationGetters(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Automation.GetTickInterval().Seconds(); got != 60 {
		t.Errorf("GetTickInterval = %vs, want 60s", got)
	}
	if got := cfg.Automation.GetLead().Minutes(); got != 10 {
		t.Errorf("GetLead = %vm, want 10m", got)
	}
	if got := cfg.Automation.GetLag().Minutes(); got != 15 {
		t.Errorf("GetLag = %vm, want 15m", got)
	}
	if got := cfg.Devices.NAS.GetProbeTimeout().Milliseconds(); got != 1500 {
		t.Errorf("GetProbeTimeout = %vms, want 1500ms", got)
	}
}
