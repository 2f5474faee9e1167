package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("NASAUTO_CONFIG")
	defer os.Setenv("NASAUTO_CONFIG", originalEnv)

	os.Setenv("NASAUTO_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

plex:
  host: "http://127.0.0.1:32400"
  token: "test-token"
  refresh_interval: 300
  cache_path: "` + filepath.Join(tmpDir, "schedule.json") + `"

automation:
  actions_enabled: false

mqtt:
  enabled: false

influxdb:
  enabled: false

proxmox:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: 4800
  timeouts:
    read: 30
    write: 60
    idle: 120
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NASAUTO_CONFIG")
	defer os.Setenv("NASAUTO_CONFIG", originalEnv)
	os.Setenv("NASAUTO_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SuccessfulStartupAndShutdown boots the daemon in dry-run with the
// optional services disabled and shuts it down via context cancellation.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
site:
  id: test-site

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

plex:
  host: "http://127.0.0.1:32400"
  token: "test-token"
  refresh_interval: 300
  cache_path: "` + filepath.Join(tmpDir, "schedule.json") + `"

automation:
  actions_enabled: false
  tick_interval: 60
  lead_minutes: 10
  lag_minutes: 15
  night_period:
    enabled: true
    start: "23:30"
    end: "06:00"
  seed_periods:
    - id: evening
      type: daily
      start: "18:00"
      end: "22:00"
      enabled: true
      label: "evening viewing"

mqtt:
  enabled: false

influxdb:
  enabled: false

proxmox:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: 48931
  timeouts:
    read: 30
    write: 60
    idle: 120
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("NASAUTO_CONFIG")
	defer os.Setenv("NASAUTO_CONFIG", originalEnv)
	os.Setenv("NASAUTO_CONFIG", configPath)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()

	// Give the daemon a moment to come up, then signal shutdown.
	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not shut down within 10s")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("NASAUTO_CONFIG")
	defer os.Setenv("NASAUTO_CONFIG", originalEnv)

	os.Unsetenv("NASAUTO_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("NASAUTO_CONFIG")
	defer os.Setenv("NASAUTO_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("NASAUTO_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
