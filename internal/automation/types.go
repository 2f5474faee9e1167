package automation

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of one evaluation of the power pipeline.
type Decision string

const (
	// DecisionKeepRunning: a window, recording, or backup requires the
	// devices to stay powered.
	DecisionKeepRunning Decision = "KEEP_RUNNING"

	// DecisionNoAction: nothing requires power and nothing needs switching.
	DecisionNoAction Decision = "NO_ACTION"

	// DecisionStartRequired: power is required but at least one required
	// device is off or unreachable.
	DecisionStartRequired Decision = "START_REQUIRED_DEVICES"

	// DecisionShutdownNAS: daytime idle; the NAS goes down, the receiver
	// stays available for timers.
	DecisionShutdownNAS Decision = "SHUTDOWN_NAS"

	// DecisionShutdownAll: night-time idle; everything powers down.
	DecisionShutdownAll Decision = "SHUTDOWN_ALL"

	// DecisionErrorDevice: a required device failed to respond to a
	// power action.
	DecisionErrorDevice Decision = "ERROR_REQUIRED_DEVICE"

	// DecisionStartNAS powers the NAS alone. Manual API only, never
	// produced by the tick.
	DecisionStartNAS Decision = "START_NAS"

	// DecisionStartVuPlus powers the satellite receiver alone. Manual API
	// only, never produced by the tick.
	DecisionStartVuPlus Decision = "START_VUPLUS"
)

// State is the controller's coarse operating state.
type State string

const (
	StateInit         State = "INIT"
	StateIdle         State = "IDLE"
	StateDryRun       State = "DRY_RUN"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateNASOff       State = "NAS_OFF"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateError        State = "ERROR"
)

// StateRecord is the persisted singleton controller state.
//
// Since only moves when State actually changes, so it always answers
// "how long have we been in this state".
type StateRecord struct {
	State        State      `json:"state"`
	Since        time.Time  `json:"since"`
	LastTickAt   *time.Time `json:"last_tick_at,omitempty"`
	LastDecision Decision   `json:"last_decision,omitempty"`
	Reason       string     `json:"reason,omitempty"`

	// LastWindow and LastRecording describe what most recently held the
	// devices on, for the status surface.
	LastWindow    *string `json:"last_window,omitempty"`
	LastRecording *string `json:"last_recording,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DecisionEntry is one row of the deduplicated decision log.
//
// Repeats of the same decision, reason, and mode collapse into a single
// entry with a count and a widening first/last span, so an idle week is
// one row instead of ten thousand.
type DecisionEntry struct {
	ID       string    `json:"id"`
	Decision Decision  `json:"decision"`
	Reason   string    `json:"reason"`
	DryRun   bool      `json:"dry_run"`
	Count    int       `json:"count"`
	FirstAt  time.Time `json:"first_at"`
	LastAt   time.Time `json:"last_at"`
}

// Result is what one tick produced.
type Result struct {
	Decision  Decision `json:"decision"`
	Reason    string   `json:"reason"`
	Throttled bool     `json:"throttled"`

	// DurationMS is how long the evaluation took, zero when throttled.
	DurationMS float64 `json:"duration_ms"`
}

// Logger is the minimal logging interface the package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// GenerateID creates a new unique identifier for log entries.
func GenerateID() string {
	return uuid.New().String()
}
