package automation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// relayCyclePause is the off-time in a power-cycle start. Long enough for
// the NAS PSU to drain so the box reliably boots on power-restore.
const relayCyclePause = 2 * time.Second

// PowerRelay drives one smart relay channel.
type PowerRelay interface {
	// Enabled reports whether the relay participates in automation.
	Enabled() bool
	// SetPower switches the channel on or off.
	SetPower(ctx context.Context, on bool) error
	// Power reads the channel's current switch state.
	Power(ctx context.Context) (bool, error)
}

// StorageHost is the NAS itself: reachability and graceful shutdown.
type StorageHost interface {
	// Online reports whether the host answers on its SSH port.
	Online(ctx context.Context) bool
	// Shutdown delivers the graceful halt command.
	Shutdown(ctx context.Context) error
}

// Machine executes decisions against the physical devices and keeps the
// persisted controller state in step.
//
// In dry-run mode (the default) no device is ever touched: decisions are
// logged and the state record shows what would have happened.
//
// Thread Safety: Apply is not safe for concurrent use; the tick serialises
// calls behind its own mutex.
type Machine struct {
	repo     Repository
	nas      StorageHost
	nasRelay PowerRelay
	vuRelay  PowerRelay
	dryRun   bool
	logger   Logger

	// Shutdown confirmation polling, from configuration.
	shutdownPoll    time.Duration
	shutdownTimeout time.Duration

	cyclePause time.Duration
}

// NewMachine creates a decision executor.
//
// dryRun true means log-only operation. The poll and timeout bound the
// wait for the NAS to confirm a graceful shutdown before its relay is cut.
func NewMachine(repo Repository, nas StorageHost, nasRelay, vuRelay PowerRelay, dryRun bool, poll, timeout time.Duration, logger Logger) *Machine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Machine{
		repo:            repo,
		nas:             nas,
		nasRelay:        nasRelay,
		vuRelay:         vuRelay,
		dryRun:          dryRun,
		logger:          logger,
		shutdownPoll:    poll,
		shutdownTimeout: timeout,
		cyclePause:      relayCyclePause,
	}
}

// DryRun reports whether the machine is in log-only mode.
func (m *Machine) DryRun() bool {
	return m.dryRun
}

// Apply executes one decision.
//
// Every decision is written to the deduplicated log first, actions or not.
// NO_ACTION never touches the state record: a quiet system keeps showing
// how long it has been in its current state. window and recording annotate
// the state record with what is holding the devices on (nil closes them).
func (m *Machine) Apply(ctx context.Context, res Result, window, recording *string) error {
	if err := m.repo.LogDecision(ctx, res.Decision, res.Reason, m.dryRun); err != nil {
		m.logger.Error("failed to log decision", "error", err)
		// The decision still executes; losing a log line is recoverable,
		// missing a recording is not.
	}

	if res.Decision == DecisionNoAction {
		return nil
	}

	if m.dryRun {
		m.logger.Info("dry-run decision",
			"decision", res.Decision,
			"reason", res.Reason,
		)
		return m.setState(ctx, StateDryRun, res, window, recording)
	}

	var err error
	switch res.Decision {
	case DecisionKeepRunning:
		err = m.setState(ctx, StateRunning, res, window, recording)

	case DecisionStartRequired:
		if err = m.startNAS(ctx); err == nil {
			err = m.startVuPlus(ctx)
		}
		if err == nil {
			err = m.setState(ctx, StateStarting, res, window, recording)
		}

	case DecisionStartNAS:
		if err = m.startNAS(ctx); err == nil {
			err = m.setState(ctx, StateStarting, res, window, recording)
		}

	case DecisionStartVuPlus:
		if err = m.startVuPlus(ctx); err == nil {
			err = m.setState(ctx, StateStarting, res, window, recording)
		}

	case DecisionShutdownNAS:
		if !m.nas.Online(ctx) {
			// Nothing to shut down; record the quiet outcome instead of a
			// shutdown that never happened.
			m.logger.Debug("nas already offline, shutdown skipped")
			quiet := Result{Decision: DecisionNoAction, Reason: "nas already offline"}
			err = m.setState(ctx, StateIdle, quiet, nil, nil)
			break
		}
		if err = m.shutdownNAS(ctx, res); err == nil {
			err = m.setState(ctx, StateNASOff, res, nil, nil)
		}

	case DecisionShutdownAll:
		// Receiver first: its relay cut is instant and must not wait
		// behind the bounded NAS shutdown, let alone be skipped when the
		// NAS refuses to confirm.
		err = m.stopVuPlus(ctx)
		if nasErr := m.shutdownNAS(ctx, res); nasErr != nil && err == nil {
			err = nasErr
		}
		if err == nil {
			err = m.setState(ctx, StateIdle, res, nil, nil)
		}

	case DecisionErrorDevice:
		err = m.setState(ctx, StateError, res, window, recording)

	default:
		err = fmt.Errorf("unknown decision %q", res.Decision)
	}

	if err != nil {
		if errors.Is(err, ErrShutdownTimeout) {
			// An unconfirmed halt is a routine transient (the box may be
			// mid-update); the state stays SHUTTING_DOWN and the next tick
			// retries. ERROR is reserved for devices that failed to come up.
			m.logger.Warn("nas shutdown not confirmed, retrying next tick",
				"decision", res.Decision,
				"timeout", m.shutdownTimeout,
			)
			return err
		}
		return m.fault(ctx, res, err)
	}
	return nil
}

// fault records a device failure: ERROR_REQUIRED_DEVICE in the log, ERROR
// in the state record, and the original error back to the caller.
func (m *Machine) fault(ctx context.Context, res Result, cause error) error {
	m.logger.Error("decision execution failed",
		"decision", res.Decision,
		"reason", res.Reason,
		"error", cause,
	)

	faultRes := Result{Decision: DecisionErrorDevice, Reason: cause.Error()}
	if logErr := m.repo.LogDecision(ctx, faultRes.Decision, faultRes.Reason, m.dryRun); logErr != nil {
		m.logger.Error("failed to log device fault", "error", logErr)
	}
	if stateErr := m.setState(ctx, StateError, faultRes, nil, nil); stateErr != nil {
		m.logger.Error("failed to persist error state", "error", stateErr)
	}
	return cause
}

// startNAS powers the NAS on through its relay.
//
// The relay is cycled off-pause-on, and only when the box is confirmed
// unreachable: cycling a live NAS would hard-cut a running filesystem.
func (m *Machine) startNAS(ctx context.Context) error {
	if m.nas.Online(ctx) {
		m.logger.Debug("nas already online, start skipped")
		return nil
	}
	if m.nasRelay == nil || !m.nasRelay.Enabled() {
		m.logger.Warn("nas start required but relay not enabled")
		return nil
	}

	if err := m.nasRelay.SetPower(ctx, false); err != nil {
		return fmt.Errorf("nas relay off: %w", err)
	}
	select {
	case <-time.After(m.cyclePause):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := m.nasRelay.SetPower(ctx, true); err != nil {
		return fmt.Errorf("nas relay on: %w", err)
	}

	m.logger.Info("nas power-cycled on")
	return nil
}

func (m *Machine) startVuPlus(ctx context.Context) error {
	if m.vuRelay == nil || !m.vuRelay.Enabled() {
		return nil
	}
	if err := m.vuRelay.SetPower(ctx, true); err != nil {
		return fmt.Errorf("receiver relay on: %w", err)
	}
	m.logger.Info("receiver powered on")
	return nil
}

func (m *Machine) stopVuPlus(ctx context.Context) error {
	if m.vuRelay == nil || !m.vuRelay.Enabled() {
		return nil
	}
	if err := m.vuRelay.SetPower(ctx, false); err != nil {
		return fmt.Errorf("receiver relay off: %w", err)
	}
	m.logger.Info("receiver powered off")
	return nil
}

// shutdownNAS takes the NAS down gracefully and cuts its relay only once
// the box has confirmed it is gone.
func (m *Machine) shutdownNAS(ctx context.Context, res Result) error {
	if !m.nas.Online(ctx) {
		m.logger.Debug("nas already offline, shutdown skipped")
		return nil
	}

	if err := m.setState(ctx, StateShuttingDown, res, nil, nil); err != nil {
		m.logger.Error("failed to persist shutting-down state", "error", err)
	}

	if err := m.nas.Shutdown(ctx); err != nil {
		return err
	}

	if err := m.awaitOffline(ctx); err != nil {
		return err
	}

	if m.nasRelay != nil && m.nasRelay.Enabled() {
		if err := m.nasRelay.SetPower(ctx, false); err != nil {
			return fmt.Errorf("nas relay off: %w", err)
		}
	}

	m.logger.Info("nas shut down and powered off")
	return nil
}

// awaitOffline polls reachability until the NAS drops or the budget runs
// out. The relay must never be cut while the box still answers.
func (m *Machine) awaitOffline(ctx context.Context) error {
	deadline := time.Now().Add(m.shutdownTimeout)
	for {
		if !m.nas.Online(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrShutdownTimeout
		}

		select {
		case <-time.After(m.shutdownPoll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setState persists the controller state, moving Since only on an actual
// transition.
func (m *Machine) setState(ctx context.Context, next State, res Result, window, recording *string) error {
	now := time.Now().UTC()

	record, err := m.repo.State(ctx)
	if err != nil {
		record = &StateRecord{State: StateInit, Since: now}
	}

	if record.State != next {
		record.Since = now
	}
	record.State = next
	record.LastDecision = res.Decision
	record.Reason = res.Reason
	record.LastWindow = window
	record.LastRecording = recording
	record.UpdatedAt = now

	return m.repo.SaveState(ctx, record)
}
