package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dieterch/nas-automation/internal/infrastructure/mqtt"
	"github.com/dieterch/nas-automation/internal/plex"
	"github.com/dieterch/nas-automation/internal/schedule"
)

// reasonNoCache is logged when the tick runs before any schedule has ever
// been fetched. Without recording knowledge no shutdown is safe, so the
// tick stands down instead of guessing.
const reasonNoCache = "no plex cache"

// BackupChecker reports backup activity on the virtualisation host.
type BackupChecker interface {
	BackupRunning(ctx context.Context) (bool, error)
}

// ScheduleCache provides the last accepted recording schedule.
type ScheduleCache interface {
	Load() (*plex.Snapshot, error)
}

// Publisher is the interface for pushing tick events to MQTT.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Metrics is the interface for recording tick measurements.
type Metrics interface {
	WriteDecision(decision, reason string, dryRun bool)
	WriteTickDuration(durationMS float64, throttled bool)
	WriteDevicePower(device string, on bool)
}

// Controller runs the periodic evaluation pipeline.
//
// Each tick walks the priority chain (backup, scheduled windows, recording
// intervals, idle), refines the verdict against live device state, and
// hands the result to the machine. Ticks arriving faster than the
// configured interval are throttled with no side effects, so the cron
// timer, a systemd watchdog, and the manual API can all fire ticks without
// stacking actions.
//
// Thread Safety: Tick is safe for concurrent use; evaluations serialise
// behind a mutex.
type Controller struct {
	repo    Repository
	periods schedule.Repository
	cache   ScheduleCache
	machine *Machine
	logger  Logger

	// Device reads for the refinement step. backup may be nil when the
	// backup system check is disabled.
	nas     StorageHost
	vuRelay PowerRelay
	backup  BackupChecker

	// Optional event sinks.
	publisher Publisher
	metrics   Metrics

	tickInterval time.Duration
	lead         time.Duration
	lag          time.Duration

	nightEnabled bool
	nightStart   string
	nightEnd     string

	mu  sync.Mutex
	now func() time.Time
}

// ControllerOptions bundles the dependencies and tuning for a Controller.
type ControllerOptions struct {
	Repo    Repository
	Periods schedule.Repository
	Cache   ScheduleCache
	Machine *Machine
	Logger  Logger

	NAS     StorageHost
	VuRelay PowerRelay
	Backup  BackupChecker

	Publisher Publisher
	Metrics   Metrics

	TickInterval time.Duration
	Lead         time.Duration
	Lag          time.Duration

	NightEnabled bool
	NightStart   string
	NightEnd     string
}

// NewController creates the tick controller.
func NewController(opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		repo:         opts.Repo,
		periods:      opts.Periods,
		cache:        opts.Cache,
		machine:      opts.Machine,
		logger:       logger,
		nas:          opts.NAS,
		vuRelay:      opts.VuRelay,
		backup:       opts.Backup,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		tickInterval: opts.TickInterval,
		lead:         opts.Lead,
		lag:          opts.Lag,
		nightEnabled: opts.NightEnabled,
		nightStart:   opts.NightStart,
		nightEnd:     opts.NightEnd,
		now:          time.Now,
	}
}

// Tick runs one evaluation of the pipeline.
//
// A tick inside the throttle interval returns Throttled=true and does
// nothing else. Otherwise the decision is evaluated, executed, logged,
// and published; the returned Result is what happened.
func (c *Controller) Tick(ctx context.Context) (Result, error) {
	return c.tick(ctx, false)
}

// TickNow runs one evaluation bypassing the throttle. An operator who
// just opened a manual window expects the devices to react immediately,
// not after the remainder of the tick interval.
func (c *Controller) TickNow(ctx context.Context) (Result, error) {
	return c.tick(ctx, true)
}

func (c *Controller) tick(ctx context.Context, force bool) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	record, err := c.repo.State(ctx)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return Result{}, err
	}
	if !force && record != nil && record.LastTickAt != nil && now.Sub(*record.LastTickAt) < c.tickInterval {
		c.logger.Debug("tick throttled",
			"last_tick_at", record.LastTickAt,
			"interval", c.tickInterval,
		)
		if c.metrics != nil {
			c.metrics.WriteTickDuration(0, true)
		}
		return Result{Throttled: true}, nil
	}

	// Stamp before evaluating so a slow tick still throttles the next one.
	if err := c.repo.TouchTick(ctx, now); err != nil {
		c.logger.Error("failed to stamp tick", "error", err)
	}

	started := time.Now()
	res, applyErr := c.evaluate(ctx, now)
	res.DurationMS = float64(time.Since(started).Microseconds()) / 1000.0

	c.publish(res)
	if applyErr == nil {
		c.publishDevicePower(res.Decision)
	}
	c.publishState(ctx)

	if purged, purgeErr := c.periods.PurgeElapsed(ctx, now); purgeErr != nil {
		c.logger.Error("failed to purge elapsed periods", "error", purgeErr)
	} else if purged > 0 {
		c.logger.Info("purged elapsed periods", "count", purged)
	}

	return res, applyErr
}

// Execute runs a single decision outside the tick pipeline, serialised
// with it. Used by the manual API for operator-triggered device starts.
func (c *Controller) Execute(ctx context.Context, decision Decision, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Decision: decision, Reason: reason}
	c.logger.Info("manual decision", "decision", decision, "reason", reason)
	err := c.machine.Apply(ctx, res, nil, nil)
	if err == nil {
		c.publishDevicePower(decision)
	}
	c.publishState(ctx)
	return err
}

// evaluate walks the priority chain and executes the verdict.
func (c *Controller) evaluate(ctx context.Context, now time.Time) (Result, error) {
	forced, window := c.forcedRequirement(ctx, now)

	recordings, haveCache := c.loadRecordings()
	if !haveCache && !forced.Active {
		res := Result{Decision: DecisionNoAction, Reason: reasonNoCache}
		c.logger.Warn("tick without schedule cache, standing down")
		if err := c.machine.Apply(ctx, res, nil, nil); err != nil {
			return res, err
		}
		return res, ErrNoScheduleCache
	}

	res := Decide(now, recordings, forced)

	var recording *string
	if !forced.Active {
		for i := range recordings {
			if recordings[i].Covers(now) {
				recording = &recordings[i].Title
				break
			}
		}
	}

	res = c.refine(ctx, now, res)

	c.logger.Info("tick decision",
		"decision", res.Decision,
		"reason", res.Reason,
		"dry_run", c.machine.DryRun(),
	)

	return res, c.machine.Apply(ctx, res, window, recording)
}

// forcedRequirement checks the two keep-on sources that outrank the
// recording schedule: a running backup, then the scheduled windows.
func (c *Controller) forcedRequirement(ctx context.Context, now time.Time) (Forced, *string) {
	if c.backup != nil {
		running, err := c.backup.BackupRunning(ctx)
		if err != nil {
			// An unreadable backup system must not pin the NAS on forever,
			// and must not shut it down mid-backup either; the schedule
			// decides, the failure is logged.
			c.logger.Warn("backup check failed", "error", err)
		} else if running {
			return Forced{Active: true, Reason: "backup running"}, nil
		}
	}

	periods, err := c.periods.List(ctx)
	if err != nil {
		c.logger.Error("failed to list periods", "error", err)
		return Forced{}, nil
	}

	eval := schedule.Evaluate(now, periods)
	if eval.Active {
		name := eval.Period.DisplayName()
		return Forced{Active: true, Reason: eval.Reason}, &name
	}
	return Forced{}, nil
}

// loadRecordings builds recording intervals from the schedule cache.
// haveCache is false only when no snapshot has ever been accepted.
func (c *Controller) loadRecordings() ([]plex.RecordingInterval, bool) {
	snap, err := c.cache.Load()
	if err != nil {
		if errors.Is(err, plex.ErrNoScheduleCache) {
			return nil, false
		}
		c.logger.Error("failed to load schedule cache", "error", err)
		return nil, false
	}
	return plex.BuildIntervals(snap.Data, c.lead, c.lag), true
}

// refine adjusts the pure decision against live device state.
//
// KEEP_RUNNING with a required device off becomes a start; an idle system
// with devices still on becomes the appropriate shutdown, scoped by the
// night period.
func (c *Controller) refine(ctx context.Context, now time.Time, res Result) Result {
	switch res.Decision {
	case DecisionKeepRunning:
		if !c.nas.Online(ctx) {
			return Result{Decision: DecisionStartRequired, Reason: res.Reason}
		}
		if c.vuRelay != nil && c.vuRelay.Enabled() {
			on, err := c.vuRelay.Power(ctx)
			if err != nil {
				c.logger.Warn("receiver power read failed", "error", err)
			} else if !on {
				return Result{Decision: DecisionStartRequired, Reason: res.Reason}
			}
		}
		return res

	case DecisionNoAction:
		nasOnline := c.nas.Online(ctx)
		vuOn := false
		if c.vuRelay != nil && c.vuRelay.Enabled() {
			on, err := c.vuRelay.Power(ctx)
			if err != nil {
				c.logger.Warn("receiver power read failed", "error", err)
			} else {
				vuOn = on
			}
		}

		if c.inNight(now) {
			if nasOnline || vuOn {
				return Result{Decision: DecisionShutdownAll, Reason: "idle (night)"}
			}
			return res
		}
		// Daytime idle only takes the NAS down; the receiver stays
		// available for its own timers.
		if nasOnline {
			return Result{Decision: DecisionShutdownNAS, Reason: "idle (day)"}
		}
		return res

	default:
		return res
	}
}

// inNight reports whether now falls inside the configured night period.
// The night clocks behave like a daily window, midnight rollover included.
func (c *Controller) inNight(now time.Time) bool {
	if !c.nightEnabled {
		return false
	}
	night := schedule.ScheduledPeriod{
		Type:  schedule.PeriodDaily,
		Start: c.nightStart,
		End:   c.nightEnd,
	}
	start, end, ok := schedule.Occurrence(night, now)
	if !ok {
		return false
	}
	return !now.Before(start) && now.Before(end)
}

// publish pushes the tick outcome to the optional event sinks.
func (c *Controller) publish(res Result) {
	if c.metrics != nil {
		c.metrics.WriteTickDuration(res.DurationMS, res.Throttled)
		c.metrics.WriteDecision(string(res.Decision), res.Reason, c.machine.DryRun())
	}

	if c.publisher != nil {
		payload, err := json.Marshal(map[string]any{
			"decision": res.Decision,
			"reason":   res.Reason,
			"dry_run":  c.machine.DryRun(),
			"at":       time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			c.logger.Error("failed to marshal decision event", "error", err)
			return
		}
		topics := mqtt.Topics{}
		if err := c.publisher.Publish(topics.Decision(), payload, 1, false); err != nil {
			c.logger.Warn("failed to publish decision event", "error", err)
		}
	}
}

// powerEvent is one device power transition implied by a decision.
type powerEvent struct {
	device string
	on     bool
}

// powerEvents maps an executed decision to the transitions it performed.
func powerEvents(decision Decision) []powerEvent {
	switch decision {
	case DecisionStartRequired:
		return []powerEvent{{"nas", true}, {"vuplus", true}}
	case DecisionStartNAS:
		return []powerEvent{{"nas", true}}
	case DecisionStartVuPlus:
		return []powerEvent{{"vuplus", true}}
	case DecisionShutdownNAS:
		return []powerEvent{{"nas", false}}
	case DecisionShutdownAll:
		return []powerEvent{{"nas", false}, {"vuplus", false}}
	default:
		return nil
	}
}

// publishDevicePower emits the per-device power transitions an executed
// decision performed. Dry-run ticks change nothing, so they emit nothing.
func (c *Controller) publishDevicePower(decision Decision) {
	if c.machine.DryRun() {
		return
	}

	topics := mqtt.Topics{}
	for _, ev := range powerEvents(decision) {
		if c.metrics != nil {
			c.metrics.WriteDevicePower(ev.device, ev.on)
		}
		if c.publisher == nil {
			continue
		}
		payload, err := json.Marshal(map[string]any{
			"on": ev.on,
			"at": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			continue
		}
		if err := c.publisher.Publish(topics.DevicePower(ev.device), payload, 1, true); err != nil {
			c.logger.Warn("failed to publish device power event",
				"device", ev.device, "error", err)
		}
	}
}

// publishState pushes the current state record to its retained topic so
// dashboards see the controller state on subscribe.
func (c *Controller) publishState(ctx context.Context) {
	if c.publisher == nil {
		return
	}

	record, err := c.repo.State(ctx)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			c.logger.Error("failed to read state for publishing", "error", err)
		}
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		c.logger.Error("failed to marshal state event", "error", err)
		return
	}
	topics := mqtt.Topics{}
	if err := c.publisher.Publish(topics.State(), payload, 1, true); err != nil {
		c.logger.Warn("failed to publish state event", "error", err)
	}
}
