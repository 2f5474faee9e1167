package automation

import (
	"context"
	"errors"
	"time"

	"github.com/dieterch/nas-automation/internal/schedule"
)

// Reconcile recomputes the decision fields of the persisted state from the
// schedule cache and period list after a restart.
//
// The controller may have been down across window edges, so the stored
// decision can be stale. Reconciliation overwrites last_decision and
// reason with a fresh evaluation while preserving the state and its Since
// instant; it touches no device, the next tick does the actual switching.
func (c *Controller) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	var (
		forced Forced
		window *string
	)
	periods, err := c.periods.List(ctx)
	if err != nil {
		return err
	}
	if eval := schedule.Evaluate(now, periods); eval.Active {
		name := eval.Period.DisplayName()
		forced = Forced{Active: true, Reason: eval.Reason}
		window = &name
	}

	recordings, haveCache := c.loadRecordings()
	res := Decide(now, recordings, forced)
	if !haveCache && !forced.Active {
		res = Result{Decision: DecisionNoAction, Reason: reasonNoCache}
	}

	var recording *string
	if !forced.Active {
		for i := range recordings {
			if recordings[i].Covers(now) {
				recording = &recordings[i].Title
				break
			}
		}
	}

	record, err := c.repo.State(ctx)
	if errors.Is(err, ErrStateNotFound) {
		record = &StateRecord{State: StateInit, Since: now.UTC()}
	} else if err != nil {
		return err
	}

	record.LastDecision = res.Decision
	record.Reason = res.Reason
	record.LastWindow = window
	record.LastRecording = recording
	record.UpdatedAt = now.UTC()

	if err := c.repo.SaveState(ctx, record); err != nil {
		return err
	}

	c.logger.Info("state reconciled",
		"state", record.State,
		"decision", res.Decision,
		"reason", res.Reason,
	)
	return nil
}

// SetBackupWindow maintains the auto-generated ON window covering the next
// scheduled backup run. The window is a reserved once period the tick
// purges after it elapses.
func (c *Controller) SetBackupWindow(ctx context.Context, start, end time.Time) error {
	period := schedule.ScheduledPeriod{
		ID:      schedule.AutoPeriodPrefix + "backup",
		Type:    schedule.PeriodOnce,
		Date:    start.Format("2006-01-02"),
		Start:   start.Format("15:04"),
		End:     end.Format("15:04"),
		Enabled: true,
		Label:   "proxmox backup",
	}
	return c.periods.UpsertAuto(ctx, &period)
}
