package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// PeriodType identifies how a scheduled period recurs.
type PeriodType string

// Period types.
const (
	// PeriodDaily repeats every day.
	PeriodDaily PeriodType = "daily"

	// PeriodWeekly repeats on the listed weekdays.
	PeriodWeekly PeriodType = "weekly"

	// PeriodOnce occurs exactly once on a calendar date.
	PeriodOnce PeriodType = "once"
)

// Reserved period IDs. The manual override window and auto-generated
// windows (backup sync) use these so the tick can purge them once elapsed.
const (
	// ManualPeriodID is the ID of the operator's manual override window.
	ManualPeriodID = "manual"

	// AutoPeriodPrefix marks windows maintained by background sync jobs.
	AutoPeriodPrefix = "auto-"
)

// ScheduledPeriod is one configured ON window.
//
// Start and End are "HH:MM" wall-clock times in the controller's local
// timezone. End <= Start means the window spans midnight: a daily
// 22:00-02:00 window is active from 22:00 until 02:00 the next morning,
// and the occurrence belongs to the day it starts on.
type ScheduledPeriod struct {
	ID   string     `json:"id"`
	Type PeriodType `json:"type"`

	// Weekdays lists scheduled days for weekly periods, 0=Sunday through
	// 6=Saturday. Ignored for other types.
	Weekdays []int `json:"weekdays,omitempty"`

	// Date is the calendar date (YYYY-MM-DD, local) for once periods.
	Date string `json:"date,omitempty"`

	Start   string `json:"start"`
	End     string `json:"end"`
	Enabled bool   `json:"enabled"`
	Label   string `json:"label,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// clockPattern matches "HH:MM" wall-clock times.
var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// dateLayout is the calendar date format for once periods.
const dateLayout = "2006-01-02"

// Validate checks the period definition for structural errors.
func (p *ScheduledPeriod) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPeriod)
	}

	switch p.Type {
	case PeriodDaily:
	case PeriodWeekly:
		if len(p.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly period needs at least one weekday", ErrInvalidPeriod)
		}
		for _, d := range p.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: weekday %d out of range 0-6", ErrInvalidPeriod, d)
			}
		}
	case PeriodOnce:
		if _, err := time.ParseInLocation(dateLayout, p.Date, time.Local); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD: %v", ErrInvalidPeriod, err)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPeriod, p.Type)
	}

	if _, err := parseClock(p.Start); err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidPeriod, err)
	}
	if _, err := parseClock(p.End); err != nil {
		return fmt.Errorf("%w: end: %v", ErrInvalidPeriod, err)
	}

	return nil
}

// DisplayName returns the label if set, otherwise the ID.
func (p *ScheduledPeriod) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.ID
}

// IsAuto reports whether the period is maintained by a sync job or the
// manual override endpoint rather than by the operator's schedule.
func (p *ScheduledPeriod) IsAuto() bool {
	if p.ID == ManualPeriodID {
		return true
	}
	return len(p.ID) > len(AutoPeriodPrefix) && p.ID[:len(AutoPeriodPrefix)] == AutoPeriodPrefix
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return hours*60 + minutes, nil
}
