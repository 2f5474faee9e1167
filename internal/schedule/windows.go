package schedule

import (
	"fmt"
	"time"
)

// Evaluation is the result of checking the period list against an instant.
type Evaluation struct {
	// Active reports whether any enabled period covers the instant.
	Active bool

	// Reason describes the match for logging and the decision trail.
	Reason string

	// Period is the matching period, nil when inactive.
	Period *ScheduledPeriod
}

// Evaluate checks whether now falls inside any enabled scheduled period.
//
// Periods are checked in list order and the first match wins; overlapping
// windows never combine. Invalid periods are skipped rather than failing
// the whole evaluation, since one corrupt row must not stop the tick.
func Evaluate(now time.Time, periods []ScheduledPeriod) Evaluation {
	for i := range periods {
		p := &periods[i]
		if !p.Enabled {
			continue
		}
		start, end, ok := Occurrence(*p, now)
		if !ok {
			continue
		}
		if !now.Before(start) && now.Before(end) {
			return Evaluation{
				Active: true,
				Reason: fmt.Sprintf("scheduled window %s (%s-%s)", p.DisplayName(), p.Start, p.End),
				Period: p,
			}
		}
	}
	return Evaluation{}
}

// Occurrence resolves the zero-or-one concrete occurrence of a period
// relevant to the reference instant.
//
// For daily and weekly periods the occurrence is anchored on the day the
// window starts: during the after-midnight tail of a spanning window the
// anchor is the previous day, so a Monday 22:00-02:00 weekly window is
// still matched at Tuesday 01:30. For once periods the occurrence is
// anchored on the configured date regardless of ref.
//
// ok is false when the period has no occurrence for ref (weekly window on
// a non-scheduled day, once window with an unparseable date) or when the
// clock fields are invalid.
func Occurrence(p ScheduledPeriod, ref time.Time) (start, end time.Time, ok bool) {
	startMin, err := parseClock(p.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endMin, err := parseClock(p.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	spansMidnight := endMin <= startMin

	switch p.Type {
	case PeriodOnce:
		day, parseErr := time.ParseInLocation(dateLayout, p.Date, ref.Location())
		if parseErr != nil {
			return time.Time{}, time.Time{}, false
		}
		start, end = concreteWindow(day, startMin, endMin, spansMidnight)
		return start, end, true

	case PeriodDaily, PeriodWeekly:
		anchor := dayOf(ref)
		// In the after-midnight tail the occurrence started yesterday.
		if spansMidnight && minutesOfDay(ref) < endMin {
			anchor = anchor.AddDate(0, 0, -1)
		}
		if p.Type == PeriodWeekly && !containsWeekday(p.Weekdays, anchor.Weekday()) {
			return time.Time{}, time.Time{}, false
		}
		start, end = concreteWindow(anchor, startMin, endMin, spansMidnight)
		return start, end, true

	default:
		return time.Time{}, time.Time{}, false
	}
}

// NextOccurrence finds the earliest occurrence of the period that is still
// ongoing or upcoming at ref, searching up to eight days ahead. Used by the
// timeline and status surfaces.
func NextOccurrence(p ScheduledPeriod, ref time.Time) (start, end time.Time, ok bool) {
	startMin, err := parseClock(p.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endMin, err := parseClock(p.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	spansMidnight := endMin <= startMin

	if p.Type == PeriodOnce {
		start, end, ok = Occurrence(p, ref)
		if !ok || !end.After(ref) {
			return time.Time{}, time.Time{}, false
		}
		return start, end, true
	}

	// The search starts a day back so the tail of a spanning window that
	// began yesterday is still reported as ongoing.
	for offset := -1; offset <= 7; offset++ {
		anchor := dayOf(ref).AddDate(0, 0, offset)
		if p.Type == PeriodWeekly && !containsWeekday(p.Weekdays, anchor.Weekday()) {
			continue
		}
		start, end = concreteWindow(anchor, startMin, endMin, spansMidnight)
		if end.After(ref) {
			return start, end, true
		}
	}
	return time.Time{}, time.Time{}, false
}

// concreteWindow builds the absolute interval for a window anchored on day.
func concreteWindow(day time.Time, startMin, endMin int, spansMidnight bool) (start, end time.Time) {
	start = day.Add(time.Duration(startMin) * time.Minute)
	endDay := day
	if spansMidnight {
		endDay = day.AddDate(0, 0, 1)
	}
	end = endDay.Add(time.Duration(endMin) * time.Minute)
	return start, end
}

// dayOf returns midnight of t's calendar day in t's location.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// minutesOfDay returns t's wall-clock position in minutes since midnight.
func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// containsWeekday reports whether days (0=Sunday) includes d.
func containsWeekday(days []int, d time.Weekday) bool {
	for _, day := range days {
		if day == int(d) {
			return true
		}
	}
	return false
}
