// Package schedule models the configured ON windows that force the NAS and
// receiver to stay powered.
//
// A ScheduledPeriod is a daily, weekly, or one-off wall-clock window. The
// evaluator resolves the period list against an instant (Evaluate), with
// first-match-wins semantics and midnight rollover for windows whose end
// clock is at or before their start clock.
//
// Periods persist in SQLite through Repository. Two kinds of rows carry
// reserved IDs: "manual" for the operator's override window and "auto-*"
// for windows maintained by sync jobs (such as the Proxmox backup window).
// Elapsed one-off rows of both kinds are purged by the tick.
package schedule
