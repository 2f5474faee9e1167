// Package automation is the decision core of the controller.
//
// A periodic tick evaluates a strict priority chain:
//
//  1. A running backup on the virtualisation host pins everything on.
//  2. Scheduled periods (daily, weekly, once), first match wins.
//  3. Recording intervals from the cached Plex schedule, widened by the
//     wake lead and grace lag margins.
//  4. Idle: nothing requires power.
//
// The pure verdict is then refined against live device state (a required
// device that is off turns KEEP_RUNNING into a start, an idle system with
// devices on becomes a shutdown scoped by the night period) and handed to
// the Machine, which drives relays and the SSH shutdown. In dry-run mode,
// the default, the machine logs what it would have done and touches
// nothing.
//
// Every decision lands in a deduplicated log: consecutive identical
// decisions collapse into one entry with a count, so the log reads as a
// history of changes rather than a tick-by-tick transcript.
package automation
