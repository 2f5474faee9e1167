package automation

import (
	"time"

	"github.com/dieterch/nas-automation/internal/plex"
)

// Reasons stay byte-stable so the decision log deduplicates consecutive
// ticks into a single entry. The recording title goes on the state record
// instead, where it cannot split the log per show.
const (
	reasonIdle      = "idle"
	reasonRecording = "recording or grace after recording"
)

// Forced is an externally imposed keep-on requirement that outranks the
// recording schedule: a running backup or an active scheduled window.
type Forced struct {
	Active bool
	Reason string
}

// Decide evaluates the priority chain against an instant.
//
// Priority order: forced requirement, then any recording interval covering
// now, then idle. The first hit wins; recordings are never consulted while
// a forced requirement is active.
func Decide(now time.Time, recordings []plex.RecordingInterval, forced Forced) Result {
	if forced.Active {
		return Result{Decision: DecisionKeepRunning, Reason: forced.Reason}
	}

	for _, rec := range recordings {
		if rec.Covers(now) {
			return Result{Decision: DecisionKeepRunning, Reason: reasonRecording}
		}
	}

	return Result{Decision: DecisionNoAction, Reason: reasonIdle}
}
