package plex

import (
	"fmt"
	"time"
)

// unknownTitle is used when a grab operation carries no usable title.
const unknownTitle = "Unknown recording"

// RecordingInterval is one upcoming or in-progress recording, widened by
// the controller's wake and grace margins.
//
// The devices must be powered from WakeAt and may not shut down before
// GraceOffAt. RecordStart/RecordEnd are the actual recorded slot including
// the Plex start/end offsets.
type RecordingInterval struct {
	Title       string    `json:"title"`
	RecordStart time.Time `json:"recordStart"`
	RecordEnd   time.Time `json:"recordEnd"`
	WakeAt      time.Time `json:"wakeAt"`
	GraceOffAt  time.Time `json:"graceOffAt"`
}

// Covers reports whether the devices must be powered at the instant,
// counting the post-recording grace tail.
func (r RecordingInterval) Covers(now time.Time) bool {
	return !now.Before(r.WakeAt) && now.Before(r.GraceOffAt)
}

// BuildInterval derives a RecordingInterval from one grab operation.
//
// Entries without broadcast epochs are dropped (ok false) rather than
// failing the whole payload: one malformed entry must not take the
// schedule down. Offsets default to zero when absent.
func BuildInterval(entry MediaGrabOperation, lead, lag time.Duration) (RecordingInterval, bool) {
	if len(entry.Metadata.Media) == 0 {
		return RecordingInterval{}, false
	}
	media := entry.Metadata.Media[0]
	if media.BeginsAt == 0 || media.EndsAt == 0 {
		return RecordingInterval{}, false
	}

	recordStart := time.Unix(media.BeginsAt-media.StartOffsetSeconds, 0)
	recordEnd := time.Unix(media.EndsAt+media.EndOffsetSeconds, 0)

	return RecordingInterval{
		Title:       entryTitle(entry.Metadata),
		RecordStart: recordStart,
		RecordEnd:   recordEnd,
		WakeAt:      recordStart.Add(-lead),
		GraceOffAt:  recordEnd.Add(lag),
	}, true
}

// BuildIntervals converts a payload into intervals, dropping entries the
// builder rejects.
func BuildIntervals(payload *RawSchedulePayload, lead, lag time.Duration) []RecordingInterval {
	entries := payload.Entries()
	intervals := make([]RecordingInterval, 0, len(entries))
	for _, entry := range entries {
		if interval, ok := BuildInterval(entry, lead, lag); ok {
			intervals = append(intervals, interval)
		}
	}
	return intervals
}

// CountRelevant returns how many entries still matter at now: buildable
// entries whose grace-off instant has not passed. Used by the cache guard.
func CountRelevant(payload *RawSchedulePayload, now time.Time, lead, lag time.Duration) int {
	count := 0
	for _, entry := range payload.Entries() {
		if interval, ok := BuildInterval(entry, lead, lag); ok && interval.GraceOffAt.After(now) {
			count++
		}
	}
	return count
}

// entryTitle builds a display title for the decision trail.
// Episodes get "Series SxxEyy Episode Title"; anything else uses its own
// title, falling back to a fixed placeholder.
func entryTitle(meta Metadata) string {
	if meta.Type == "episode" && meta.GrandparentTitle != "" {
		title := fmt.Sprintf("%s S%02dE%02d", meta.GrandparentTitle, meta.ParentIndex, meta.Index)
		if meta.Title != "" {
			title += " " + meta.Title
		}
		return title
	}
	if meta.Title != "" {
		return meta.Title
	}
	return unknownTitle
}
