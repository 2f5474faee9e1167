package plex

import (
	"testing"
	"time"
)

const (
	lead = 10 * time.Minute
	lag  = 15 * time.Minute
)

// grabAt builds a grab operation broadcasting between the given instants.
func grabAt(begins, ends time.Time) MediaGrabOperation {
	return MediaGrabOperation{
		Type: "grab",
		Metadata: Metadata{
			Title: "News at Ten",
			Type:  "movie",
			Media: []Media{{BeginsAt: begins.Unix(), EndsAt: ends.Unix()}},
		},
	}
}

func TestBuildIntervalMargins(t *testing.T) {
	begins := time.Date(2026, 8, 28, 10, 0, 0, 0, time.Local)
	ends := time.Date(2026, 8, 28, 11, 0, 0, 0, time.Local)

	interval, ok := BuildInterval(grabAt(begins, ends), lead, lag)
	if !ok {
		t.Fatal("expected interval")
	}

	if want := begins.Add(-10 * time.Minute); !interval.WakeAt.Equal(want) {
		t.Errorf("WakeAt = %v, want %v (09:50)", interval.WakeAt, want)
	}
	if want := ends.Add(15 * time.Minute); !interval.GraceOffAt.Equal(want) {
		t.Errorf("GraceOffAt = %v, want %v (11:15)", interval.GraceOffAt, want)
	}
	if !interval.RecordStart.Equal(begins) || !interval.RecordEnd.Equal(ends) {
		t.Errorf("record slot %v-%v, want broadcast slot", interval.RecordStart, interval.RecordEnd)
	}
}

func TestBuildIntervalOffsets(t *testing.T) {
	begins := time.Date(2026, 8, 28, 10, 0, 0, 0, time.Local)
	ends := time.Date(2026, 8, 28, 11, 0, 0, 0, time.Local)

	entry := grabAt(begins, ends)
	entry.Metadata.Media[0].StartOffsetSeconds = 120
	entry.Metadata.Media[0].EndOffsetSeconds = 300

	interval, ok := BuildInterval(entry, lead, lag)
	if !ok {
		t.Fatal("expected interval")
	}
	if want := begins.Add(-2 * time.Minute); !interval.RecordStart.Equal(want) {
		t.Errorf("RecordStart = %v, want %v", interval.RecordStart, want)
	}
	if want := ends.Add(5 * time.Minute); !interval.RecordEnd.Equal(want) {
		t.Errorf("RecordEnd = %v, want %v", interval.RecordEnd, want)
	}
}

func TestBuildIntervalDropsUntimedEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry MediaGrabOperation
	}{
		{"no media", MediaGrabOperation{Metadata: Metadata{Title: "x"}}},
		{"missing beginsAt", MediaGrabOperation{Metadata: Metadata{Media: []Media{{EndsAt: 1790000000}}}}},
		{"missing endsAt", MediaGrabOperation{Metadata: Metadata{Media: []Media{{BeginsAt: 1790000000}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := BuildInterval(tt.entry, lead, lag); ok {
				t.Error("entry without broadcast epochs must be dropped")
			}
		})
	}
}

func TestEntryTitle(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
		want string
	}{
		{
			"episode with full naming",
			Metadata{Type: "episode", GrandparentTitle: "Tatort", ParentIndex: 54, Index: 3, Title: "Letzte Worte"},
			"Tatort S54E03 Letzte Worte",
		},
		{
			"episode without own title",
			Metadata{Type: "episode", GrandparentTitle: "Tatort", ParentIndex: 54, Index: 3},
			"Tatort S54E03",
		},
		{
			"movie",
			Metadata{Type: "movie", Title: "Heat"},
			"Heat",
		},
		{
			"nothing usable",
			Metadata{},
			"Unknown recording",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryTitle(tt.meta); got != tt.want {
				t.Errorf("entryTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoversIncludesGraceTail(t *testing.T) {
	begins := time.Date(2026, 8, 28, 10, 0, 0, 0, time.Local)
	ends := time.Date(2026, 8, 28, 11, 0, 0, 0, time.Local)
	interval, _ := BuildInterval(grabAt(begins, ends), lead, lag)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before wake", begins.Add(-11 * time.Minute), false},
		{"at wake", begins.Add(-10 * time.Minute), true},
		{"during recording", begins.Add(30 * time.Minute), true},
		{"in grace tail", ends.Add(14 * time.Minute), true},
		{"at grace end", ends.Add(15 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interval.Covers(tt.now); got != tt.want {
				t.Errorf("Covers(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestCountRelevant(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	payload := &RawSchedulePayload{MediaContainer: MediaContainer{
		MediaGrabOperation: []MediaGrabOperation{
			grabAt(now.Add(-3*time.Hour), now.Add(-2*time.Hour)), // elapsed
			grabAt(now.Add(time.Hour), now.Add(2*time.Hour)),     // upcoming
			{Metadata: Metadata{Title: "untimed"}},               // dropped
		},
	}}

	if got := CountRelevant(payload, now, lead, lag); got != 1 {
		t.Errorf("CountRelevant = %d, want 1", got)
	}
}
