package plex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(filepath.Join(t.TempDir(), "plex-scheduled.json"), lead, lag)
}

func payloadWith(entries ...MediaGrabOperation) *RawSchedulePayload {
	return &RawSchedulePayload{MediaContainer: MediaContainer{
		Size:               len(entries),
		MediaGrabOperation: entries,
	}}
}

func TestCacheLoadMissing(t *testing.T) {
	cache := newTestCache(t)

	if _, err := cache.Load(); !errors.Is(err, ErrNoScheduleCache) {
		t.Errorf("Load error = %v, want ErrNoScheduleCache", err)
	}
}

func TestCacheAcceptAndLoad(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	payload := payloadWith(grabAt(now.Add(time.Hour), now.Add(2*time.Hour)))

	if err := cache.Accept(payload, now); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	snap, err := cache.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.LastSuccessfulFetch.Equal(now) {
		t.Errorf("LastSuccessfulFetch = %v, want %v", snap.LastSuccessfulFetch, now)
	}
	if len(snap.Data.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(snap.Data.Entries()))
	}
}

func TestCacheGuardRejectsIrrelevantPayload(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	// Seed the cache with a relevant upcoming recording.
	if err := cache.Accept(payloadWith(grabAt(now.Add(time.Hour), now.Add(2*time.Hour))), now); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	// A well-formed payload with zero still-relevant entries must not
	// replace it.
	elapsed := payloadWith(grabAt(now.Add(-3*time.Hour), now.Add(-2*time.Hour)))
	err := cache.Accept(elapsed, now)
	if !errors.Is(err, ErrStalePayload) {
		t.Fatalf("Accept error = %v, want ErrStalePayload", err)
	}

	snap, err := cache.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Data.Entries()) != 1 {
		t.Error("rejected payload must leave the cache untouched")
	}
}

func TestCacheGuardRejectsMalformedPayload(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		payload *RawSchedulePayload
	}{
		{"no entries", payloadWith()},
		{"entry without timing", payloadWith(MediaGrabOperation{
			Metadata: Metadata{Title: "Broken"},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cache.Accept(tt.payload, now); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Accept error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestCacheGuardAcceptsShrinkingPayload(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	two := payloadWith(
		grabAt(now.Add(time.Hour), now.Add(2*time.Hour)),
		grabAt(now.Add(3*time.Hour), now.Add(4*time.Hour)),
	)
	if err := cache.Accept(two, now); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	// One recording completed and dropped off; the shrink is legitimate.
	one := payloadWith(grabAt(now.Add(3*time.Hour), now.Add(4*time.Hour)))
	if err := cache.Accept(one, now); err != nil {
		t.Fatalf("Accept shrinking payload: %v", err)
	}

	snap, _ := cache.Load()
	if len(snap.Data.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(snap.Data.Entries()))
	}
}

func TestCacheGuardRejectsBareContainerOverElapsedCache(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	// Cache holds a recording that has since elapsed.
	if err := cache.Accept(payloadWith(grabAt(now.Add(-3*time.Hour), now.Add(-2*time.Hour))), now.Add(-4*time.Hour)); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	// A bare container is malformed regardless of what the cache holds;
	// the relevance comparison never gets a say.
	if err := cache.Accept(payloadWith(), now); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Accept error = %v, want ErrInvalidPayload", err)
	}

	snap, err := cache.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Data.Entries()) != 1 {
		t.Error("malformed payload must leave the cache untouched")
	}
}

func TestCacheSanitisesElapsedEntries(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)

	payload := payloadWith(
		grabAt(now.Add(-3*time.Hour), now.Add(-2*time.Hour)), // fully elapsed
		grabAt(now.Add(time.Hour), now.Add(2*time.Hour)),
	)
	if err := cache.Accept(payload, now); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	snap, _ := cache.Load()
	if len(snap.Data.Entries()) != 1 {
		t.Errorf("entries after sanitising = %d, want 1", len(snap.Data.Entries()))
	}
	if snap.Data.MediaContainer.Size != 1 {
		t.Errorf("size after sanitising = %d, want 1", snap.Data.MediaContainer.Size)
	}
}

// ─── Refresher ──────────────────────────────────────────────────────────────

type stubSource struct {
	payload *RawSchedulePayload
	err     error
	calls   int
}

func (s *stubSource) FetchSchedule(_ context.Context) (*RawSchedulePayload, error) {
	s.calls++
	return s.payload, s.err
}

type stubOnline bool

func (s stubOnline) Online(_ context.Context) bool { return bool(s) }

func TestRefresherSkipsWhenSourceOffline(t *testing.T) {
	cache := newTestCache(t)
	source := &stubSource{payload: payloadWith()}
	refresher := NewRefresher(source, cache, stubOnline(false))

	err := refresher.Refresh(context.Background(), time.Now())
	if !errors.Is(err, ErrSourceOffline) {
		t.Errorf("Refresh error = %v, want ErrSourceOffline", err)
	}
	if source.calls != 0 {
		t.Error("fetch must not be attempted while the host is offline")
	}
}

func TestRefresherStoresFetchedPayload(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	source := &stubSource{payload: payloadWith(grabAt(now.Add(time.Hour), now.Add(2*time.Hour)))}
	refresher := NewRefresher(source, cache, stubOnline(true))

	if err := refresher.Refresh(context.Background(), now); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snap, err := cache.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Data.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(snap.Data.Entries()))
	}
}

func TestRefresherKeepsCacheOnFetchError(t *testing.T) {
	cache := newTestCache(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	if err := cache.Accept(payloadWith(grabAt(now.Add(time.Hour), now.Add(2*time.Hour))), now); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	source := &stubSource{err: ErrFetchFailed}
	refresher := NewRefresher(source, cache, stubOnline(true))

	if err := refresher.Refresh(context.Background(), now); !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Refresh error = %v, want ErrFetchFailed", err)
	}
	if _, err := cache.Load(); err != nil {
		t.Errorf("cache must survive a failed fetch: %v", err)
	}
}
