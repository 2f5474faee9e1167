package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// cacheFilePermissions is the mode for the cache file.
const cacheFilePermissions = 0600

// Snapshot is the persisted schedule cache: the last accepted payload and
// when it was fetched.
type Snapshot struct {
	LastSuccessfulFetch time.Time           `json:"lastSuccessfulFetch"`
	Data                *RawSchedulePayload `json:"data"`
}

// OnlineChecker reports whether the schedule source's host is reachable.
// The Plex server runs on the NAS, so fetching while the NAS is down would
// only produce a connection error and must not touch the cache.
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// Cache is the file-backed schedule cache with the acceptance guard.
//
// The guard protects the decision engine from transiently empty payloads.
// A payload without a single timed entry is rejected outright as malformed,
// whatever the cache holds. A well-formed fetch that returns zero
// still-relevant entries while the cache holds some is rejected too,
// because an upcoming recording disappearing wholesale is far more likely
// a Plex hiccup than a real cancellation. Shrinking payloads with at least
// one relevant entry are accepted, since completed recordings legitimately
// drop off the schedule.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	path string
	lead time.Duration
	lag  time.Duration
	mu   sync.Mutex
}

// NewCache creates a cache stored at path. The margins must match the
// decision engine's so relevance is judged identically in both places.
func NewCache(path string, lead, lag time.Duration) *Cache {
	return &Cache{path: path, lead: lead, lag: lag}
}

// Load reads the cached snapshot. ErrNoScheduleCache when none exists yet.
func (c *Cache) Load() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

func (c *Cache) loadLocked() (*Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoScheduleCache
		}
		return nil, fmt.Errorf("reading schedule cache: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: corrupt cache file: %v", ErrInvalidPayload, err)
	}
	if snap.Data == nil {
		return nil, fmt.Errorf("%w: cache file has no data", ErrInvalidPayload)
	}
	return &snap, nil
}

// Accept runs the guard against the cached snapshot and, when the payload
// passes, sanitises and persists it.
//
// Sanitisation drops entries whose grace-off instant has already passed,
// so the cache never re-feeds elapsed recordings to the engine.
func (c *Cache) Accept(payload *RawSchedulePayload, now time.Time) error {
	if payload == nil {
		return ErrInvalidPayload
	}
	if !structurallyValid(payload) {
		return fmt.Errorf("%w: no usable entries", ErrInvalidPayload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if CountRelevant(payload, now, c.lead, c.lag) == 0 {
		cached, err := c.loadLocked()
		if err == nil && CountRelevant(cached.Data, now, c.lead, c.lag) > 0 {
			return ErrStalePayload
		}
	}

	sanitised := sanitise(payload, now, c.lead, c.lag)
	return c.storeLocked(&Snapshot{
		LastSuccessfulFetch: now,
		Data:                sanitised,
	})
}

// structurallyValid reports whether the payload carries at least one entry
// with broadcast timing. Plex answers with a bare container while its DVR
// subsystem warms up; such a payload must never replace a cache that still
// holds real entries, relevant or not.
func structurallyValid(payload *RawSchedulePayload) bool {
	entries := payload.Entries()
	if len(entries) == 0 {
		return false
	}
	media := entries[0].Metadata.Media
	return len(media) > 0 && media[0].BeginsAt != 0
}

func (c *Cache) storeLocked(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling schedule cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write-then-rename keeps a reader from ever seeing a partial file.
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("writing schedule cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing schedule cache: %w", err)
	}
	return nil
}

// sanitise returns a copy of the payload without fully elapsed entries.
func sanitise(payload *RawSchedulePayload, now time.Time, lead, lag time.Duration) *RawSchedulePayload {
	kept := make([]MediaGrabOperation, 0, len(payload.Entries()))
	for _, entry := range payload.Entries() {
		interval, ok := BuildInterval(entry, lead, lag)
		if ok && !interval.GraceOffAt.After(now) {
			continue
		}
		kept = append(kept, entry)
	}
	return &RawSchedulePayload{
		MediaContainer: MediaContainer{
			Size:               len(kept),
			MediaGrabOperation: kept,
		},
	}
}

// Refresher periodically pulls the schedule into the cache.
type Refresher struct {
	source Source
	cache  *Cache
	online OnlineChecker
}

// NewRefresher wires a schedule source, cache, and host reachability check.
func NewRefresher(source Source, cache *Cache, online OnlineChecker) *Refresher {
	return &Refresher{source: source, cache: cache, online: online}
}

// Refresh fetches the schedule and updates the cache.
//
// Failure modes leave the cache untouched: source host offline
// (ErrSourceOffline), fetch or validation failure, guard rejection
// (ErrStalePayload). The tick keeps running on the last accepted snapshot.
func (r *Refresher) Refresh(ctx context.Context, now time.Time) error {
	if r.online != nil && !r.online.Online(ctx) {
		return ErrSourceOffline
	}

	payload, err := r.source.FetchSchedule(ctx)
	if err != nil {
		return err
	}

	return r.cache.Accept(payload, now)
}
