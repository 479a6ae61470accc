// Package usage caches the backend quota snapshot and counts local message
// traffic. The snapshot backs the client-side pre-emptive quota check: once
// a fetched snapshot shows the limit reached, sends are rejected before any
// network call is made.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"convo/internal/types"
)

// Tracker manages usage recording and persistence.
type Tracker struct {
	mu       sync.Mutex
	data     Data
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisting under the given state directory.
func NewTracker(stateDir string) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(stateDir, "usage.json"),
		data: Data{
			Version:   "1.0",
			BySession: make(map[string]Counts),
		},
	}
	// Corrupt or missing file just means starting fresh.
	_ = t.Load()
	return t, nil
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	if t.data.BySession == nil {
		t.data.BySession = make(map[string]Counts)
	}
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0o644)
}

// SetSnapshot records a freshly fetched quota snapshot.
func (t *Tracker) SetSnapshot(u types.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Snapshot = u
	t.data.FetchedAt = time.Now()
	t.scheduleSaveLocked()
}

// Snapshot returns the last known quota snapshot and when it was fetched.
// The zero time means no snapshot has ever been fetched.
func (t *Tracker) Snapshot() (types.Usage, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Snapshot, t.data.FetchedAt
}

// Exhausted reports whether the last snapshot shows a spent allowance and
// which window ran out. No snapshot means no client-side block.
func (t *Tracker) Exhausted() (scope string, window types.QuotaWindow, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.data.FetchedAt.IsZero() {
		return "", types.QuotaWindow{}, false
	}
	if t.data.Snapshot.Daily.Exhausted() {
		return "daily", t.data.Snapshot.Daily, true
	}
	if t.data.Snapshot.Monthly.Exhausted() {
		return "monthly", t.data.Snapshot.Monthly, true
	}
	return "", types.QuotaWindow{}, false
}

// Track records one completed exchange for a session.
func (t *Tracker) Track(sessionID string, sent, received int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Total.Add(sent, received)
	entry := t.data.BySession[sessionID]
	entry.Add(sent, received)
	t.data.BySession[sessionID] = entry

	t.scheduleSaveLocked()
}

// Forget drops the local counters of a deleted session.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data.BySession, sessionID)
	t.scheduleSaveLocked()
}

// Stats returns a copy of the persisted data for display.
func (t *Tracker) Stats() Data {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.data
	stats.BySession = make(map[string]Counts, len(t.data.BySession))
	for k, v := range t.data.BySession {
		stats.BySession[k] = v
	}
	return stats
}

// scheduleSaveLocked debounces disk writes so bursts of exchanges produce
// one save.
func (t *Tracker) scheduleSaveLocked() {
	if t.dirty {
		return
	}
	t.dirty = true
	time.AfterFunc(2*time.Second, func() {
		_ = t.Save()
		t.mu.Lock()
		t.dirty = false
		t.mu.Unlock()
	})
}
