// Package store persists the chat history collection and the theme
// preference to the local state directory. The whole collection lives in a
// single JSON blob that is rewritten on every mutation; failures degrade
// (empty state on read, logged warning on write) and never reach the UI.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"convo/internal/logging"
	"convo/internal/types"
)

const (
	chatsFile = "chats.json"
	themeFile = "theme"
)

// ThemeMode is the persisted UI color scheme.
type ThemeMode string

const (
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
)

// LocalStore reads and writes the serialized chat state.
type LocalStore struct {
	mu       sync.Mutex
	dir      string
	lastSave time.Time
}

// NewLocalStore creates the state directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

// storedChat is the on-disk shape of a ChatHistory. Timestamps are stored
// as epoch milliseconds so the blob survives locale and format changes.
type storedChat struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	RemoteID  string          `json:"remote_id,omitempty"`
	Messages  []storedMessage `json:"messages"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

type storedMessage struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Sender    string         `json:"sender"`
	Timestamp int64          `json:"timestamp"`
	Sources   []types.Source `json:"sources,omitempty"`
}

// LoadHistories reads the persisted collection. A missing file, malformed
// JSON, or unreadable storage all degrade to an empty collection with a
// logged warning; this never returns an error to the caller.
func (s *LocalStore) LoadHistories() []*types.ChatHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, chatsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.StoreWarn("cannot read %s, starting empty: %v", path, err)
		}
		return nil
	}

	var stored []storedChat
	if err := json.Unmarshal(data, &stored); err != nil {
		logging.StoreWarn("corrupted chat blob at %s, starting empty: %v", path, err)
		return nil
	}

	histories := make([]*types.ChatHistory, 0, len(stored))
	for _, sc := range stored {
		if sc.ID == "" {
			logging.StoreWarn("skipping chat entry without id (title=%q)", sc.Title)
			continue
		}
		h := &types.ChatHistory{
			ID:        sc.ID,
			Title:     sc.Title,
			RemoteID:  sc.RemoteID,
			CreatedAt: time.UnixMilli(sc.CreatedAt),
			UpdatedAt: time.UnixMilli(sc.UpdatedAt),
			Messages:  make([]types.Message, 0, len(sc.Messages)),
		}
		for _, sm := range sc.Messages {
			h.Messages = append(h.Messages, types.Message{
				ID:        sm.ID,
				Content:   sm.Content,
				Sender:    types.Sender(sm.Sender),
				Timestamp: time.UnixMilli(sm.Timestamp),
				Sources:   sm.Sources,
			})
		}
		histories = append(histories, h)
	}

	logging.StoreDebug("loaded %d chat histories from %s", len(histories), path)
	return histories
}

// SaveHistories serializes and overwrites the whole blob. Write failures
// (quota, read-only storage) are logged and swallowed: the in-memory state
// stays authoritative for this run. The write goes through a temp file and
// rename so an interrupted save never truncates the previous blob.
func (s *LocalStore) SaveHistories(histories []*types.ChatHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]storedChat, 0, len(histories))
	for _, h := range histories {
		sc := storedChat{
			ID:        h.ID,
			Title:     h.Title,
			RemoteID:  h.RemoteID,
			CreatedAt: h.CreatedAt.UnixMilli(),
			UpdatedAt: h.UpdatedAt.UnixMilli(),
			Messages:  make([]storedMessage, 0, len(h.Messages)),
		}
		for _, m := range h.Messages {
			sc.Messages = append(sc.Messages, storedMessage{
				ID:        m.ID,
				Content:   m.Content,
				Sender:    string(m.Sender),
				Timestamp: m.Timestamp.UnixMilli(),
				Sources:   m.Sources,
			})
		}
		stored = append(stored, sc)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		logging.StoreWarn("cannot serialize chat histories: %v", err)
		return
	}

	path := filepath.Join(s.dir, chatsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logging.StoreWarn("cannot write chat blob: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logging.StoreWarn("cannot replace chat blob: %v", err)
		_ = os.Remove(tmp)
		return
	}
	s.lastSave = time.Now()
	logging.StoreDebug("saved %d chat histories (%d bytes)", len(stored), len(data))
}

// savedRecently reports whether this process wrote the blob moments ago,
// so the watcher can tell its own saves from external ones.
func (s *LocalStore) savedRecently() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastSave.IsZero() && time.Since(s.lastSave) < 2*time.Second
}

// LoadThemeMode returns the persisted theme, or "" when none is stored so
// the caller can fall back to terminal detection.
func (s *LocalStore) LoadThemeMode() ThemeMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, themeFile))
	if err != nil {
		return ""
	}
	switch mode := ThemeMode(string(data)); mode {
	case ThemeLight, ThemeDark:
		return mode
	default:
		logging.StoreWarn("unknown theme mode %q, ignoring", data)
		return ""
	}
}

// SaveThemeMode persists the theme preference.
func (s *LocalStore) SaveThemeMode(mode ThemeMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.dir, themeFile), []byte(mode), 0o644); err != nil {
		logging.StoreWarn("cannot persist theme mode: %v", err)
	}
}
