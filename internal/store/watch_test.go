package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"convo/internal/types"
)

func startWatcher(t *testing.T, s *LocalStore) (*Watcher, chan struct{}) {
	t.Helper()
	changed := make(chan struct{}, 1)
	w, err := s.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, changed
}

func TestWatch_ExternalRewriteReported(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, changed := startWatcher(t, s)

	blob := `[{"id":"ext","title":"from another process"}]`
	if err := os.WriteFile(filepath.Join(dir, "chats.json"), []byte(blob), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("external rewrite never reported")
	}
}

func TestWatch_OwnSaveSuppressed(t *testing.T) {
	t.Parallel()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, changed := startWatcher(t, s)

	s.SaveHistories([]*types.ChatHistory{{ID: "own", Title: "written here"}})

	select {
	case <-changed:
		t.Fatal("a save through this store must not fire the watcher")
	case <-time.After(800 * time.Millisecond):
	}
}

func TestWatch_UnrelatedFileIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, changed := startWatcher(t, s)

	if err := os.WriteFile(filepath.Join(dir, "theme"), []byte("dark"), 0o644); err != nil {
		t.Fatalf("write theme: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("unrelated file must not fire the watcher")
	case <-time.After(800 * time.Millisecond):
	}
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	w, _ := startWatcher(t, s)

	w.Stop()
	w.Stop() // Cleanup stops it a third time.
}
