package store

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"convo/internal/logging"
)

// Watcher reports rewrites of the chat blob made by other processes, so a
// second convo instance or a sync job editing history shows up without a
// restart. Writes made through this store are skipped by their save
// timestamp.
type Watcher struct {
	fsw      *fsnotify.Watcher
	store    *LocalStore
	onChange func()

	mu       sync.Mutex
	pending  time.Time
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Watch starts watching the state directory. onChange runs on the watcher
// goroutine after events settle; callers hand off to their own loop.
func (s *LocalStore) Watch(onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(s.dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		store:    s,
		onChange: onChange,
		debounce: 300 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	logging.StoreDebug("watching %s for external changes", s.dir)
	return w, nil
}

// Stop shuts the watcher down and waits for its goroutine. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		if err := w.fsw.Close(); err != nil {
			logging.StoreWarn("closing watcher: %v", err)
		}
	})
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	// Rapid saves settle before onChange fires.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.StoreWarn("watcher error: %v", err)

		case <-ticker.C:
			w.fireSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != chatsFile {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if w.store.savedRecently() {
		return
	}
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) fireSettled() {
	w.mu.Lock()
	fire := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if fire {
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if fire {
		logging.StoreDebug("chat blob changed externally")
		w.onChange()
	}
}
