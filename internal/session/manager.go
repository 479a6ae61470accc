// Package session implements the chat state manager: the single source of
// truth for which chat is selected and what messages are displayed. It
// mediates between the local store, the remote session API and the UI,
// publishing change events through an explicit subscribe/notify store so
// consumers are decoupled from any particular render tree.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"convo/internal/api"
	"convo/internal/logging"
	"convo/internal/store"
	"convo/internal/types"
	"convo/internal/usage"
)

// ErrNoChatSelected is returned by SendMessage when nothing is selected.
var ErrNoChatSelected = errors.New("no chat selected")

// ErrGenerationInFlight is returned when a chat already has a pending
// assistant reply; only one generation may be in flight per chat.
var ErrGenerationInFlight = errors.New("a reply is already being generated for this chat")

// Responder produces the assistant's reply to a user turn. The production
// implementation calls the backend; tests substitute a fixed-delay double.
type Responder interface {
	Reply(ctx context.Context, sessionID, query string) (answer string, sources []types.Source, err error)
}

// Remote is the slice of the API client the manager needs for session CRUD
// and reconciliation.
type Remote interface {
	List(ctx context.Context, page, limit int) ([]api.RemoteSession, api.Pagination, error)
	Create(ctx context.Context, name string) (api.RemoteSession, error)
	Rename(ctx context.Context, id, name string) (api.RemoteSession, error)
	Delete(ctx context.Context, id string) error
	FetchMessages(ctx context.Context, id string) ([]types.Message, error)
	GetUsage(ctx context.Context) (types.Usage, error)
}

// Manager owns the full chat collection, the selection and the generation
// state. All mutations persist synchronously through the local store
// (last write wins; there is no sequence guard against out-of-order async
// writes, matching the product's existing behavior).
type Manager struct {
	mu          sync.Mutex
	histories   []*types.ChatHistory
	selectedID  string
	generating  map[string]bool
	subscribers map[int]func(Event)
	nextSubID   int

	local     *store.LocalStore
	remote    Remote // nil in local-only mode
	responder Responder
	tracker   *usage.Tracker

	log *logging.Logger
}

// NewManager loads the persisted collection (the fast path) and wires the
// collaborators. remote may be nil for offline/local-only operation.
func NewManager(local *store.LocalStore, remote Remote, responder Responder, tracker *usage.Tracker) *Manager {
	m := &Manager{
		histories:   local.LoadHistories(),
		generating:  make(map[string]bool),
		subscribers: make(map[int]func(Event)),
		local:       local,
		remote:      remote,
		responder:   responder,
		tracker:     tracker,
		log:         logging.Get(logging.CategorySession),
	}
	m.log.Info("manager ready: %d chats loaded", len(m.histories))
	return m
}

// Histories returns the collection ordered most-recently-updated first.
// Entries are deep copies; mutate through the manager only.
func (m *Manager) Histories() []*types.ChatHistory {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.ChatHistory, 0, len(m.histories))
	for _, h := range m.histories {
		out = append(out, h.Clone())
	}
	sortByUpdatedDesc(out)
	return out
}

// SelectedID returns the currently selected chat id, or "".
func (m *Manager) SelectedID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedID
}

// Title returns the display title for a chat id, or "" when the id is
// unknown. Unlike Histories this does not clone the collection, so it is
// cheap enough to call per frame.
func (m *Manager) Title(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chat := m.findLocked(id); chat != nil {
		return chat.Title
	}
	return ""
}

// ActiveMessages returns a copy of the selected chat's message list.
func (m *Manager) ActiveMessages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat := m.findLocked(m.selectedID)
	if chat == nil {
		return nil
	}
	msgs := make([]types.Message, len(chat.Messages))
	copy(msgs, chat.Messages)
	return msgs
}

// IsGenerating reports whether a reply is pending for the given chat.
func (m *Manager) IsGenerating(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generating[id]
}

// NewChat creates an empty chat with a client-generated id, persists it and
// selects it. The id is usable for navigation immediately; no network
// round-trip happens here.
func (m *Manager) NewChat() string {
	m.mu.Lock()

	now := time.Now()
	chat := &types.ChatHistory{
		ID:        uuid.NewString(),
		Title:     fmt.Sprintf("New Chat %d", len(m.histories)+1),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.histories = append(m.histories, chat)
	m.selectedID = chat.ID
	m.persistLocked()
	id := chat.ID
	m.mu.Unlock()

	m.log.Info("new chat %s (%q)", id, chat.Title)
	m.notify(Event{Kind: EventHistories, ChatID: id})
	m.notify(Event{Kind: EventSelection, ChatID: id})
	return id
}

// SelectChat makes the chat with the given id current and loads its
// messages into the active buffer. An unknown id is a logged no-op.
func (m *Manager) SelectChat(id string) {
	m.mu.Lock()
	chat := m.findLocked(id)
	if chat == nil {
		m.mu.Unlock()
		m.log.Warn("select ignored: unknown chat id %s", id)
		return
	}
	m.selectedID = id
	m.mu.Unlock()

	m.notify(Event{Kind: EventSelection, ChatID: id})
}

// ReloadLocal replaces the in-memory collection with the blob on disk.
// The store watcher calls this when another convo process rewrites the
// file. Skipped while a reply is in flight; the pending persist would
// overwrite the external edit anyway (last write wins). If the selected
// chat disappeared, selection falls back like a delete.
func (m *Manager) ReloadLocal() {
	fresh := m.local.LoadHistories()

	m.mu.Lock()
	for _, busy := range m.generating {
		if busy {
			m.mu.Unlock()
			m.log.Warn("external change ignored while a reply is in flight")
			return
		}
	}
	m.histories = fresh
	selectionChanged := false
	if m.selectedID != "" && m.findLocked(m.selectedID) == nil {
		m.selectedID = ""
		if latest := latestUpdatedLocked(m.histories); latest != nil {
			m.selectedID = latest.ID
		}
		selectionChanged = true
	}
	newSelection := m.selectedID
	m.mu.Unlock()

	m.log.Info("reloaded %d chats after external change", len(fresh))
	m.notify(Event{Kind: EventHistories})
	if selectionChanged {
		m.notify(Event{Kind: EventSelection, ChatID: newSelection})
	}
}

// DeleteChat removes a chat locally and persists the change. Unknown ids
// are a no-op, so calling it twice leaves the same state as calling it
// once. If the deleted chat was selected, selection falls back to the
// most-recently-updated survivor, or clears when none remain. A
// server-known session is also deleted remotely, best effort: the local
// copy goes away regardless of the backend's answer.
func (m *Manager) DeleteChat(ctx context.Context, id string) {
	m.mu.Lock()
	chat := m.findLocked(id)
	if chat == nil {
		m.mu.Unlock()
		return
	}
	remoteID := chat.RemoteID

	kept := m.histories[:0]
	for _, h := range m.histories {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	m.histories = kept

	selectionChanged := false
	if m.selectedID == id {
		m.selectedID = ""
		if latest := latestUpdatedLocked(m.histories); latest != nil {
			m.selectedID = latest.ID
		}
		selectionChanged = true
	}
	newSelection := m.selectedID
	m.persistLocked()
	m.mu.Unlock()

	if m.tracker != nil {
		m.tracker.Forget(id)
	}

	if m.remote != nil && remoteID != "" {
		if err := m.remote.Delete(ctx, remoteID); err != nil {
			m.log.Warn("remote delete of %s failed (local copy removed anyway): %v", remoteID, err)
		}
	}

	m.log.Info("deleted chat %s", id)
	m.notify(Event{Kind: EventHistories, ChatID: id})
	if selectionChanged {
		m.notify(Event{Kind: EventSelection, ChatID: newSelection})
	}
}

// RenameChat sets a new title and bumps UpdatedAt. A server-known session
// is renamed remotely as well, best effort.
func (m *Manager) RenameChat(ctx context.Context, id, newTitle string) {
	m.mu.Lock()
	chat := m.findLocked(id)
	if chat == nil {
		m.mu.Unlock()
		m.log.Warn("rename ignored: unknown chat id %s", id)
		return
	}
	chat.Title = newTitle
	chat.UpdatedAt = time.Now()
	remoteID := chat.RemoteID
	m.persistLocked()
	m.mu.Unlock()

	if m.remote != nil && remoteID != "" {
		if _, err := m.remote.Rename(ctx, remoteID, newTitle); err != nil {
			m.log.Warn("remote rename of %s failed: %v", remoteID, err)
		}
	}

	m.notify(Event{Kind: EventHistories, ChatID: id})
}

// SendMessage appends the user's turn to the selected chat, obtains the
// assistant reply through the responder and appends it as an AI turn. The
// generating flag is set strictly between the two appends and cleared on
// both success and failure. A fetched usage snapshot showing an exhausted
// allowance rejects the send before any network call.
func (m *Manager) SendMessage(ctx context.Context, content string) (types.Message, error) {
	if m.tracker != nil {
		if scope, window, exhausted := m.tracker.Exhausted(); exhausted {
			m.log.Warn("send blocked client-side: %s quota %d/%d", scope, window.Current, window.Limit)
			return types.Message{}, &api.QuotaError{Scope: scope, Current: window.Current, Limit: window.Limit}
		}
	}

	m.mu.Lock()
	chat := m.findLocked(m.selectedID)
	if chat == nil {
		m.mu.Unlock()
		return types.Message{}, ErrNoChatSelected
	}
	if m.generating[chat.ID] {
		m.mu.Unlock()
		return types.Message{}, ErrGenerationInFlight
	}
	chatID := chat.ID

	userMsg := types.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    types.SenderUser,
		Timestamp: time.Now(),
	}
	chat.Messages = append(chat.Messages, userMsg)
	chat.UpdatedAt = userMsg.Timestamp
	m.generating[chatID] = true
	m.persistLocked()
	m.mu.Unlock()

	m.notify(Event{Kind: EventMessages, ChatID: chatID})
	m.notify(Event{Kind: EventGeneration, ChatID: chatID})

	defer func() {
		m.mu.Lock()
		delete(m.generating, chatID)
		m.mu.Unlock()
		m.notify(Event{Kind: EventGeneration, ChatID: chatID})
	}()

	sessionID, err := m.ensureRemote(ctx, chatID)
	if err != nil {
		return types.Message{}, err
	}

	answer, sources, err := m.responder.Reply(ctx, sessionID, content)
	if err != nil {
		m.log.Warn("generation failed for chat %s: %v", chatID, err)
		return types.Message{}, err
	}

	aiMsg := types.Message{
		ID:        uuid.NewString(),
		Content:   answer,
		Sender:    types.SenderAI,
		Timestamp: time.Now(),
		Sources:   sources,
	}

	m.mu.Lock()
	// The chat may have been deleted while the reply was in flight; the
	// pending callback is simply abandoned in that case.
	chat = m.findLocked(chatID)
	if chat == nil {
		m.mu.Unlock()
		m.log.Warn("chat %s vanished during generation, dropping reply", chatID)
		return types.Message{}, nil
	}
	chat.Messages = append(chat.Messages, aiMsg)
	chat.UpdatedAt = aiMsg.Timestamp
	m.persistLocked()
	m.mu.Unlock()

	if m.tracker != nil {
		m.tracker.Track(chatID, 1, 1)
	}

	m.notify(Event{Kind: EventMessages, ChatID: chatID})
	return aiMsg, nil
}

// ensureRemote registers the chat with the backend on its first send and
// records the server's canonical session id. Local-only mode returns the
// chat id itself.
func (m *Manager) ensureRemote(ctx context.Context, chatID string) (string, error) {
	m.mu.Lock()
	chat := m.findLocked(chatID)
	if chat == nil {
		m.mu.Unlock()
		return "", ErrNoChatSelected
	}
	if m.remote == nil {
		m.mu.Unlock()
		return chatID, nil
	}
	if chat.RemoteID != "" {
		id := chat.RemoteID
		m.mu.Unlock()
		return id, nil
	}
	title := chat.Title
	m.mu.Unlock()

	rs, err := m.remote.Create(ctx, title)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if chat := m.findLocked(chatID); chat != nil {
		chat.RemoteID = rs.ID
		m.persistLocked()
	}
	m.mu.Unlock()

	m.log.Info("chat %s registered remotely as %s", chatID, rs.ID)
	return rs.ID, nil
}

// findLocked returns the chat with the given id, or nil. Caller holds mu.
func (m *Manager) findLocked(id string) *types.ChatHistory {
	if id == "" {
		return nil
	}
	for _, h := range m.histories {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// persistLocked rewrites the whole blob. Caller holds mu. Persistence is
// last-write-wins by design.
func (m *Manager) persistLocked() {
	m.local.SaveHistories(m.histories)
}

func latestUpdatedLocked(histories []*types.ChatHistory) *types.ChatHistory {
	var latest *types.ChatHistory
	for _, h := range histories {
		if latest == nil || h.UpdatedAt.After(latest.UpdatedAt) {
			latest = h
		}
	}
	return latest
}

func sortByUpdatedDesc(histories []*types.ChatHistory) {
	sort.SliceStable(histories, func(i, j int) bool {
		return histories[i].UpdatedAt.After(histories[j].UpdatedAt)
	})
}
