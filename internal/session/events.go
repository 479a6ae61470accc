package session

// EventKind discriminates manager notifications.
type EventKind int

const (
	// EventHistories fires when the chat collection changes shape
	// (create, delete, sync).
	EventHistories EventKind = iota
	// EventSelection fires when the selected chat changes.
	EventSelection
	// EventMessages fires when the selected chat's message list changes.
	EventMessages
	// EventGeneration fires when a chat enters or leaves the generating
	// state.
	EventGeneration
	// EventUsage fires when a fresh quota snapshot arrives.
	EventUsage
)

// Event is delivered to subscribers after a state mutation has been applied
// and persisted.
type Event struct {
	Kind   EventKind
	ChatID string
}

// Subscribe registers a listener and returns its unsubscribe func.
// Listeners are invoked synchronously after each mutation, outside the
// manager lock.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// notify delivers an event to every subscriber. Must be called WITHOUT the
// manager lock held; a subscriber may call back into the manager.
func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
