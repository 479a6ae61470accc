// Package types defines the core domain entities shared between the local
// store, the remote API client, and the session manager.
package types

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Source is a reference an assistant answer cites.
type Source struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Message is a single turn inside a chat history.
// Content is immutable once created; Sources is only set on AI turns.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources,omitempty"`
}

// ChatHistory is a named conversation thread. Messages are append-only:
// past entries are never reordered or mutated, only new turns are added.
type ChatHistory struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// RemoteID is the server-assigned canonical session id, empty until the
	// chat is registered with the backend. The local ID is client-generated
	// so navigation works before any network round-trip.
	RemoteID string `json:"remote_id,omitempty"`

	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand histories to the UI
// without aliasing the manager's internal state.
func (c *ChatHistory) Clone() *ChatHistory {
	if c == nil {
		return nil
	}
	dup := *c
	dup.Messages = make([]Message, len(c.Messages))
	copy(dup.Messages, c.Messages)
	for i, m := range dup.Messages {
		if len(m.Sources) > 0 {
			srcs := make([]Source, len(m.Sources))
			copy(srcs, m.Sources)
			dup.Messages[i].Sources = srcs
		}
	}
	return &dup
}
