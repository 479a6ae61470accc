package session

import (
	"context"

	"golang.org/x/sync/errgroup"

	"convo/internal/api"
	"convo/internal/types"
)

// APIResponder is the production Responder: the single request that both
// appends the user's turn server-side and returns the assistant's reply.
type APIResponder struct {
	Client *api.Client
}

func (r *APIResponder) Reply(ctx context.Context, sessionID, query string) (string, []types.Source, error) {
	answer, err := r.Client.PostMessage(ctx, sessionID, query)
	if err != nil {
		return "", nil, err
	}
	return answer.Answer, answer.Sources, nil
}

// SyncRemote merges the server's session list into the local collection.
// Server-known chats get their title and timestamps updated; sessions the
// client has never seen are added (messages lazily fetched on selection);
// local-only chats are left alone. Local message content is not touched
// here; RefreshMessages is the authoritative path for that.
func (m *Manager) SyncRemote(ctx context.Context, pageSize int) error {
	if m.remote == nil {
		return nil
	}

	// The first page reports the total, so the remaining pages can be
	// fetched in parallel and stitched back in order.
	sessions, pagination, err := m.remote.List(ctx, 1, pageSize)
	if err != nil {
		return err
	}
	if pageSize > 0 && len(sessions) > 0 && pagination.Total > len(sessions) {
		pages := (pagination.Total + pageSize - 1) / pageSize
		batches := make([][]api.RemoteSession, pages+1)
		eg, egCtx := errgroup.WithContext(ctx)
		for page := 2; page <= pages; page++ {
			eg.Go(func() error {
				batch, _, err := m.remote.List(egCtx, page, pageSize)
				if err != nil {
					return err
				}
				batches[page] = batch
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		for page := 2; page <= pages; page++ {
			sessions = append(sessions, batches[page]...)
		}
	}

	m.mu.Lock()
	byRemote := make(map[string]*types.ChatHistory, len(m.histories))
	for _, h := range m.histories {
		if h.RemoteID != "" {
			byRemote[h.RemoteID] = h
		}
	}

	added := 0
	for _, rs := range sessions {
		if local, ok := byRemote[rs.ID]; ok {
			remote := rs.History()
			if remote.UpdatedAt.After(local.UpdatedAt) {
				local.Title = remote.Title
				local.UpdatedAt = remote.UpdatedAt
			}
			continue
		}
		h := rs.History()
		h.RemoteID = rs.ID
		m.histories = append(m.histories, h)
		added++
	}
	m.persistLocked()
	m.mu.Unlock()

	m.log.Info("remote sync: %d sessions, %d new", len(sessions), added)
	m.notify(Event{Kind: EventHistories})
	return nil
}

// RefreshMessages replaces a server-known chat's local messages with the
// backend's copy. The fetched list wins outright: the server is the
// authoritative record for anything it knows about.
func (m *Manager) RefreshMessages(ctx context.Context, chatID string) error {
	m.mu.Lock()
	chat := m.findLocked(chatID)
	if chat == nil || chat.RemoteID == "" || m.remote == nil {
		m.mu.Unlock()
		return nil
	}
	remoteID := chat.RemoteID
	m.mu.Unlock()

	msgs, err := m.remote.FetchMessages(ctx, remoteID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	chat = m.findLocked(chatID)
	if chat == nil {
		m.mu.Unlock()
		return nil
	}
	chat.Messages = msgs
	if n := len(msgs); n > 0 && msgs[n-1].Timestamp.After(chat.UpdatedAt) {
		chat.UpdatedAt = msgs[n-1].Timestamp
	}
	m.persistLocked()
	m.mu.Unlock()

	m.log.Info("refreshed %d messages for chat %s", len(msgs), chatID)
	m.notify(Event{Kind: EventMessages, ChatID: chatID})
	return nil
}

// RefreshUsage fetches a fresh quota snapshot; callers poll it after every
// message exchange.
func (m *Manager) RefreshUsage(ctx context.Context) (types.Usage, error) {
	if m.remote == nil {
		return types.Usage{}, nil
	}
	snapshot, err := m.remote.GetUsage(ctx)
	if err != nil {
		return types.Usage{}, err
	}
	if m.tracker != nil {
		m.tracker.SetSnapshot(snapshot)
	}
	m.notify(Event{Kind: EventUsage})
	return snapshot, nil
}
