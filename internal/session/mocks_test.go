package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"convo/internal/api"
	"convo/internal/store"
	"convo/internal/types"
)

// simulatedResponder is the fixed-delay test double for the assistant: it
// answers deterministically without any network.
type simulatedResponder struct {
	delay   time.Duration
	answer  string
	sources []types.Source
	err     error
	calls   atomic.Int32
}

func (r *simulatedResponder) Reply(ctx context.Context, sessionID, query string) (string, []types.Source, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	if r.err != nil {
		return "", nil, r.err
	}
	answer := r.answer
	if answer == "" {
		answer = "simulated reply to: " + query
	}
	return answer, r.sources, nil
}

// fakeRemote records calls for the reconciliation tests.
type fakeRemote struct {
	mu       sync.Mutex
	sessions []api.RemoteSession
	messages map[string][]types.Message
	usage    types.Usage
	deleted  []string
	renamed  map[string]string
	created  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		messages: make(map[string][]types.Message),
		renamed:  make(map[string]string),
	}
}

func (f *fakeRemote) List(ctx context.Context, page, limit int) ([]api.RemoteSession, api.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := api.Pagination{Page: page, Limit: limit, Total: len(f.sessions)}
	if limit <= 0 {
		return f.sessions, p, nil
	}
	start := (page - 1) * limit
	if start >= len(f.sessions) {
		return nil, p, nil
	}
	end := start + limit
	if end > len(f.sessions) {
		end = len(f.sessions)
	}
	return f.sessions[start:end], p, nil
}

func (f *fakeRemote) Create(ctx context.Context, name string) (api.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	rs := api.RemoteSession{ID: "srv-" + name, Name: name}
	f.sessions = append(f.sessions, rs)
	return rs, nil
}

func (f *fakeRemote) Rename(ctx context.Context, id, name string) (api.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[id] = name
	return api.RemoteSession{ID: id, Name: name}, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) FetchMessages(ctx context.Context, id string) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id], nil
}

func (f *fakeRemote) GetUsage(ctx context.Context) (types.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, nil
}

// newLocalManager builds a manager in local-only mode with a simulated
// responder, the configuration every lifecycle test starts from.
func newLocalManager(t *testing.T) (*Manager, *simulatedResponder) {
	t.Helper()
	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	responder := &simulatedResponder{}
	return NewManager(local, nil, responder, nil), responder
}
