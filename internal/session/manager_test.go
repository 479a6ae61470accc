package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"convo/internal/api"
	"convo/internal/store"
	"convo/internal/types"
	"convo/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// CHAT LIFECYCLE
// =============================================================================

func TestNewChat_FirstTitleIsNewChat1(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	id := m.NewChat()
	histories := m.Histories()
	if len(histories) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(histories))
	}
	if histories[0].Title != "New Chat 1" {
		t.Errorf("title = %q, want %q", histories[0].Title, "New Chat 1")
	}
	if m.SelectedID() != id {
		t.Errorf("new chat must be selected immediately")
	}
}

func TestNewChat_IDsPairwiseDistinct(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := m.NewChat()
		if id == "" {
			t.Fatal("empty chat id")
		}
		if seen[id] {
			t.Fatalf("duplicate chat id %s", id)
		}
		seen[id] = true
	}
}

func TestNewChat_TitleAutoNumbering(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	m.NewChat()
	id2 := m.NewChat()

	var second *types.ChatHistory
	for _, h := range m.Histories() {
		if h.ID == id2 {
			second = h
		}
	}
	if second == nil || second.Title != "New Chat 2" {
		t.Fatalf("second chat title = %+v, want New Chat 2", second)
	}
}

func TestSelectChat_UnknownIDIsNoOp(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	id := m.NewChat()
	m.SelectChat("does-not-exist")
	if m.SelectedID() != id {
		t.Errorf("selection changed on unknown id: %q", m.SelectedID())
	}
}

func TestSelectChat_LoadsActiveBuffer(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	first := m.NewChat()
	if _, err := m.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second := m.NewChat()
	if got := m.ActiveMessages(); len(got) != 0 {
		t.Fatalf("fresh chat buffer should be empty, got %d", len(got))
	}
	_ = second

	m.SelectChat(first)
	if got := m.ActiveMessages(); len(got) != 2 {
		t.Fatalf("expected 2 messages after reselecting, got %d", len(got))
	}
}

// =============================================================================
// SENDING MESSAGES
// =============================================================================

func TestSendMessage_AppendsUserThenAI(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)
	m.NewChat()

	aiMsg, err := m.SendMessage(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if aiMsg.Sender != types.SenderAI {
		t.Errorf("returned message sender = %q, want ai", aiMsg.Sender)
	}

	msgs := m.ActiveMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != types.SenderUser || msgs[0].Content != "Hello" {
		t.Errorf("first message = %+v, want user turn", msgs[0])
	}
	if msgs[1].Sender != types.SenderAI || msgs[1].Content == "" {
		t.Errorf("second message = %+v, want ai turn", msgs[1])
	}
}

func TestSendMessage_AppendOnlyTwoPerCall(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)
	m.NewChat()

	var firstRound []types.Message
	for i := 0; i < 5; i++ {
		if _, err := m.SendMessage(context.Background(), "ping"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		msgs := m.ActiveMessages()
		if len(msgs) != (i+1)*2 {
			t.Fatalf("after %d sends: %d messages, want %d", i+1, len(msgs), (i+1)*2)
		}
		if i == 0 {
			firstRound = msgs
		}
	}

	// Prior entries are never mutated or reordered.
	final := m.ActiveMessages()
	for i, want := range firstRound {
		if final[i].ID != want.ID || final[i].Content != want.Content {
			t.Errorf("message %d changed: got %+v, want %+v", i, final[i], want)
		}
	}
}

func TestSendMessage_NoSelection(t *testing.T) {
	t.Parallel()
	m, responder := newLocalManager(t)

	_, err := m.SendMessage(context.Background(), "into the void")
	if !errors.Is(err, ErrNoChatSelected) {
		t.Fatalf("err = %v, want ErrNoChatSelected", err)
	}
	if responder.calls.Load() != 0 {
		t.Error("responder must not be called without a selection")
	}
}

func TestSendMessage_GeneratingFlagLifecycle(t *testing.T) {
	t.Parallel()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	responder := &simulatedResponder{delay: 50 * time.Millisecond}
	m := NewManager(local, nil, responder, nil)
	id := m.NewChat()

	if m.IsGenerating(id) {
		t.Fatal("generating must be false before send")
	}

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = m.SendMessage(context.Background(), "slow one")
		close(done)
	}()

	<-started
	// Wait for the flag to flip on.
	deadline := time.After(time.Second)
	for !m.IsGenerating(id) {
		select {
		case <-deadline:
			t.Fatal("generating flag never set")
		case <-time.After(time.Millisecond):
		}
	}

	// A second send on the same chat while in flight must be rejected.
	if _, err := m.SendMessage(context.Background(), "overlap"); !errors.Is(err, ErrGenerationInFlight) {
		t.Errorf("overlapping send err = %v, want ErrGenerationInFlight", err)
	}

	<-done
	if m.IsGenerating(id) {
		t.Error("generating must be false after the reply arrived")
	}
}

func TestSendMessage_FlagClearsOnError(t *testing.T) {
	t.Parallel()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	responder := &simulatedResponder{err: errors.New("backend exploded")}
	m := NewManager(local, nil, responder, nil)
	id := m.NewChat()

	if _, err := m.SendMessage(context.Background(), "doomed"); err == nil {
		t.Fatal("expected error from responder")
	}
	if m.IsGenerating(id) {
		t.Error("generating flag must clear on error")
	}
	// The user turn stays; only the reply is missing.
	if msgs := m.ActiveMessages(); len(msgs) != 1 || msgs[0].Sender != types.SenderUser {
		t.Errorf("messages after failed send = %+v", m.ActiveMessages())
	}
}

func TestSendMessage_QuotaBlockedBeforeNetwork(t *testing.T) {
	t.Parallel()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	tracker, err := usage.NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.SetSnapshot(types.Usage{Daily: types.QuotaWindow{Current: 10, Limit: 10}})

	responder := &simulatedResponder{}
	m := NewManager(local, nil, responder, tracker)
	m.NewChat()

	_, err = m.SendMessage(context.Background(), "one too many")
	var qe *api.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want QuotaError", err)
	}
	if qe.Scope != "daily" || qe.Current != 10 || qe.Limit != 10 {
		t.Errorf("quota error = %+v", qe)
	}
	if responder.calls.Load() != 0 {
		t.Error("send must be rejected before any network call")
	}
	if len(m.ActiveMessages()) != 0 {
		t.Error("no message may be appended on a quota rejection")
	}

	// Flush the tracker's debounced save before the leak check runs.
	if err := tracker.Save(); err != nil {
		t.Fatalf("tracker save: %v", err)
	}
}

// =============================================================================
// RENAME / DELETE
// =============================================================================

func TestRenameChat_BumpsUpdatedAt(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)
	id := m.NewChat()

	before := m.Histories()[0].UpdatedAt
	time.Sleep(2 * time.Millisecond)
	m.RenameChat(context.Background(), id, "Foo")

	h := m.Histories()[0]
	if h.Title != "Foo" {
		t.Errorf("title = %q, want Foo", h.Title)
	}
	if !h.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt %v not after %v", h.UpdatedAt, before)
	}
}

func TestDeleteChat_SelectionFallsBackToMostRecent(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	first := m.NewChat()
	time.Sleep(2 * time.Millisecond)
	second := m.NewChat()
	time.Sleep(2 * time.Millisecond)
	third := m.NewChat()

	// Touch the first chat so it becomes the most recently updated.
	m.SelectChat(first)
	if _, err := m.SendMessage(context.Background(), "bump"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	m.SelectChat(third)
	m.DeleteChat(context.Background(), third)

	if got := m.SelectedID(); got != first {
		t.Errorf("selection fell back to %q, want most-recently-updated %q", got, first)
	}
	_ = second
}

func TestDeleteChat_LastChatClearsSelection(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	id := m.NewChat()
	m.DeleteChat(context.Background(), id)

	if m.SelectedID() != "" {
		t.Errorf("selection should clear, got %q", m.SelectedID())
	}
	if len(m.Histories()) != 0 {
		t.Errorf("expected empty collection")
	}
}

func TestDeleteChat_Idempotent(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	keep := m.NewChat()
	doomed := m.NewChat()

	m.DeleteChat(context.Background(), doomed)
	after := m.Histories()

	// Second delete must not panic and must leave identical state.
	m.DeleteChat(context.Background(), doomed)
	again := m.Histories()

	if len(after) != 1 || len(again) != 1 || after[0].ID != keep || again[0].ID != keep {
		t.Errorf("idempotency violated: after=%+v again=%+v", after, again)
	}
	if m.SelectedID() != keep {
		t.Errorf("selection = %q, want %q", m.SelectedID(), keep)
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestManager_StateSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	local, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	m := NewManager(local, nil, &simulatedResponder{}, nil)
	id := m.NewChat()
	if _, err := m.SendMessage(context.Background(), "persist me"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	m.RenameChat(context.Background(), id, "Kept")

	// Fresh manager over the same directory: the fast path load.
	local2, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	m2 := NewManager(local2, nil, &simulatedResponder{}, nil)

	histories := m2.Histories()
	if len(histories) != 1 {
		t.Fatalf("expected 1 chat after restart, got %d", len(histories))
	}
	if histories[0].Title != "Kept" || len(histories[0].Messages) != 2 {
		t.Errorf("restart lost state: %+v", histories[0])
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func TestSubscribe_NotifiesAndUnsubscribes(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)

	var mu sync.Mutex
	var events []Event
	unsubscribe := m.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	id := m.NewChat()

	mu.Lock()
	kinds := make(map[EventKind]bool)
	for _, ev := range events {
		kinds[ev.Kind] = true
		if ev.ChatID != id {
			t.Errorf("event carries wrong chat id: %+v", ev)
		}
	}
	mu.Unlock()

	if !kinds[EventHistories] || !kinds[EventSelection] {
		t.Errorf("NewChat must emit histories+selection events, got %v", kinds)
	}

	unsubscribe()
	mu.Lock()
	n := len(events)
	mu.Unlock()

	m.NewChat()
	mu.Lock()
	defer mu.Unlock()
	if len(events) != n {
		t.Error("unsubscribed listener still received events")
	}
}

func TestSendMessage_EmitsGenerationEvents(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)
	m.NewChat()

	var mu sync.Mutex
	generation := 0
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventGeneration {
			mu.Lock()
			generation++
			mu.Unlock()
		}
	})

	if _, err := m.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if generation != 2 {
		t.Errorf("expected start+finish generation events, got %d", generation)
	}
}

func TestTitle_LookupWithoutClone(t *testing.T) {
	t.Parallel()
	m, _ := newLocalManager(t)
	id := m.NewChat()
	m.RenameChat(context.Background(), id, "Expense report")

	if got := m.Title(id); got != "Expense report" {
		t.Errorf("Title(%s) = %q, want %q", id, got, "Expense report")
	}
	if got := m.Title("no-such-chat"); got != "" {
		t.Errorf("Title(unknown) = %q, want empty", got)
	}
}

func TestReloadLocal_PicksUpExternalEdits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	local, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	m := NewManager(local, nil, &simulatedResponder{}, nil)

	other, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("second NewLocalStore: %v", err)
	}
	otherMgr := NewManager(other, nil, &simulatedResponder{}, nil)
	otherMgr.NewChat()

	if len(m.Histories()) != 0 {
		t.Fatal("manager saw the other process' chat before reload")
	}
	m.ReloadLocal()
	if len(m.Histories()) != 1 {
		t.Fatalf("chats after reload = %d, want 1", len(m.Histories()))
	}
}

func TestReloadLocal_SelectionFallsBackWhenChatVanishes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	local, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	m := NewManager(local, nil, &simulatedResponder{}, nil)
	kept := m.NewChat()
	doomed := m.NewChat()

	other, err := store.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("second NewLocalStore: %v", err)
	}
	otherMgr := NewManager(other, nil, &simulatedResponder{}, nil)
	otherMgr.DeleteChat(context.Background(), doomed)

	m.ReloadLocal()
	if got := m.SelectedID(); got != kept {
		t.Errorf("selection = %q, want fallback to %q", got, kept)
	}
}
