package chat

import (
	"context"
	"testing"

	"convo/cmd/convo/ui"
	"convo/internal/session"
	"convo/internal/store"
	"convo/internal/types"
)

// staticResponder answers immediately with a fixed reply; no network.
type staticResponder struct {
	answer  string
	sources []types.Source
}

func (r staticResponder) Reply(_ context.Context, _, _ string) (string, []types.Source, error) {
	return r.answer, r.sources, nil
}

// newTestModel builds a local-only model over a temp directory, sized like
// a standard terminal.
func newTestModel(t *testing.T) Model {
	t.Helper()

	local, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	mgr := session.NewManager(local, nil, staticResponder{answer: "ok"}, nil)

	m := New(Options{Manager: mgr, Local: local})
	m.styles = ui.NewStyles(ui.LightTheme())
	m.width = 100
	m.height = 40
	m.ready = true
	return m
}
