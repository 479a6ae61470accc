package ui

import (
	"strings"
	"testing"

	"convo/internal/types"
	"convo/internal/usage"
)

func newTestPage(t *testing.T) (UsagePageModel, *usage.Tracker) {
	t.Helper()
	tracker, err := usage.NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	page := NewUsagePageModel(tracker, NewStyles(LightTheme()))
	page.SetSize(80, 24)
	return page, tracker
}

func TestUsagePage_NoTracker(t *testing.T) {
	t.Parallel()

	page := NewUsagePageModel(nil, NewStyles(LightTheme()))
	page.SetSize(80, 24)
	if !strings.Contains(page.View(), "not available") {
		t.Error("nil tracker must render a notice, not panic")
	}
}

func TestUsagePage_NoSnapshotHint(t *testing.T) {
	t.Parallel()

	page, _ := newTestPage(t)
	if out := page.View(); !strings.Contains(out, "No quota snapshot") {
		t.Errorf("missing hint in %q", out)
	}
}

func TestUsagePage_RendersQuotaAndCounts(t *testing.T) {
	t.Parallel()

	page, tracker := newTestPage(t)
	tracker.SetSnapshot(types.Usage{
		Daily:   types.QuotaWindow{Current: 3, Limit: 50},
		Monthly: types.QuotaWindow{Current: 80, Limit: 80},
	})
	tracker.Track("chat-1", 2, 2)
	page.TitleFor = func(id string) string { return "Project kickoff" }
	page.UpdateContent()

	out := page.View()
	if !strings.Contains(out, "3 / 50") {
		t.Error("daily window missing")
	}
	if !strings.Contains(out, "limit reached") {
		t.Error("exhausted monthly window must be flagged")
	}
	if !strings.Contains(out, "Project kickoff") {
		t.Error("session title missing from the table")
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("tracker save: %v", err)
	}
}

func TestUsagePage_UnlimitedWindow(t *testing.T) {
	t.Parallel()

	page, tracker := newTestPage(t)
	tracker.SetSnapshot(types.Usage{Daily: types.QuotaWindow{Current: 12, Limit: 0}})
	page.UpdateContent()

	if out := page.View(); !strings.Contains(out, "unlimited") {
		t.Errorf("unlimited window not labelled: %q", out)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 30); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 40)
	got := truncate(long, 30)
	if len(got) != 30 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(long) = %q (len %d)", got, len(got))
	}
}
