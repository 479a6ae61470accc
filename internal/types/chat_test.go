package types

import (
	"testing"
	"time"
)

func TestChatHistoryClone_IsDeep(t *testing.T) {
	t.Parallel()

	orig := &ChatHistory{
		ID:    "c1",
		Title: "original",
		Messages: []Message{
			{ID: "m1", Content: "hi", Sender: SenderUser, Timestamp: time.Now()},
			{ID: "m2", Content: "hello", Sender: SenderAI, Sources: []Source{{ID: "s1"}}},
		},
	}

	clone := orig.Clone()
	clone.Title = "mutated"
	clone.Messages[0].Content = "changed"
	clone.Messages[1].Sources[0].ID = "changed"
	clone.Messages = append(clone.Messages, Message{ID: "m3"})

	if orig.Title != "original" {
		t.Error("clone shares the title")
	}
	if orig.Messages[0].Content != "hi" {
		t.Error("clone shares the message slice")
	}
	if orig.Messages[1].Sources[0].ID != "s1" {
		t.Error("clone shares the sources slice")
	}
	if len(orig.Messages) != 2 {
		t.Error("append to the clone grew the original")
	}
}

func TestQuotaWindowExhausted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		window QuotaWindow
		want   bool
	}{
		{"under limit", QuotaWindow{Current: 5, Limit: 10}, false},
		{"at limit", QuotaWindow{Current: 10, Limit: 10}, true},
		{"over limit", QuotaWindow{Current: 11, Limit: 10}, true},
		{"zero limit is unlimited", QuotaWindow{Current: 9999, Limit: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.window.Exhausted(); got != tc.want {
			t.Errorf("%s: Exhausted() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
