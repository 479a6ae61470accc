package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"convo/internal/types"
)

// rawMessage tolerates every message shape the backend has ever produced.
// Decoding is an exhaustive match over the known legacy forms so a new
// deployment never drops history written by an old one.
type rawMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Sender    string          `json:"sender"` // legacy: some deployments already send sender
	Content   string          `json:"content"`
	Text      string          `json:"text"` // legacy field name for content
	Timestamp json.RawMessage `json:"timestamp"`
	CreatedAt json.RawMessage `json:"created_at"` // legacy timestamp field
	Sources   []rawSource     `json:"sources"`
}

type rawSource struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Snippet string `json:"snippet"` // legacy field name for content
}

// normalizeMessage maps a raw backend message into the UI-facing shape:
// role "assistant" becomes SenderAI, anything else SenderUser.
func normalizeMessage(raw rawMessage) types.Message {
	sender := types.SenderUser
	switch {
	case raw.Role == "assistant", raw.Sender == string(types.SenderAI):
		sender = types.SenderAI
	}

	content := raw.Content
	if content == "" {
		content = raw.Text
	}

	msg := types.Message{
		ID:        raw.ID,
		Content:   content,
		Sender:    sender,
		Timestamp: normalizeTimestamp(raw.Timestamp, raw.CreatedAt),
	}
	for _, s := range raw.Sources {
		content := s.Content
		if content == "" {
			content = s.Snippet
		}
		msg.Sources = append(msg.Sources, types.Source{ID: s.ID, Title: s.Title, Content: content})
	}
	return msg
}

// normalizeTimestamp reduces the historical timestamp formats to a single
// time value. Accepted shapes, in order of preference:
//
//	"timestamp" as epoch milliseconds (number)
//	"timestamp" as epoch seconds (number below the millisecond range)
//	"timestamp" as an ISO-8601 / RFC3339 string
//	"created_at" in any of the above forms
//
// Anything else falls back to now.
func normalizeTimestamp(fields ...json.RawMessage) time.Time {
	for _, field := range fields {
		if len(field) == 0 || string(field) == "null" {
			continue
		}
		if ts, ok := parseTimestamp(field); ok {
			return ts
		}
	}
	return time.Now()
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	s := strings.TrimSpace(string(raw))

	// Numeric epoch, either seconds or milliseconds.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		millis := int64(n)
		if millis < 1e12 { // epoch seconds fit well below the millisecond range
			millis = int64(n * 1000)
		}
		return time.UnixMilli(millis), true
	}

	// Quoted string: ISO-8601 or a numeric string.
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return ts, true
	}
	if ts, err := time.Parse(time.RFC3339, str); err == nil {
		return ts, true
	}
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		if n < 1e12 {
			n *= 1000
		}
		return time.UnixMilli(n), true
	}
	return time.Time{}, false
}
