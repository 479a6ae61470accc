package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"convo/internal/types"
	"convo/internal/usage"
)

// UsagePageModel renders the quota snapshot and per-chat message counters
// in a scrollable viewport.
type UsagePageModel struct {
	viewport viewport.Model
	tracker  *usage.Tracker
	styles   Styles

	// TitleFor resolves a chat id to its display title; nil shows raw ids.
	TitleFor func(id string) string
}

// NewUsagePageModel creates the usage page component.
func NewUsagePageModel(tracker *usage.Tracker, styles Styles) UsagePageModel {
	return UsagePageModel{
		viewport: viewport.New(80, 20),
		tracker:  tracker,
		styles:   styles,
	}
}

// SetSize resizes the viewport, reserving rows for the surrounding chrome.
func (m *UsagePageModel) SetSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - 4
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.UpdateContent()
}

// UpdateContent rebuilds the viewport content from the tracker. Call it when
// entering the page and after a snapshot refresh.
func (m *UsagePageModel) UpdateContent() {
	if m.tracker == nil {
		m.viewport.SetContent(m.styles.Muted.Render("Usage tracking is not available."))
		return
	}

	stats := m.tracker.Stats()

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Usage"))
	sb.WriteString("\n\n")

	if stats.FetchedAt.IsZero() {
		sb.WriteString(m.styles.Muted.Render("No quota snapshot yet. Send a message or run /sync to fetch one."))
		sb.WriteString("\n\n")
	} else {
		sb.WriteString(m.renderWindow("Daily", stats.Snapshot.Daily))
		sb.WriteString(m.renderWindow("Monthly", stats.Snapshot.Monthly))
		sb.WriteString(m.styles.Muted.Render("fetched " + stats.FetchedAt.Format(time.RFC822)))
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Messages sent:     %d\n", stats.Total.Sent))
	sb.WriteString(fmt.Sprintf("Replies received:  %d\n\n", stats.Total.Received))

	if len(stats.BySession) > 0 {
		sb.WriteString(m.styles.Title.Render("By chat"))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%-30s | %-8s | %-8s\n", "Chat", "Sent", "Received"))
		sb.WriteString(strings.Repeat("-", 52) + "\n")

		ids := make([]string, 0, len(stats.BySession))
		for id := range stats.BySession {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			c := stats.BySession[id]
			sb.WriteString(fmt.Sprintf("%-30s | %-8d | %-8d\n", truncate(m.titleFor(id), 30), c.Sent, c.Received))
		}
	}

	m.viewport.SetContent(sb.String())
}

func (m *UsagePageModel) renderWindow(label string, w types.QuotaWindow) string {
	if w.Limit == 0 {
		return fmt.Sprintf("%-8s unlimited (%d used)\n", label, w.Current)
	}
	line := fmt.Sprintf("%-8s %d / %d", label, w.Current, w.Limit)
	if w.Exhausted() {
		return m.styles.Error.Render(line+"  limit reached") + "\n"
	}
	return line + "\n"
}

func (m *UsagePageModel) titleFor(id string) string {
	if m.TitleFor != nil {
		if title := m.TitleFor(id); title != "" {
			return title
		}
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// Update forwards scrolling to the viewport.
func (m UsagePageModel) Update(msg tea.Msg) (UsagePageModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the page.
func (m UsagePageModel) View() string {
	return m.viewport.View()
}
