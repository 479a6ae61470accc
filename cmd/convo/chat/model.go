// Package chat provides the interactive TUI for convo. The implementation
// is split across files:
//   - model.go: model type, construction, Init (this file)
//   - update.go: the Update loop and async commands
//   - commands.go: /command handling
//   - view.go: rendering
//   - welcome.go: the first-screen banner
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"convo/cmd/convo/ui"
	"convo/internal/session"
	"convo/internal/store"
	"convo/internal/types"
	"convo/internal/usage"
)

// sendTimeout bounds one full assistant round-trip.
const sendTimeout = 2 * time.Minute

// ViewMode determines which screen is active.
type ViewMode int

const (
	ChatView ViewMode = iota
	ListView
	UsageView
)

// chatItem adapts a chat history entry to the bubbles list.
type chatItem struct {
	id, title, when string
	messages        int
}

func (i chatItem) Title() string       { return i.title }
func (i chatItem) Description() string { return i.when }
func (i chatItem) FilterValue() string { return i.title }

// Model is the top-level bubbletea model for the chat screen.
type Model struct {
	// UI components
	textarea  textarea.Model
	viewport  viewport.Model
	spinner   spinner.Model
	list      list.Model
	usagePage ui.UsagePageModel
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	viewMode ViewMode

	// Collaborators
	manager *session.Manager
	tracker *usage.Tracker
	local   *store.LocalStore

	// Render cache of the selected chat, reloaded from the manager after
	// every mutation it reports.
	history []types.Message

	isLoading bool
	statusMsg string
	errMsg    string
	width     int
	height    int
	ready     bool
	remoteOn  bool
}

// Options configures the chat screen.
type Options struct {
	Manager *session.Manager
	Tracker *usage.Tracker
	Local   *store.LocalStore
	// Remote reports whether a backend is wired; offline mode hides the
	// sync-dependent affordances.
	Remote bool
}

// New builds the chat model. The theme preference saved on disk wins over
// terminal detection.
func New(opts Options) Model {
	theme := ui.DetectTheme()
	if opts.Local != nil {
		if saved := opts.Local.LoadThemeMode(); saved != "" {
			theme = ui.ThemeByName(string(saved))
		}
	}
	styles := ui.NewStyles(theme)

	ta := textarea.New()
	ta.Placeholder = "Ask anything... (/help for commands)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 8000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	// Enter submits; newlines go through alt+enter.
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	delegate := list.NewDefaultDelegate()
	chats := list.New(nil, delegate, 0, 0)
	chats.Title = "Chats"
	chats.SetShowStatusBar(false)

	m := Model{
		textarea:  ta,
		spinner:   sp,
		list:      chats,
		usagePage: ui.NewUsagePageModel(opts.Tracker, styles),
		styles:    styles,
		manager:   opts.Manager,
		tracker:   opts.Tracker,
		local:     opts.Local,
		remoteOn:  opts.Remote,
	}
	m.usagePage.TitleFor = m.titleFor
	m.renderer = newMarkdownRenderer(theme, 80)
	m.reloadHistory()
	return m
}

// Init starts the spinner and kicks off the initial remote sync.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spinner.Tick}
	if m.remoteOn {
		cmds = append(cmds, m.syncCmd(), m.refreshUsageCmd())
	}
	return tea.Batch(cmds...)
}

// newMarkdownRenderer builds a glamour renderer for the active theme.
// A nil renderer falls back to plain text at render time.
func newMarkdownRenderer(theme ui.Theme, width int) *glamour.TermRenderer {
	style := "light"
	if theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// reloadHistory refreshes the render cache from the manager.
func (m *Model) reloadHistory() {
	if m.manager == nil {
		return
	}
	m.history = m.manager.ActiveMessages()
}

// titleFor resolves a chat id to its display title for the usage page.
func (m Model) titleFor(id string) string {
	if m.manager == nil {
		return ""
	}
	for _, h := range m.manager.Histories() {
		if h.ID == id || h.RemoteID == id {
			return h.Title
		}
	}
	return ""
}

// refreshList rebuilds the session list items, most recent first.
func (m *Model) refreshList() {
	if m.manager == nil {
		return
	}
	histories := m.manager.Histories()
	items := make([]list.Item, 0, len(histories))
	selected := m.manager.SelectedID()
	for _, h := range histories {
		title := h.Title
		if h.ID == selected {
			title += " (current)"
		}
		items = append(items, chatItem{
			id:       h.ID,
			title:    title,
			when:     h.UpdatedAt.Format("Jan 2 15:04"),
			messages: len(h.Messages),
		})
	}
	m.list.SetItems(items)
}

// sendCmd runs one full message exchange off the UI goroutine.
func (m Model) sendCmd(content string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		reply, err := mgr.SendMessage(ctx, content)
		return sendResultMsg{reply: reply, err: err}
	}
}

// syncCmd reconciles the local collection with the backend.
func (m Model) syncCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return syncDoneMsg{err: mgr.SyncRemote(ctx, 20)}
	}
}

// refreshMessagesCmd pulls the authoritative message list for one chat.
func (m Model) refreshMessagesCmd(chatID string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return messagesRefreshedMsg{chatID: chatID, err: mgr.RefreshMessages(ctx, chatID)}
	}
}

// renameCmd applies a rename off the UI goroutine; the server leg inside
// RenameChat would otherwise block the event loop on a slow backend.
func (m Model) renameCmd(id, title string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.RenameChat(ctx, id, title)
		return renameDoneMsg{title: title}
	}
}

// deleteCmd removes a chat off the UI goroutine, same as renameCmd.
func (m Model) deleteCmd(id string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.DeleteChat(ctx, id)
		return deleteDoneMsg{}
	}
}

// refreshUsageCmd fetches a fresh quota snapshot.
func (m Model) refreshUsageCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		snapshot, err := mgr.RefreshUsage(ctx)
		return usageRefreshedMsg{snapshot: snapshot, err: err}
	}
}
