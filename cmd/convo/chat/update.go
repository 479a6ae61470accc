package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"convo/internal/api"
	"convo/internal/session"
	"convo/internal/types"
)

// Messages produced by the async commands.
type (
	sendResultMsg struct {
		reply types.Message
		err   error
	}
	syncDoneMsg struct {
		err error
	}
	messagesRefreshedMsg struct {
		chatID string
		err    error
	}
	usageRefreshedMsg struct {
		snapshot types.Usage
		err      error
	}
	renameDoneMsg struct {
		title string
	}
	deleteDoneMsg struct{}
)

// ExternalChangeMsg tells the model that another process rewrote the local
// state while the UI was running; the render caches must be rebuilt.
type ExternalChangeMsg struct{}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sendResultMsg:
		m.isLoading = false
		m.reloadHistory()
		if msg.err != nil {
			m.errMsg = sendErrorText(msg.err)
		} else {
			m.errMsg = ""
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		if m.remoteOn && msg.err == nil {
			return m, m.refreshUsageCmd()
		}
		return m, nil

	case syncDoneMsg:
		if msg.err != nil {
			m.errMsg = "Sync failed: " + msg.err.Error()
			return m, nil
		}
		m.statusMsg = "Synced with server."
		m.refreshList()
		m.reloadHistory()
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case messagesRefreshedMsg:
		if msg.err != nil {
			m.errMsg = "Could not refresh messages: " + msg.err.Error()
			return m, nil
		}
		m.reloadHistory()
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil

	case usageRefreshedMsg:
		if msg.err == nil {
			m.usagePage.UpdateContent()
		}
		return m, nil

	case renameDoneMsg:
		m.statusMsg = "Renamed to " + msg.title + "."
		m.refreshList()
		return m, nil

	case deleteDoneMsg:
		m.reloadHistory()
		m.refreshList()
		m.statusMsg = "Chat deleted."
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case ExternalChangeMsg:
		m.reloadHistory()
		m.refreshList()
		m.usagePage.UpdateContent()
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateComponents(msg)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 2
	inputHeight := 5
	footerHeight := 1
	m.viewport.Width = msg.Width
	m.viewport.Height = msg.Height - headerHeight - inputHeight - footerHeight
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.textarea.SetWidth(msg.Width - 4)
	m.list.SetSize(msg.Width, msg.Height-2)
	m.usagePage.SetSize(msg.Width, msg.Height)

	m.renderer = newMarkdownRenderer(m.styles.Theme, msg.Width-6)
	if !m.ready {
		m.ready = true
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.viewMode {
	case ListView:
		return m.handleListKey(msg)
	case UsageView:
		return m.handleUsageKey(msg)
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		if msg.Alt {
			break // alt+enter inserts a newline through the textarea
		}
		return m.handleSubmit()
	}

	return m.updateComponents(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.viewMode = ChatView
		return m, nil
	case tea.KeyEnter:
		if item, ok := m.list.SelectedItem().(chatItem); ok {
			m.manager.SelectChat(item.id)
			m.reloadHistory()
			m.viewMode = ChatView
			m.errMsg = ""
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
			if m.remoteOn {
				return m, m.refreshMessagesCmd(item.id)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleUsageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.viewMode = ChatView
		return m, nil
	}
	var cmd tea.Cmd
	m.usagePage, cmd = m.usagePage.Update(msg)
	return m, cmd
}

// handleSubmit processes the textarea content: slash commands dispatch
// immediately, anything else becomes a message exchange.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		m.textarea.Reset()
		return m.handleCommand(input)
	}

	if m.isLoading {
		m.errMsg = "Still waiting for the previous reply."
		return m, nil
	}
	if m.manager.SelectedID() == "" {
		m.manager.NewChat()
		m.statusMsg = ""
	}

	m.textarea.Reset()
	m.errMsg = ""
	m.isLoading = true

	cmd := m.sendCmd(input)

	// The user's turn lands in the manager as soon as the send command
	// starts; show it optimistically so the screen doesn't lag behind.
	m.history = append(m.history, types.Message{Content: input, Sender: types.SenderUser})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// sendErrorText maps a failed exchange to the line shown under the chat.
func sendErrorText(err error) string {
	var quota *api.QuotaError
	switch {
	case errors.As(err, &quota):
		return quota.Error()
	case errors.Is(err, session.ErrGenerationInFlight):
		return "Still waiting for the previous reply."
	case errors.Is(err, api.ErrUnauthorized):
		return "Your session expired. Run `convo login` and try again."
	default:
		return err.Error()
	}
}
