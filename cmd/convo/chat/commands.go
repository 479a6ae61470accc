package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"convo/cmd/convo/ui"
	"convo/internal/store"
	"convo/internal/types"
)

const helpText = `## Commands

| Command | Description |
|---------|-------------|
| /new | Start a new chat |
| /sessions | Browse and switch chats |
| /rename <title> | Rename the current chat |
| /delete | Delete the current chat |
| /sync | Reconcile with the server |
| /usage | Show quota and message counts |
| /theme [light|dark] | Switch the color scheme |
| /help | Show this help |
| /quit | Exit |

Enter sends, Alt+Enter inserts a newline, Esc leaves a sub-screen.`

// handleCommand dispatches /commands typed into the input box.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	name := parts[0]
	args := strings.TrimSpace(strings.TrimPrefix(input, name))

	switch name {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/new":
		if m.isLoading {
			m.errMsg = "Still waiting for the previous reply."
			return m, nil
		}
		m.manager.NewChat()
		m.reloadHistory()
		m.errMsg = ""
		m.statusMsg = "Started a new chat."
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case "/sessions":
		m.refreshList()
		m.viewMode = ListView
		return m, nil

	case "/rename":
		if args == "" {
			m.errMsg = "Usage: /rename <new title>"
			return m, nil
		}
		id := m.manager.SelectedID()
		if id == "" {
			m.errMsg = "No chat selected."
			return m, nil
		}
		m.errMsg = ""
		m.statusMsg = "Renaming..."
		return m, m.renameCmd(id, args)

	case "/delete":
		id := m.manager.SelectedID()
		if id == "" {
			m.errMsg = "No chat selected."
			return m, nil
		}
		if m.isLoading {
			m.errMsg = "Wait for the current reply before deleting."
			return m, nil
		}
		m.errMsg = ""
		m.statusMsg = "Deleting..."
		return m, m.deleteCmd(id)

	case "/sync":
		if !m.remoteOn {
			m.errMsg = "Offline mode: no server configured."
			return m, nil
		}
		m.statusMsg = "Syncing..."
		return m, m.syncCmd()

	case "/usage":
		m.usagePage.UpdateContent()
		m.viewMode = UsageView
		if m.remoteOn {
			return m, m.refreshUsageCmd()
		}
		return m, nil

	case "/theme":
		return m.handleThemeCommand(args)

	case "/help":
		m.appendNotice(helpText)
		return m, nil

	default:
		m.errMsg = "Unknown command " + name + ". Try /help."
		return m, nil
	}
}

// handleThemeCommand switches palettes and persists the preference.
func (m Model) handleThemeCommand(arg string) (tea.Model, tea.Cmd) {
	var theme ui.Theme
	switch strings.ToLower(arg) {
	case "light":
		theme = ui.LightTheme()
	case "dark":
		theme = ui.DarkTheme()
	case "":
		// Toggle.
		if m.styles.Theme.IsDark {
			theme = ui.LightTheme()
		} else {
			theme = ui.DarkTheme()
		}
	default:
		m.errMsg = "Usage: /theme [light|dark]"
		return m, nil
	}

	m.styles = ui.NewStyles(theme)
	m.renderer = newMarkdownRenderer(theme, m.width-6)
	m.usagePage = ui.NewUsagePageModel(m.tracker, m.styles)
	m.usagePage.TitleFor = m.titleFor
	m.usagePage.SetSize(m.width, m.height)
	m.spinner.Style = m.styles.Spinner

	if m.local != nil {
		mode := store.ThemeLight
		if theme.IsDark {
			mode = store.ThemeDark
		}
		m.local.SaveThemeMode(mode)
	}

	name := "light"
	if theme.IsDark {
		name = "dark"
	}
	m.errMsg = ""
	m.statusMsg = "Theme set to " + name + "."
	m.viewport.SetContent(m.renderHistory())
	return m, nil
}

// appendNotice shows informational markdown inline; it lives only in the
// render cache and vanishes on the next reload.
func (m *Model) appendNotice(text string) {
	m.history = append(m.history, types.Message{Content: text, Sender: types.SenderAI})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}
