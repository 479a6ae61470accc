package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"convo/internal/types"
)

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	switch m.viewMode {
	case ListView:
		return m.list.View()
	case UsageView:
		return m.usagePage.View()
	}

	header := m.renderHeader()
	content := m.viewport.View()
	input := m.styles.InputBox.Render(m.textarea.View())
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
}

func (m Model) renderHeader() string {
	title := "convo"
	if m.manager != nil {
		if id := m.manager.SelectedID(); id != "" {
			if t := m.manager.Title(id); t != "" {
				title = t
			}
		}
	}
	line := m.styles.Header.Render(title)
	return lipgloss.JoinVertical(lipgloss.Left, line, m.styles.RenderDivider(m.width))
}

func (m Model) renderFooter() string {
	if m.errMsg != "" {
		return m.styles.Error.Render(" " + m.errMsg)
	}
	if m.isLoading {
		return m.styles.StatusBar.Render(m.spinner.View() + " thinking...")
	}
	if m.statusMsg != "" {
		return m.styles.StatusBar.Render(m.statusMsg)
	}
	return m.styles.StatusBar.Render("Enter to send · /help for commands")
}

// renderHistory formats the active chat transcript.
func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	for _, msg := range m.history {
		switch msg.Sender {
		case types.SenderUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.Body.Render(msg.Content))
			sb.WriteString("\n\n")
		default:
			sb.WriteString(m.styles.AssistantLabel.Render("Convo") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
			sb.WriteString(m.renderSources(msg.Sources))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderSources lists the citations under an assistant turn.
func (m Model) renderSources(sources []types.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.styles.Muted.Render("  Sources:") + "\n")
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.ID
		}
		sb.WriteString(m.styles.SourceBlock.Render(fmt.Sprintf("[%d] %s", i+1, title)) + "\n")
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery; glamour can
// panic on some terminal/width combinations, and a raw transcript beats a
// crashed client.
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content
}
