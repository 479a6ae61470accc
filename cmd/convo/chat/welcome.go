package chat

import "strings"

// renderWelcome is the empty-transcript screen: a short banner plus the
// commands a first-time user needs.
func (m Model) renderWelcome() string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(m.styles.Title.Render("  convo"))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Muted.Render("  Ask anything. Answers cite their sources."))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Body.Render("  Type a message and press Enter to start."))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Muted.Render("  /sessions  browse your chats"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("  /help      all commands"))
	sb.WriteString("\n")

	if !m.remoteOn {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Warning.Render("  Offline mode: replies and sync are unavailable."))
		sb.WriteString("\n")
	}
	return sb.String()
}
