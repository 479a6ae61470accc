// Package ui provides the visual styling for the convo terminal client,
// with light and dark palettes and terminal background auto-detection.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Light palette (default)
	lightBackground = lipgloss.Color("#fafafa")
	lightForeground = lipgloss.Color("#1c2333")
	lightPrimary    = lipgloss.Color("#3451b2")
	lightAccent     = lipgloss.Color("#0e7490")
	lightMuted      = lipgloss.Color("#8a919e")
	lightBorder     = lipgloss.Color("#d9dde3")
	lightCard       = lipgloss.Color("#ffffff")

	// Dark palette
	darkBackground = lipgloss.Color("#12161f")
	darkForeground = lipgloss.Color("#e6e9ef")
	darkPrimary    = lipgloss.Color("#7aa2f7")
	darkAccent     = lipgloss.Color("#2dd4bf")
	darkMuted      = lipgloss.Color("#565f72")
	darkBorder     = lipgloss.Color("#2a3347")
	darkCard       = lipgloss.Color("#1a2130")

	// Semantic colors, shared by both palettes
	colorError   = lipgloss.Color("#e5484d")
	colorSuccess = lipgloss.Color("#46a758")
	colorWarning = lipgloss.Color("#f5a524")
)

// Theme holds one color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light color scheme.
func LightTheme() Theme {
	return Theme{
		Background: lightBackground,
		Foreground: lightForeground,
		Primary:    lightPrimary,
		Accent:     lightAccent,
		Muted:      lightMuted,
		Border:     lightBorder,
		Card:       lightCard,
		IsDark:     false,
	}
}

// DarkTheme returns the dark color scheme.
func DarkTheme() Theme {
	return Theme{
		Background: darkBackground,
		Foreground: darkForeground,
		Primary:    darkPrimary,
		Accent:     darkAccent,
		Muted:      darkMuted,
		Border:     darkBorder,
		Card:       darkCard,
		IsDark:     true,
	}
}

// ThemeByName resolves a saved preference. Unknown names fall back to
// terminal detection so stale preference files never break startup.
func ThemeByName(name string) Theme {
	switch strings.ToLower(name) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	default:
		return DetectTheme()
	}
}

// DetectTheme picks a palette from the terminal background, with an
// environment override for scripted setups.
func DetectTheme() Theme {
	switch strings.ToLower(os.Getenv("CONVO_THEME")) {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	}
	if termenv.HasDarkBackground() {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds every styled component the chat screens use.
type Styles struct {
	Theme Theme

	// Layout
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	InputBox  lipgloss.Style

	// Text
	Title    lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style

	// Conversation
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantBody  lipgloss.Style
	SourceBlock    lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Spinner lipgloss.Style

	Divider lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 1),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Selected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserLabel: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		AssistantLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		AssistantBody: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Primary),

		SourceBlock: lipgloss.NewStyle().
			Foreground(theme.Muted).
			PaddingLeft(4).
			Italic(true),

		Success: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// DefaultStyles returns styles for the auto-detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider draws a horizontal rule of the given width.
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
