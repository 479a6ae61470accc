package ui

import (
	"strings"
	"testing"
)

func TestDetectTheme_EnvOverride(t *testing.T) {
	t.Setenv("CONVO_THEME", "dark")
	if !DetectTheme().IsDark {
		t.Fatal("expected dark theme when CONVO_THEME=dark")
	}

	t.Setenv("CONVO_THEME", "light")
	if DetectTheme().IsDark {
		t.Fatal("expected light theme when CONVO_THEME=light")
	}
}

func TestThemeByName(t *testing.T) {
	t.Setenv("CONVO_THEME", "light") // pin detection for the fallback case

	if !ThemeByName("dark").IsDark {
		t.Error("dark by name")
	}
	if ThemeByName("light").IsDark {
		t.Error("light by name")
	}
	if ThemeByName("LIGHT").IsDark {
		t.Error("names are case-insensitive")
	}
	if ThemeByName("mystery").IsDark {
		t.Error("unknown names fall back to detection")
	}
}

func TestNewStyles_CarriesTheme(t *testing.T) {
	t.Parallel()

	s := NewStyles(DarkTheme())
	if !s.Theme.IsDark {
		t.Error("styles must carry their theme")
	}
}

func TestRenderDivider(t *testing.T) {
	t.Parallel()

	s := NewStyles(LightTheme())
	if got := s.RenderDivider(0); got != "" {
		t.Errorf("zero width divider = %q", got)
	}
	if got := s.RenderDivider(-3); got != "" {
		t.Errorf("negative width divider = %q", got)
	}
	if got := s.RenderDivider(5); !strings.Contains(got, "─────") {
		t.Errorf("divider = %q", got)
	}
}
