package theme

import (
	"fmt"
	"strings"
)

// Manager handles theme selection and management
type Manager struct {
	currentTheme Theme
}

// NewManager creates a new theme manager with default settings
func NewManager(t Theme) *Manager {
	return &Manager{
		currentTheme: t,
	}
}

// GetCurrentTheme returns the currently active theme
func (m *Manager) GetCurrentTheme() Theme {
	return m.currentTheme
}

// StateStyle picks the style used to render a node lifecycle state name
func (m *Manager) StateStyle(state string) *Style {
	t := m.currentTheme
	switch strings.ToLower(state) {
	case "running", "ready":
		return t.Success()
	case "starting", "stopping":
		return t.Warning()
	case "failed", "died":
		return t.Error()
	default:
		return t.Subtle()
	}
}

// DisplayBanner prints a boxed title with optional subtitles
func (m *Manager) DisplayBanner(title string, width int, subtitle ...string) {
	primary := m.currentTheme.Primary()
	secondary := m.currentTheme.Secondary()

	if width < len(title)+4 {
		width = len(title) + 4
	}
	for _, sub := range subtitle {
		if len(sub)+4 > width {
			width = len(sub) + 4
		}
	}

	primary.Println("╔" + strings.Repeat("═", width-2) + "╗")
	primary.Println(centered(title, width))

	if len(subtitle) > 0 {
		primary.Println("║" + strings.Repeat("─", width-2) + "║")
		for _, sub := range subtitle {
			secondary.Println(centered(sub, width))
		}
	}

	primary.Println("╚" + strings.Repeat("═", width-2) + "╝")
}

func centered(text string, width int) string {
	pad := width - len(text) - 2
	left := pad / 2
	right := pad - left
	return fmt.Sprintf("║%s%s%s║", strings.Repeat(" ", left), text, strings.Repeat(" ", right))
}
