package theme

import (
	"io"

	"github.com/fatih/color"
)

// DefaultTheme represents the default theme implementation
type DefaultTheme struct {
	primary   *Style
	secondary *Style
	success   *Style
	error     *Style
	warning   *Style
	info      *Style
	subtle    *Style
	enabled   bool
}

var _ Theme = (*DefaultTheme)(nil)

// NewDefaultTheme creates a new default theme
func NewDefaultTheme() *DefaultTheme {
	return &DefaultTheme{
		primary:   NewStyle(color.FgHiCyan, 0, color.Bold),
		secondary: NewStyle(color.FgBlue, 0),
		success:   NewStyle(color.FgGreen, 0, color.Bold),
		error:     NewStyle(color.FgRed, 0, color.Bold),
		warning:   NewStyle(color.FgYellow, 0),
		info:      NewStyle(color.FgWhite, 0),
		subtle:    NewStyle(color.FgHiBlack, 0),
		enabled:   !color.NoColor,
	}
}

// NewProfessionalTheme creates a muted theme used by default on terminals
func NewProfessionalTheme() *DefaultTheme {
	return &DefaultTheme{
		primary:   NewStyle(color.FgBlue, 0, color.Bold),
		secondary: NewStyle(color.FgHiBlue, 0),
		success:   NewStyle(color.FgGreen, 0),
		error:     NewStyle(color.FgRed, 0),
		warning:   NewStyle(color.FgYellow, 0),
		info:      NewStyle(color.FgWhite, 0),
		subtle:    NewStyle(color.FgHiBlack, 0),
		enabled:   !color.NoColor,
	}
}

func (t *DefaultTheme) styles() []*Style {
	return []*Style{t.primary, t.secondary, t.success, t.error, t.warning, t.info, t.subtle}
}

// Primary returns the primary style
func (t *DefaultTheme) Primary() *Style {
	return t.primary
}

// Secondary returns the secondary style
func (t *DefaultTheme) Secondary() *Style {
	return t.secondary
}

// Success returns the success style
func (t *DefaultTheme) Success() *Style {
	return t.success
}

// Error returns the error style
func (t *DefaultTheme) Error() *Style {
	return t.error
}

// Warning returns the warning style
func (t *DefaultTheme) Warning() *Style {
	return t.warning
}

// Info returns the info style
func (t *DefaultTheme) Info() *Style {
	return t.info
}

// Subtle returns the subtle style
func (t *DefaultTheme) Subtle() *Style {
	return t.subtle
}

// IsEnabled reports if colors are enabled
func (t *DefaultTheme) IsEnabled() bool {
	return t.enabled && !color.NoColor
}

// SetEnabled enables or disables color output
func (t *DefaultTheme) SetEnabled(enabled bool) {
	t.enabled = enabled
	for _, s := range t.styles() {
		s.setColor(enabled)
	}
}

// SetOutput redirects every style to w
func (t *DefaultTheme) SetOutput(w io.Writer) {
	for _, s := range t.styles() {
		s.WithWriter(w)
	}
}
