package theme

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Style represents a named color style
type Style struct {
	printer *color.Color
	writer  io.Writer
}

// NewStyle creates a new style with foreground, background and attributes
func NewStyle(fg, bg color.Attribute, attrs ...color.Attribute) *Style {
	c := color.New(fg)

	if bg != 0 {
		c.Add(bg)
	}

	if len(attrs) > 0 {
		c.Add(attrs...)
	}

	return &Style{printer: c}
}

// WithWriter sets a custom writer for the style
func (s *Style) WithWriter(w io.Writer) *Style {
	s.writer = w
	return s
}

// Print prints text using the style
func (s *Style) Print(a ...interface{}) {
	if s.writer == nil {
		s.printer.Print(a...)
		return
	}
	fmt.Fprint(s.writer, s.printer.Sprint(a...))
}

// Printf prints formatted text using the style
func (s *Style) Printf(format string, a ...interface{}) {
	if s.writer == nil {
		s.printer.Printf(format, a...)
		return
	}
	fmt.Fprint(s.writer, s.printer.Sprintf(format, a...))
}

// Println prints text using the style followed by a newline
func (s *Style) Println(a ...interface{}) {
	if s.writer == nil {
		s.printer.Println(a...)
		return
	}
	fmt.Fprint(s.writer, s.printer.Sprintln(a...))
}

// Sprint returns styled text as string
func (s *Style) Sprint(a ...interface{}) string {
	return s.printer.Sprint(a...)
}

func (s *Style) setColor(enabled bool) {
	if enabled {
		s.printer.EnableColor()
	} else {
		s.printer.DisableColor()
	}
}
