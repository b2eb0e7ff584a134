package theme_test

import (
	"bytes"
	"testing"

	"github.com/apps78/cotune-bridge/internal/theme"
	"github.com/stretchr/testify/assert"
)

func plainManager(buf *bytes.Buffer) *theme.Manager {
	t := theme.NewDefaultTheme()
	t.SetEnabled(false)
	t.SetOutput(buf)
	return theme.NewManager(t)
}

func TestManager_DisplayBanner(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		width    int
		subtitle []string
		want     string
	}{
		{
			name:  "Basic title without subtitle",
			title: "My App",
			width: 20,
			want: "╔══════════════════╗\n" +
				"║      My App      ║\n" +
				"╚══════════════════╝\n",
		},
		{
			name:     "Title with subtitle",
			title:    "My App",
			width:    20,
			subtitle: []string{"Version 1.0"},
			want: "╔══════════════════╗\n" +
				"║      My App      ║\n" +
				"║──────────────────║\n" +
				"║   Version 1.0    ║\n" +
				"╚══════════════════╝\n",
		},
		{
			name:  "Width grows to fit the title",
			title: "cotune",
			width: 4,
			want: "╔════════╗\n" +
				"║ cotune ║\n" +
				"╚════════╝\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			plainManager(&buf).DisplayBanner(tt.title, tt.width, tt.subtitle...)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestManager_StateStyle(t *testing.T) {
	th := theme.NewDefaultTheme()
	m := theme.NewManager(th)

	assert.Same(t, th.Success(), m.StateStyle("Running"))
	assert.Same(t, th.Warning(), m.StateStyle("starting"))
	assert.Same(t, th.Error(), m.StateStyle("died"))
	assert.Same(t, th.Subtle(), m.StateStyle("idle"))
}

func TestTheme_SetEnabled(t *testing.T) {
	var buf bytes.Buffer
	th := theme.NewProfessionalTheme()
	th.SetOutput(&buf)
	th.SetEnabled(false)

	th.Error().Printf("failed: %s", "boom")
	assert.Equal(t, "failed: boom", buf.String())
	assert.False(t, th.IsEnabled())
}
