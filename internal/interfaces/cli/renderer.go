package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Renderer turns transcript entries into styled terminal output.
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{
		glamour: r,
		width:   width,
	}
}

// RenderMarkdown renders a finished assistant reply.
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// RenderUser renders a sent user message.
func (r *Renderer) RenderUser(text string) string {
	promptStyle := lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	textStyle := lipgloss.NewStyle().Foreground(colorWhite)
	return fmt.Sprintf("%s %s", promptStyle.Render("❯"), textStyle.Render(text))
}

// RenderPartial renders an in-flight reply. Raw text, markdown is only
// rendered once the stream finishes.
func (r *Renderer) RenderPartial(text, spinnerFrame string) string {
	spinStyle := lipgloss.NewStyle().Foreground(colorYellow)
	if text == "" {
		thinkStyle := lipgloss.NewStyle().Foreground(colorDimCyan).Italic(true)
		return thinkStyle.Render(fmt.Sprintf("  %s thinking...", spinnerFrame))
	}
	return text + " " + spinStyle.Render(spinnerFrame)
}

// RenderError renders a failed run.
func (r *Renderer) RenderError(err error) string {
	style := lipgloss.NewStyle().Foreground(colorRed)
	return style.Render(fmt.Sprintf("✗ %v", err))
}

// RenderTruncated flags a reply that hit the turn budget.
func (r *Renderer) RenderTruncated() string {
	style := lipgloss.NewStyle().Foreground(colorYellow)
	return style.Render("⚠ stopped at the turn budget, answer may be incomplete")
}
