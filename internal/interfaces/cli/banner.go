package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

const appVersion = "0.1.0"

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorDim     = lipgloss.Color("#4E4E4E")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

var logoLines = []string{
	"  ██████  ██   ██  ██████   ███████ ████████",
	" ██       ██   ██ ██    ██  ██         ██   ",
	" ██  ███  ███████ ██    ██  ███████    ██   ",
	" ██   ██  ██   ██ ██    ██       ██    ██   ",
	"  ██████  ██   ██  ██████   ███████    ██   ",
}

// Gradient colors top to bottom (violet into cyan)
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#AF5FFF"),
	lipgloss.Color("#875FFF"),
	lipgloss.Color("#5F5FFF"),
	lipgloss.Color("#005FFF"),
	lipgloss.Color("#00AFFF"),
}

// BannerInfo carries daemon stats shown in the welcome banner.
type BannerInfo struct {
	Model    string
	Endpoint string
	Pools    map[string]int
	Uptime   int64
	Sandbox  string
}

// RenderBanner returns the styled welcome banner with the gradient logo.
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	tipStyle := lipgloss.NewStyle().Foreground(colorDim)
	greenStyle := lipgloss.NewStyle().Foreground(colorGreen)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)

	var logo string
	if width >= 46 {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo += lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n"
		}
	} else {
		logo = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render(" ◇  G H O S T") + "\n"
	}

	ver := versionStyle.Render(fmt.Sprintf("  v%s", appVersion))

	modelLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Model  "),
		valueStyle.Render(info.Model),
	)
	endpointLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Daemon "),
		valueStyle.Render(info.Endpoint)+labelStyle.Render(fmt.Sprintf("  up %s", formatUptime(info.Uptime))),
	)

	nodes := 0
	for _, n := range info.Pools {
		nodes += n
	}
	fleetLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Fleet  "),
		greenStyle.Render(fmt.Sprintf("%d nodes across %d pools", nodes, len(info.Pools))),
	)
	sandboxLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Sandbox"),
		labelStyle.Render(info.Sandbox),
	)

	tips := tipStyle.Render("  Enter to send · /help for commands · Ctrl+C to quit")

	return fmt.Sprintf("\n%s%s\n\n%s\n%s\n%s\n%s\n\n%s\n",
		logo, ver,
		modelLine, endpointLine, fleetLine, sandboxLine,
		tips,
	)
}
