package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SlashCommand is a parsed /command with its arguments.
type SlashCommand struct {
	Name string
	Args []string
}

// ParseSlashCommand returns nil when the input is not a slash command.
func ParseSlashCommand(input string) *SlashCommand {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return &SlashCommand{Name: name, Args: args}
}

// CommandResult is the outcome of executing a slash command.
type CommandResult struct {
	Output  string
	IsQuit  bool
	IsReset bool
}

// ExecuteCommand handles the local slash commands. Anything unknown is
// reported rather than forwarded to the daemon.
func ExecuteCommand(cmd *SlashCommand, info BannerInfo) CommandResult {
	switch cmd.Name {
	case "help", "h":
		return CommandResult{Output: renderHelp()}
	case "exit", "quit", "q":
		return CommandResult{IsQuit: true}
	case "new", "reset":
		return CommandResult{Output: "conversation cleared", IsReset: true}
	case "status", "s":
		return CommandResult{Output: renderStatus(info)}
	case "version":
		return CommandResult{Output: fmt.Sprintf("ghost v%s", appVersion)}
	default:
		return CommandResult{Output: fmt.Sprintf("unknown command: /%s  (try /help)", cmd.Name)}
	}
}

func renderHelp() string {
	titleStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	cmdStyle := lipgloss.NewStyle().Foreground(colorGreen)
	descStyle := lipgloss.NewStyle().Foreground(colorGray)

	cmds := []struct {
		name string
		desc string
	}{
		{"/help", "show this help"},
		{"/new", "clear the conversation"},
		{"/status", "daemon model, fleet and uptime"},
		{"/version", "client version"},
		{"/exit", "quit"},
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("◇ Commands"))
	sb.WriteString("\n\n")

	for _, c := range cmds {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			cmdStyle.Render(fmt.Sprintf("%-12s", c.name)),
			descStyle.Render(c.desc),
		))
	}

	return sb.String()
}

func renderStatus(info BannerInfo) string {
	titleStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("◇ Daemon"))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Endpoint"), valueStyle.Render(info.Endpoint)))
	sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Model   "), valueStyle.Render(info.Model)))
	sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Uptime  "), valueStyle.Render(formatUptime(info.Uptime))))
	for pool, n := range info.Pools {
		sb.WriteString(fmt.Sprintf("  %s %s\n",
			labelStyle.Render(fmt.Sprintf("%-8s", pool)),
			valueStyle.Render(fmt.Sprintf("%d node(s)", n)),
		))
	}

	return sb.String()
}
