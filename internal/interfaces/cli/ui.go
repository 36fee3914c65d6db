package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// UIConfig configures one terminal session.
type UIConfig struct {
	Client     *Client
	Info       BannerInfo
	InitPrompt string
	NoMemory   bool
}

// RunUI starts the interactive terminal client and blocks until quit.
func RunUI(cfg UIConfig) error {
	p := tea.NewProgram(newUIModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type deltaMsg string

type streamDoneMsg struct {
	reply  string
	finish string
	err    error
}

type spinTickMsg struct{}

type uiModel struct {
	cfg      UIConfig
	viewport viewport.Model
	textarea textarea.Model
	renderer *Renderer

	history    []Message // wire transcript sent to the daemon
	transcript []string  // rendered blocks shown in the viewport
	notice     string

	streaming bool
	partial   string
	spinIdx   int
	events    chan tea.Msg
	cancel    context.CancelFunc

	width  int
	height int
	ready  bool
}

func newUIModel(cfg UIConfig) *uiModel {
	ta := textarea.New()
	ta.Placeholder = "Ask Ghost anything..."
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return &uiModel{
		cfg:      cfg,
		textarea: ta,
		renderer: NewRenderer(80),
		events:   make(chan tea.Msg, 64),
	}
}

func (m *uiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.cfg.InitPrompt != "" {
		cmds = append(cmds, func() tea.Msg {
			return tea.KeyMsg{Type: tea.KeyEnter}
		})
		m.textarea.SetValue(m.cfg.InitPrompt)
	}
	return tea.Batch(cmds...)
}

func (m *uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer = NewRenderer(msg.Width)
		m.textarea.SetWidth(msg.Width - 2)
		vpHeight := msg.Height - m.textarea.Height() - 3
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.streaming {
				m.interrupt()
				return m, tea.Batch(taCmd, vpCmd)
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.streaming {
				m.interrupt()
			}
			return m, tea.Batch(taCmd, vpCmd)
		case tea.KeyEnter:
			if cmd := m.submit(); cmd != nil {
				return m, tea.Batch(taCmd, vpCmd, cmd)
			}
		}

	case deltaMsg:
		m.partial += string(msg)
		m.refreshViewport()
		return m, tea.Batch(taCmd, vpCmd, m.waitEvent())

	case streamDoneMsg:
		m.finishStream(msg)
		return m, tea.Batch(taCmd, vpCmd)

	case spinTickMsg:
		if m.streaming {
			m.spinIdx = (m.spinIdx + 1) % len(spinnerFrames)
			m.refreshViewport()
			return m, tea.Batch(taCmd, vpCmd, m.spinTick())
		}
	}

	return m, tea.Batch(taCmd, vpCmd)
}

// submit sends the textarea content, either as a slash command or as a
// chat turn. Returns nil when there is nothing to do.
func (m *uiModel) submit() tea.Cmd {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" || m.streaming {
		return nil
	}
	m.textarea.Reset()

	if cmd := ParseSlashCommand(input); cmd != nil {
		result := ExecuteCommand(cmd, m.cfg.Info)
		if result.IsQuit {
			return tea.Quit
		}
		if result.IsReset {
			m.history = nil
			m.transcript = nil
		}
		if result.Output != "" {
			m.notice = result.Output
		}
		m.refreshViewport()
		return nil
	}

	m.notice = ""
	m.history = append(m.history, Message{Role: "user", Content: input})
	m.transcript = append(m.transcript, m.renderer.RenderUser(input))
	m.partial = ""
	m.streaming = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	history := append([]Message(nil), m.history...)

	go func() {
		reply, finish, err := m.cfg.Client.ChatStream(ctx, history, m.cfg.NoMemory, func(delta string) {
			m.events <- deltaMsg(delta)
		})
		m.events <- streamDoneMsg{reply: reply, finish: finish, err: err}
	}()

	m.refreshViewport()
	return tea.Batch(m.waitEvent(), m.spinTick())
}

func (m *uiModel) finishStream(msg streamDoneMsg) {
	m.streaming = false
	m.partial = ""
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	if msg.err != nil {
		m.transcript = append(m.transcript, m.renderer.RenderError(msg.err))
		// drop the failed turn so a retry resends it cleanly
		if n := len(m.history); n > 0 && m.history[n-1].Role == "user" {
			m.history = m.history[:n-1]
		}
		m.refreshViewport()
		return
	}

	m.history = append(m.history, Message{Role: "assistant", Content: msg.reply})
	block := m.renderer.RenderMarkdown(msg.reply)
	if msg.finish == "length" {
		block += "\n" + m.renderer.RenderTruncated()
	}
	m.transcript = append(m.transcript, block)
	m.refreshViewport()
}

// interrupt cancels the in-flight run. The daemon keeps going, the
// client just stops listening.
func (m *uiModel) interrupt() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *uiModel) waitEvent() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

func (m *uiModel) spinTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return spinTickMsg{}
	})
}

func (m *uiModel) refreshViewport() {
	if !m.ready {
		return
	}

	var sb strings.Builder
	sb.WriteString(RenderBanner(m.cfg.Info, m.width))
	for _, block := range m.transcript {
		sb.WriteString("\n")
		sb.WriteString(block)
		sb.WriteString("\n")
	}
	if m.streaming {
		sb.WriteString("\n")
		sb.WriteString(m.renderer.RenderPartial(m.partial, spinnerFrames[m.spinIdx]))
		sb.WriteString("\n")
	}
	if m.notice != "" {
		sb.WriteString("\n")
		sb.WriteString(m.notice)
		sb.WriteString("\n")
	}

	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *uiModel) View() string {
	if !m.ready {
		return "starting..."
	}

	statusStyle := lipgloss.NewStyle().Foreground(colorDim)
	status := statusStyle.Render(fmt.Sprintf(" %s · %s", m.cfg.Info.Model, m.cfg.Info.Endpoint))
	if m.streaming {
		status = statusStyle.Render(" streaming · Esc to interrupt")
	}

	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), status, m.textarea.View())
}
