// Package tui is the interactive chat screen.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeanpaul/memoria/internal/agent"
	"github.com/jeanpaul/memoria/internal/tools"
	"github.com/jeanpaul/memoria/internal/vault"
)

var (
	// Thinking spinner, braille dots
	ThinkingSpinner = spinner.Spinner{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		FPS:    time.Second / 12,
	}

	// Tool execution spinner
	ToolSpinner = spinner.Spinner{
		Frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
		FPS:    time.Second / 10,
	}
)

const (
	headerHeight = 5
	inputHeight  = 4
)

type agentEventMsg agent.Event

// turnEndedMsg arrives once the Send goroutine has returned and closed
// its event channel.
type turnEndedMsg struct{}

type consolidatedMsg agent.Report

// Options wires the chat screen to a session.
type Options struct {
	Session      *agent.Session
	Consolidator *agent.Consolidator
	Vault        *vault.Vault
	ModelName    string
	DefaultSave  string
}

type chatMessage struct {
	role    string
	content string
}

type Model struct {
	width, height int
	viewport      viewport.Model
	textarea      textarea.Model
	spinner       spinner.Model
	renderer      *glamour.TermRenderer
	menu          MenuModel

	session      *agent.Session
	consolidator *agent.Consolidator
	vault        *vault.Vault
	modelName    string
	defaultSave  string

	messages      []chatMessage
	thinking      bool
	currentTool   string
	eventCh       chan agent.Event
	cancelTurn    context.CancelFunc
	quitAfterTurn bool

	consolidating       bool
	cancelConsolidation context.CancelFunc
	report              *agent.Report
}

func NewModel(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Talk to Memoria..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(White)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(DimCyan)
	ta.BlurredStyle.Base = lipgloss.NewStyle().Foreground(MidGray)

	sp := spinner.New()
	sp.Spinner = ThinkingSpinner
	sp.Style = SpinnerThinkingStyle

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	save := opts.DefaultSave
	if save == "" {
		save = "memoria-session.md"
	}

	m := Model{
		viewport:     vp,
		textarea:     ta,
		spinner:      sp,
		renderer:     r,
		menu:         NewMenuModel(),
		session:      opts.Session,
		consolidator: opts.Consolidator,
		vault:        opts.Vault,
		modelName:    opts.ModelName,
		defaultSave:  save,
	}
	m.messages = append(m.messages, chatMessage{
		role:    "system",
		content: "Memoria remembers what matters across conversations. Type /help for commands, quit to leave.",
	})
	return m
}

// Report is the consolidation outcome once the program has exited, or nil
// when it never ran.
func (m Model) Report() *agent.Report { return m.report }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
	)
}

func (m *Model) layout() {
	menuH := 0
	if m.menu.active {
		menuH = menuHeight
	}
	m.viewport.Width = max(m.width-4, 10)
	m.viewport.Height = max(m.height-headerHeight-inputHeight-menuH, 3)
	m.textarea.SetWidth(max(m.width-8, 10))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.rebuildView()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case agentEventMsg:
		m.handleEvent(agent.Event(msg))
		m.rebuildView()
		return m, m.waitForEvent()

	case turnEndedMsg:
		m.thinking = false
		m.currentTool = ""
		m.cancelTurn = nil
		m.eventCh = nil
		if m.quitAfterTurn {
			cmd := m.startConsolidation()
			return m, cmd
		}
		m.rebuildView()
		return m, nil

	case consolidatedMsg:
		rep := agent.Report(msg)
		m.report = &rep
		m.consolidating = false
		style := SuccessStyle
		if !rep.OK() {
			style = NoticeStyle
		}
		m.messages = append(m.messages, chatMessage{role: "status", content: style.Render(rep.String())})
		m.rebuildView()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.thinking || m.consolidating {
			m.rebuildView()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.consolidating {
		// A second interrupt abandons consolidation; the report still
		// arrives and ends the program.
		if msg.String() == "ctrl+c" && m.cancelConsolidation != nil {
			m.cancelConsolidation()
		}
		return m, nil
	}

	if m.menu.active {
		switch msg.String() {
		case "esc":
			m.menu.active = false
			m.layout()
			m.rebuildView()
			return m, nil
		case "enter":
			selected := m.menu.Selected()
			m.menu.active = false
			m.layout()
			if selected == "" {
				m.rebuildView()
				return m, nil
			}
			if selected == "/quit" {
				return m.requestQuit()
			}
			m.textarea.SetValue(selected + " ")
			m.textarea.CursorEnd()
			m.rebuildView()
			return m, nil
		}
		var cmd tea.Cmd
		m.menu, cmd = m.menu.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		if m.thinking {
			if m.cancelTurn != nil {
				m.cancelTurn()
			}
			m.messages = append(m.messages, chatMessage{role: "system", content: "Stopping..."})
			m.rebuildView()
			return m, nil
		}
		return m.requestQuit()

	case "esc":
		return m.requestQuit()

	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil

	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil

	case "enter":
		if m.thinking {
			return m, nil
		}
		text := strings.TrimSpace(m.textarea.Value())
		m.textarea.Reset()
		switch {
		case text == "":
			return m, nil
		case isQuitWord(text):
			return m.requestQuit()
		case strings.HasPrefix(text, "/"):
			return m.handleSlashCommand(text)
		}
		cmd := m.startTurn(text)
		return m, cmd

	case "/":
		if m.textarea.Value() == "" && !m.thinking {
			m.menu.Open()
			m.layout()
			m.rebuildView()
			// The list starts filtering on '/', so typing narrows it.
			var cmd tea.Cmd
			m.menu, cmd = m.menu.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func isQuitWord(s string) bool {
	s = strings.ToLower(s)
	return s == "quit" || s == "exit"
}

func (m *Model) startTurn(text string) tea.Cmd {
	m.messages = append(m.messages, chatMessage{role: "user", content: text})
	m.messages = append(m.messages, chatMessage{role: "assistant"})
	m.thinking = true
	m.currentTool = ""
	m.spinner.Spinner = ThinkingSpinner
	m.spinner.Style = SpinnerThinkingStyle

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTurn = cancel
	ch := make(chan agent.Event, 64)
	m.eventCh = ch
	sess := m.session

	m.rebuildView()
	m.viewport.GotoBottom()

	return tea.Batch(
		func() tea.Msg {
			defer cancel()
			defer close(ch)
			sess.Send(ctx, text, ch)
			return nil
		},
		m.waitForEvent(),
	)
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.eventCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return turnEndedMsg{}
		}
		return agentEventMsg(ev)
	}
}

func (m *Model) handleEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventDelta:
		m.appendAssistant(ev.Text)

	case agent.EventToolCall:
		m.currentTool = ev.ToolName
		m.spinner.Spinner = ToolSpinner
		m.spinner.Style = SpinnerToolStyle
		m.messages = append(m.messages, chatMessage{role: "tool", content: formatToolCallDisplay(ev.ToolName, ev.ToolArgs)})

	case agent.EventToolResult:
		m.messages = append(m.messages, chatMessage{role: "tool_result", content: ev.Result})
		m.currentTool = ""
		m.spinner.Spinner = ThinkingSpinner
		m.spinner.Style = SpinnerThinkingStyle
		// Text streamed after tools belongs to a new reply block.
		m.messages = append(m.messages, chatMessage{role: "assistant"})

	case agent.EventNotice:
		m.messages = append(m.messages, chatMessage{role: "notice", content: "I went back and forth with my memory too many times on that one. Could you ask again, maybe more specifically?"})

	case agent.EventError:
		if ev.Error == "canceled" {
			m.messages = append(m.messages, chatMessage{role: "system", content: "Reply stopped."})
		} else {
			m.messages = append(m.messages, chatMessage{role: "error", content: ev.Error})
		}
	}
}

func (m *Model) appendAssistant(text string) {
	if n := len(m.messages); n > 0 && m.messages[n-1].role == "assistant" {
		m.messages[n-1].content += text
		return
	}
	m.messages = append(m.messages, chatMessage{role: "assistant", content: text})
}

func (m Model) requestQuit() (tea.Model, tea.Cmd) {
	if m.thinking {
		m.quitAfterTurn = true
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		m.rebuildView()
		return m, nil
	}
	cmd := m.startConsolidation()
	return m, cmd
}

// startConsolidation runs the end of session pass on a fresh context so
// an interrupted turn does not cancel it.
func (m *Model) startConsolidation() tea.Cmd {
	m.consolidating = true
	m.textarea.Blur()
	m.spinner.Spinner = ThinkingSpinner
	m.spinner.Style = SpinnerThinkingStyle
	m.messages = append(m.messages, chatMessage{role: "system", content: "Consolidating memory..."})
	m.rebuildView()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelConsolidation = cancel
	cons := m.consolidator
	history := m.session.Messages()
	return func() tea.Msg {
		defer cancel()
		return consolidatedMsg(cons.Consolidate(ctx, history))
	}
}

func (m Model) handleSlashCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case "/help":
		m.messages = append(m.messages, chatMessage{role: "system", content: helpText()})

	case "/core":
		core, err := m.vault.ReadCore()
		switch {
		case err != nil:
			m.messages = append(m.messages, chatMessage{role: "error", content: err.Error()})
		case strings.TrimSpace(core) == "":
			m.messages = append(m.messages, chatMessage{role: "system", content: "Core memory is empty."})
		default:
			m.messages = append(m.messages, chatMessage{role: "assistant", content: fmt.Sprintf("**Core memory** (~%d/%d tokens)\n\n%s",
				vault.EstimateTokens(core), m.vault.CoreMaxTokens(), core)})
		}

	case "/notes":
		sub := ""
		if len(parts) > 1 {
			sub = parts[1]
		}
		notes, err := m.vault.ListNotes(sub)
		if err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: tools.FormatNotes(notes)})
		}

	case "/tokens":
		m.messages = append(m.messages, chatMessage{
			role:    "system",
			content: fmt.Sprintf("~%d tokens, %d messages, %d turns", m.session.EstimatedTokens(), len(m.session.Messages()), m.session.Turns()),
		})

	case "/save":
		path := m.defaultSave
		if len(parts) > 1 {
			path = parts[1]
		}
		if err := m.session.Export(path); err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: "system", content: "Saved to " + path})
		}

	case "/quit":
		return m.requestQuit()

	default:
		m.messages = append(m.messages, chatMessage{
			role:    "error",
			content: fmt.Sprintf("Unknown command: %s (type /help for available commands)", cmd),
		})
	}

	m.rebuildView()
	m.viewport.GotoBottom()
	return m, nil
}

func (m *Model) rebuildView() {
	var sb strings.Builder

	for i := 0; i < len(m.messages); i++ {
		msg := m.messages[i]
		switch msg.role {
		case "user":
			sb.WriteString(UserBlockStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
				UserLabelStyle.Render("YOU"),
				UserMsgStyle.Render(msg.content),
			)) + "\n")

		case "assistant":
			if strings.TrimSpace(msg.content) == "" {
				continue
			}
			sb.WriteString(AssistantBlockStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
				AssistantLabelStyle.Render("MEMORIA"),
				m.renderMarkdown(msg.content),
			)) + "\n")

		case "tool":
			var result string
			if i+1 < len(m.messages) && m.messages[i+1].role == "tool_result" {
				result = m.messages[i+1].content
				i++
			}
			sb.WriteString(renderToolBlock(msg.content, result))

		case "tool_result":
			sb.WriteString(renderToolBlock(ToolLabelStyle.Render("● result"), msg.content))

		case "system":
			sb.WriteString(SystemMsgStyle.Render("  "+msg.content) + "\n\n")

		case "notice":
			sb.WriteString(NoticeStyle.Render("  ! "+msg.content) + "\n\n")

		case "status":
			sb.WriteString("  " + msg.content + "\n\n")

		case "error":
			sb.WriteString(ErrorStyle.Render("  ✗ Error: "+msg.content) + "\n\n")
		}
	}

	if m.thinking || m.consolidating {
		status := statusFor(m.currentTool)
		if m.consolidating {
			status = "Consolidating memory..."
		}
		sb.WriteString(m.spinner.Style.Render(fmt.Sprintf(" %s %s", m.spinner.View(), status)) + "\n")
	}

	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(sb.String())
	if wasAtBottom || len(m.messages) <= 1 {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (m Model) View() string {
	state := "ready"
	switch {
	case m.consolidating:
		state = "consolidating"
	case m.thinking:
		state = "thinking"
	}
	header := HeaderStyle.Width(max(m.width, 20)).Render(lipgloss.JoinHorizontal(lipgloss.Bottom,
		BannerStyle.Render(Banner),
		lipgloss.NewStyle().PaddingLeft(3).Render(lipgloss.JoinVertical(lipgloss.Left,
			HelpStyle.Render(m.modelName),
			HelpStyle.Render(state),
		)),
	))

	prompt := lipgloss.NewStyle().Foreground(BrightGreen).Bold(true).Render("> ")
	if m.thinking || m.consolidating {
		prompt = lipgloss.NewStyle().Foreground(Magenta).Bold(true).Render("● ")
	}
	input := InputBoxStyle.Width(max(m.width-4, 10)).Render(lipgloss.JoinHorizontal(lipgloss.Top, prompt, m.textarea.View()))

	help := HelpStyle.Render("Enter: send  •  /: commands  •  PgUp/PgDn: scroll  •  Esc: quit")

	parts := []string{header, m.viewport.View()}
	if m.menu.active {
		parts = append(parts, m.menu.View())
	}
	parts = append(parts, input, lipgloss.NewStyle().PaddingLeft(2).Render(help))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
