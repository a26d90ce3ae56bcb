// Package chatui is the Bubble Tea model behind the terminal chat client.
// Finished turns are printed above the program; the view only holds the
// answer in progress and the input area.
package chatui

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nulzo/streamchat/internal/cli"
	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/settings"
	"github.com/nulzo/streamchat/pkg/api"
)

const helpText = `Commands:
  /help      show this help
  /reset     clear the conversation history
  /settings  show the active settings (keys redacted)
  /cancel    stop the answer in progress
  /exit      quit

Keys:
  Enter      send
  Alt+Enter  new line
  Ctrl+C     stop the answer in progress, or quit when idle`

type Deps struct {
	Service  gateway.Service
	Settings settings.Store
	// Markdown renders each finished answer with glamour.
	Markdown bool
}

type Model struct {
	deps    Deps
	input   textarea.Model
	spinner spinner.Model

	history []api.ConversationTurn
	answer  strings.Builder
	prompt  string

	waiting  bool
	gen      uint64
	cancel   context.CancelFunc
	events   <-chan tea.Msg
	renderer *glamour.TermRenderer
	width    int
}

func New(deps Deps) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your trip..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(2)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = inputPrompt
	ta.FocusedStyle.Placeholder = mutedText
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAssistant)

	return &Model{
		deps:    deps,
		input:   ta,
		spinner: s,
		width:   80,
	}
}

// History returns the conversation so far. Only completed answers are kept.
func (m *Model) History() []api.ConversationTurn {
	return m.history
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		tea.Println(cli.Gradient("streamchat", cli.BrandBlue, cli.BrandPurple)+
			mutedText.Render("  /help for commands")),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(msg.Width - 2)
		m.renderer = nil
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case fragmentMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.answer.WriteString(msg.Text)
		return m, waitForEvent(m.events)

	case streamDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		return m.finish(msg.Err)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		if m.waiting {
			m.cancel()
			return m, nil
		}
		return m, tea.Quit

	case msg.Type == tea.KeyEnter && !msg.Alt:
		value := strings.TrimSpace(m.input.Value())
		if value == "" || m.waiting {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(value, "/") {
			return m.handleCommand(value)
		}
		return m.submit(value)
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCommand(value string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(value)
	switch strings.ToLower(fields[0]) {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/help":
		return m, tea.Println(mutedText.Render(helpText))
	case "/reset", "/clear":
		m.history = nil
		return m, tea.Println(cli.CheckMark() + " history cleared")
	case "/cancel":
		if m.waiting {
			m.cancel()
		}
		return m, nil
	case "/settings":
		cfg, err := m.deps.Settings.Load(context.Background())
		if err != nil {
			return m, tea.Println(describeError(err))
		}
		return m, tea.Println(cli.PrettyFormat(cfg.Redacted()))
	default:
		return m, tea.Println(warningText.Render("unknown command " + fields[0] + ", try /help"))
	}
}

func (m *Model) submit(message string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.gen++
	m.cancel = cancel
	m.waiting = true
	m.prompt = message
	m.answer.Reset()
	m.input.Blur()

	m.events = startStream(ctx, m.deps.Service, message, slices.Clone(m.history), m.gen)
	return m, tea.Batch(
		tea.Println(userLabel.Render("you")+" "+message),
		m.spinner.Tick,
		waitForEvent(m.events),
	)
}

// finish closes the turn. A completed answer joins the history; a failed or
// canceled one is reported and dropped.
func (m *Model) finish(err error) (tea.Model, tea.Cmd) {
	m.cancel()
	m.cancel = nil
	m.events = nil
	m.waiting = false
	m.input.Focus()

	answer := m.answer.String()
	m.answer.Reset()

	if err != nil {
		out := describeError(err)
		if answer != "" {
			out = assistantLabel.Render("assistant") + " " + answer + "\n" + out
		}
		return m, tea.Println(out)
	}

	m.history = append(m.history,
		api.ConversationTurn{Role: api.RoleUser, Content: m.prompt},
		api.ConversationTurn{Role: api.RoleAssistant, Content: answer},
	)
	return m, tea.Println(assistantLabel.Render("assistant") + "\n" + m.render(answer))
}

func (m *Model) render(content string) string {
	if !m.deps.Markdown || content == "" {
		return content
	}
	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(m.width-4),
		)
		if err != nil {
			return content
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (m *Model) View() string {
	var b strings.Builder
	if m.waiting {
		b.WriteString(assistantLabel.Render("assistant") + " ")
		if m.answer.Len() == 0 {
			b.WriteString(m.spinner.View())
		} else {
			b.WriteString(m.answer.String())
		}
		b.WriteString("\n" + mutedText.Render("ctrl+c to stop") + "\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func describeError(err error) string {
	var (
		cfgErr       *api.ConfigurationError
		transportErr *api.TransportError
	)
	switch {
	case errors.Is(err, api.ErrCanceled):
		return mutedText.Render("(canceled)")
	case errors.As(err, &cfgErr):
		return cli.WarningSign() + " " + warningText.Render(err.Error()) + "\n" +
			mutedText.Render("   edit the settings file and try again")
	case errors.As(err, &transportErr) && len(transportErr.Body) > 0:
		return cli.CrossMark() + " " + errorText.Render(err.Error()) + "\n" + cli.PrettyFormat(string(transportErr.Body))
	default:
		return cli.CrossMark() + " " + errorText.Render(err.Error())
	}
}
