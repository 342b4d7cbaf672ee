// Package tui is a terminal chat client for a chat.Service built on Bubble
// Tea. Typing /clear resets the conversation; /quit leaves.
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

	"github.com/KamdynS/weather-agents/chat"
)

// Sender is the part of chat.Service the TUI needs.
type Sender interface {
	Send(ctx context.Context, sessionID, text string) (chat.Reply, error)
	Reset(ctx context.Context, sessionID string) error
}

const (
	title        = "Weather & Air Quality Assistant"
	inputHeight  = 3
	chromeHeight = 4
	helpText     = "Ask about the current weather or air quality anywhere, e.g. \"Is it raining in Jakarta?\".\n" +
		"Commands: /clear resets the conversation, /help shows this text, /quit exits."
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
	roleError
)

type entry struct {
	role role
	text string
}

type replyMsg struct {
	reply chat.Reply
	err   error
}

type resetMsg struct{ err error }

// Model is the root Bubble Tea model.
type Model struct {
	sender    Sender
	sessionID string
	timeout   time.Duration

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries []entry
	waiting bool
	ready   bool
	width   int
}

// New creates a model bound to sessionID. An empty id lets the first reply
// pick one.
func New(sender Sender, sessionID string) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about the weather or air quality..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 2000
	ta.SetHeight(inputHeight)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		sender:    sender,
		sessionID: sessionID,
		timeout:   2 * time.Minute,
		input:     ta,
		spinner:   s,
		entries:   []entry{{role: roleSystem, text: helpText}},
	}
}

// SessionID returns the conversation id, empty until the first reply.
func (m Model) SessionID() string { return m.sessionID }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m.submit(text)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.add(roleError, "Sorry, something went wrong: "+msg.err.Error())
			return m, nil
		}
		m.sessionID = msg.reply.SessionID
		m.add(roleAssistant, msg.reply.Text)
		return m, nil

	case resetMsg:
		m.waiting = false
		if msg.err != nil {
			m.add(roleError, "Could not clear the conversation: "+msg.err.Error())
			return m, nil
		}
		m.entries = nil
		m.add(roleSystem, "Conversation cleared.")
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		switch strings.ToLower(strings.Fields(text)[0]) {
		case "/clear":
			if m.sessionID == "" {
				return m, func() tea.Msg { return resetMsg{} }
			}
			m.waiting = true
			return m, m.resetCmd(m.sessionID)
		case "/quit", "/exit":
			return m, tea.Quit
		case "/help":
			m.add(roleSystem, helpText)
			return m, nil
		default:
			m.add(roleError, fmt.Sprintf("Unknown command %s. Type /help for commands.", text))
			return m, nil
		}
	}
	m.add(roleUser, text)
	m.waiting = true
	return m, m.sendCmd(m.sessionID, text)
}

func (m Model) sendCmd(sessionID, text string) tea.Cmd {
	sender, timeout := m.sender, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		reply, err := sender.Send(ctx, sessionID, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) resetCmd(sessionID string) tea.Cmd {
	sender, timeout := m.sender, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return resetMsg{err: sender.Reset(ctx, sessionID)}
	}
}

func (m *Model) add(r role, text string) {
	m.entries = append(m.entries, entry{role: r, text: text})
	m.refresh()
}

func (m *Model) resize(w, h int) {
	m.width = w
	vh := h - inputHeight - chromeHeight
	if vh < 1 {
		vh = 1
	}
	if !m.ready {
		m.viewport = viewport.New(w, vh)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = vh
	}
	m.input.SetWidth(w)
	m.renderer = nil
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	parts := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		parts = append(parts, m.render(e))
	}
	m.viewport.SetContent(strings.Join(parts, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) render(e entry) string {
	switch e.role {
	case roleUser:
		return userStyle.Render("You: ") + e.text + "\n"
	case roleSystem:
		return systemStyle.Render(e.text) + "\n"
	case roleError:
		return errorStyle.Render(e.text) + "\n"
	}
	return m.markdown(e.text)
}

// markdown renders assistant text; the bullet sections of specialist
// answers are valid Markdown lists.
func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		width := m.width - 4
		if width < 20 {
			width = 20
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
		if err != nil {
			return text + "\n"
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	header := titleStyle.Render(title)
	if m.sessionID != "" {
		header += hintStyle.Render("  session " + m.sessionID)
	}
	status := hintStyle.Render("Enter to send · /clear to reset · Esc to quit")
	if m.waiting {
		status = m.spinner.View() + " Thinking..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), status, m.input.View())
}

// Run starts a full-screen chat session and blocks until the user quits or
// ctx ends.
func Run(ctx context.Context, sender Sender, sessionID string) error {
	_, err := tea.NewProgram(New(sender, sessionID), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
