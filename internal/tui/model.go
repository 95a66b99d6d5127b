// Package tui is the terminal chat front end for a docrag engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// Backend is the chat-facing subset of the engine. The in-process engine and
// the HTTP client adapter both satisfy it.
type Backend interface {
	Ingest(ctx context.Context, folder string) (domain.IngestStats, error)
	Query(ctx context.Context, question string) (domain.Answer, error)
}

const helpText = "commands: /reindex  /index <folder>  /sources  /help  (ctrl+c quits)"

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
	roleError
)

type entry struct {
	role    role
	text    string
	sources []domain.QueryResult
}

type answerMsg struct {
	answer domain.Answer
	err    error
}

type ingestMsg struct {
	folder string
	stats  domain.IngestStats
	err    error
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctx     context.Context
	backend Backend
	folder  string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript  []entry
	busy        bool
	busyLabel   string
	showSources bool
	ready       bool
}

// New creates a chat model for folder. When indexed is false the model
// ingests folder on start.
func New(ctx context.Context, backend Backend, folder string, indexed bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		ctx:         ctx,
		backend:     backend,
		folder:      folder,
		input:       ti,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		showSources: true,
	}
	if !indexed {
		m.busy = true
		m.busyLabel = "indexing " + folder
	}
	return m
}

// Init starts the cursor blink and, if needed, the initial ingest.
func (m Model) Init() tea.Cmd {
	if m.busy {
		return tea.Batch(textinput.Blink, m.spinner.Tick, m.ingest(m.folder))
	}
	return textinput.Blink
}

// Update handles key, window and backend events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		// header, status line, input line
		reserved := 3 + fh + ih
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.push(entry{role: roleError, text: msg.err.Error()})
		} else {
			m.push(entry{role: roleAssistant, text: msg.answer.Text, sources: msg.answer.Sources})
		}
		return m, nil

	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.push(entry{role: roleError, text: msg.err.Error()})
			return m, nil
		}
		m.folder = msg.folder
		m.push(entry{role: roleSystem, text: ingestSummary(msg.stats)})
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}

	m.push(entry{role: roleUser, text: text})
	m.busy = true
	m.busyLabel = "thinking"
	return m, tea.Batch(m.spinner.Tick, m.query(text))
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/reindex":
		m.busy = true
		m.busyLabel = "re-indexing " + m.folder
		return m, tea.Batch(m.spinner.Tick, m.ingest(m.folder))
	case "/index":
		if arg == "" {
			m.push(entry{role: roleError, text: "usage: /index <folder>"})
			return m, nil
		}
		m.busy = true
		m.busyLabel = "indexing " + arg
		return m, tea.Batch(m.spinner.Tick, m.ingest(arg))
	case "/sources":
		m.showSources = !m.showSources
		state := "hidden"
		if m.showSources {
			state = "shown"
		}
		m.push(entry{role: roleSystem, text: "sources " + state})
		return m, nil
	case "/help":
		m.push(entry{role: roleSystem, text: helpText})
		return m, nil
	case "/quit", "/exit":
		return m, tea.Quit
	default:
		m.push(entry{role: roleError, text: fmt.Sprintf("unknown command %s; %s", name, helpText)})
		return m, nil
	}
}

func (m Model) query(question string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		answer, err := backend.Query(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m Model) ingest(folder string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		stats, err := backend.Ingest(ctx, folder)
		return ingestMsg{folder: folder, stats: stats, err: err}
	}
}

// push appends to the transcript and scrolls to the bottom.
func (m *Model) push(e entry) {
	m.transcript = append(m.transcript, e)
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docrag") + "  " + mutedStyle.Render(m.folder)

	status := mutedStyle.Render(helpText)
	if m.busy {
		status = m.spinner.View() + " " + m.busyLabel + "..."
	}

	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(userStyle.Render("you: ") + e.text)
		case roleAssistant:
			b.WriteString(assistantStyle.Render("docrag: ") + e.text)
			if m.showSources && len(e.sources) > 0 {
				b.WriteString("\n" + renderSources(e.sources))
			}
		case roleSystem:
			b.WriteString(mutedStyle.Render("* " + e.text))
		case roleError:
			b.WriteString(errorStyle.Render("error: " + e.text))
		}
	}
	return b.String()
}

func renderSources(sources []domain.QueryResult) string {
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("  [%d] %s @%d  score=%.3f",
			i+1, s.Chunk.SourceName, s.Chunk.StartOffset, s.Score))
	}
	return mutedStyle.Render(strings.Join(lines, "\n"))
}

func ingestSummary(st domain.IngestStats) string {
	s := fmt.Sprintf("indexed %d files, %d chunks", st.Documents, st.Chunks)
	var notes []string
	if st.SkippedShort > 0 {
		notes = append(notes, fmt.Sprintf("%d too short", st.SkippedShort))
	}
	if st.FailedFiles > 0 {
		notes = append(notes, fmt.Sprintf("%d failed", st.FailedFiles))
	}
	if st.SkippedFiles > 0 {
		notes = append(notes, fmt.Sprintf("%d unsupported", st.SkippedFiles))
	}
	if len(notes) > 0 {
		s += " (" + strings.Join(notes, ", ") + ")"
	}
	return s
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
