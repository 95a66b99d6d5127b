package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kailas-cloud/docrag/internal/domain"
)

// --- Mocks ---

type fakeBackend struct {
	folders   []string
	questions []string
	stats     domain.IngestStats
	ingestErr error
	answer    domain.Answer
	queryErr  error
}

func (f *fakeBackend) Ingest(_ context.Context, folder string) (domain.IngestStats, error) {
	f.folders = append(f.folders, folder)
	return f.stats, f.ingestErr
}

func (f *fakeBackend) Query(_ context.Context, question string) (domain.Answer, error) {
	f.questions = append(f.questions, question)
	return f.answer, f.queryErr
}

// --- Helpers ---

// drain runs cmd and every command it batches, feeding backend results back
// into the model.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(t, m, c)
		}
	case answerMsg, ingestMsg:
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeLine(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	return drain(t, m, cmd)
}

func newReady(t *testing.T, b Backend, indexed bool) Model {
	t.Helper()
	m := New(context.Background(), b, "/docs", indexed)
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func geoAnswer() domain.Answer {
	return domain.Answer{
		Text: "Paris is the capital.",
		Sources: []domain.QueryResult{{
			Chunk: domain.Chunk{ID: "d-0", SourceName: "geo.txt", StartOffset: 120},
			Score: 0.91,
		}},
	}
}

// --- Tests ---

func TestModel_InitialIngest(t *testing.T) {
	b := &fakeBackend{stats: domain.IngestStats{Documents: 2, Chunks: 7, SkippedShort: 1}}
	m := newReady(t, b, false)
	if !m.busy {
		t.Fatal("expected busy while the first ingest runs")
	}

	m = drain(t, m, m.Init())

	if len(b.folders) != 1 || b.folders[0] != "/docs" {
		t.Fatalf("ingested %v", b.folders)
	}
	if m.busy {
		t.Error("expected idle after ingest")
	}
	if got := m.renderTranscript(); !strings.Contains(got, "indexed 2 files, 7 chunks (1 too short)") {
		t.Errorf("transcript = %q", got)
	}
}

func TestModel_AlreadyIndexedSkipsIngest(t *testing.T) {
	b := &fakeBackend{}
	m := newReady(t, b, true)
	drain(t, m, m.Init())

	if len(b.folders) != 0 {
		t.Errorf("unexpected ingest of %v", b.folders)
	}
}

func TestModel_QueryShowsAnswerAndSources(t *testing.T) {
	b := &fakeBackend{answer: geoAnswer()}
	m := newReady(t, b, true)

	m = typeLine(t, m, "  What is the capital?  ")

	if len(b.questions) != 1 || b.questions[0] != "What is the capital?" {
		t.Fatalf("questions = %v", b.questions)
	}
	if m.input.Value() != "" {
		t.Error("input must be cleared after submit")
	}
	got := m.renderTranscript()
	for _, want := range []string{"What is the capital?", "Paris is the capital.", "geo.txt @120"} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}
}

func TestModel_SourcesToggle(t *testing.T) {
	b := &fakeBackend{answer: geoAnswer()}
	m := newReady(t, b, true)
	m = typeLine(t, m, "capital?")

	m = typeLine(t, m, "/sources")
	if m.showSources {
		t.Fatal("expected sources hidden")
	}
	if strings.Contains(m.renderTranscript(), "geo.txt @120") {
		t.Error("sources still rendered")
	}

	m = typeLine(t, m, "/sources")
	if !strings.Contains(m.renderTranscript(), "geo.txt @120") {
		t.Error("sources not rendered after toggling back")
	}
}

func TestModel_Reindex(t *testing.T) {
	b := &fakeBackend{stats: domain.IngestStats{Documents: 1, Chunks: 3}}
	m := newReady(t, b, true)

	m = typeLine(t, m, "/reindex")
	m = typeLine(t, m, "/index /other")

	if len(b.folders) != 2 || b.folders[0] != "/docs" || b.folders[1] != "/other" {
		t.Fatalf("ingested %v", b.folders)
	}
	if m.folder != "/other" {
		t.Errorf("folder = %q", m.folder)
	}
}

func TestModel_FailedIndexKeepsFolder(t *testing.T) {
	b := &fakeBackend{ingestErr: domain.NewIngestError(domain.ErrPathNotFound, "/missing", nil)}
	m := newReady(t, b, true)

	m = typeLine(t, m, "/index /missing")

	if m.folder != "/docs" {
		t.Errorf("folder = %q, want unchanged", m.folder)
	}
	if !strings.Contains(m.renderTranscript(), "path not found") {
		t.Errorf("transcript = %q", m.renderTranscript())
	}
}

func TestModel_QueryErrorIsShown(t *testing.T) {
	b := &fakeBackend{queryErr: domain.NewQueryError(domain.ErrGenerationBackend, errors.New("timeout"))}
	m := newReady(t, b, true)

	m = typeLine(t, m, "anything")

	if m.busy {
		t.Error("expected idle after a failed query")
	}
	if !strings.Contains(m.renderTranscript(), "error: query: generation backend error") {
		t.Errorf("transcript = %q", m.renderTranscript())
	}
}

func TestModel_EnterIgnoredWhileBusy(t *testing.T) {
	b := &fakeBackend{}
	m := newReady(t, b, false)

	m.input.SetValue("question")
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no command while busy")
	}
	if len(m.transcript) != 0 {
		t.Errorf("transcript = %+v", m.transcript)
	}
}

func TestModel_UnknownCommand(t *testing.T) {
	m := newReady(t, &fakeBackend{}, true)
	m = typeLine(t, m, "/frobnicate")

	if !strings.Contains(m.renderTranscript(), "unknown command /frobnicate") {
		t.Errorf("transcript = %q", m.renderTranscript())
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	m := newReady(t, &fakeBackend{}, true)
	_, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_ViewBeforeReady(t *testing.T) {
	m := New(context.Background(), &fakeBackend{}, "/docs", true)
	if m.View() != "Loading..." {
		t.Errorf("view = %q", m.View())
	}
}
