package tui

import (
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/marker/internal/orchestrator"
	"github.com/kingrea/marker/internal/roster"
)

func testEntries() []roster.Entry {
	return []roster.Entry{
		{Index: 0, ID: "alice", Repo: "https://example.com/alice"},
		{Index: 1, ID: "bob", Repo: "https://example.com/bob"},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return model, cmd
}

func TestModelTracksStagesAndRecords(t *testing.T) {
	entries := testEntries()
	m := NewModel("Grading lab1", entries, nil)
	if !strings.Contains(m.View(), "waiting") {
		t.Fatalf("pending entries should render as waiting:\n%s", m.View())
	}

	m, _ = update(t, m, StageMsg{Entry: entries[0], Stage: orchestrator.StageGrading})
	if view := m.View(); !strings.Contains(view, "grading") {
		t.Fatalf("active stage missing from view:\n%s", view)
	}

	rec := orchestrator.Record{Index: 0, ID: "alice", Outcome: orchestrator.OutcomeGraded, Score: 9.5, Stage: orchestrator.StageDone}
	m, _ = update(t, m, FinishedMsg{Record: rec})
	// A late stage event must not overwrite a finished row.
	m, _ = update(t, m, StageMsg{Entry: entries[0], Stage: orchestrator.StagePublishing})
	late := orchestrator.Record{Index: 1, ID: "bob", Outcome: orchestrator.OutcomeNoSubmission, Feedback: orchestrator.FeedbackNoSubmission, Stage: orchestrator.StageFailed}
	m, _ = update(t, m, FinishedMsg{Record: late})

	if !m.Finished() {
		t.Fatalf("model should be finished")
	}
	view := m.View()
	for _, want := range []string{"9.50", "0.0", orchestrator.FeedbackNoSubmission, "2/2 finished"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "publishing") {
		t.Fatalf("finished row was overwritten:\n%s", view)
	}
}

func TestModelQuitCancelsOnce(t *testing.T) {
	cancels := 0
	m := NewModel("Grading", testEntries(), func() { cancels++ })
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Fatalf("quit before done should wait for the batch")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cancels != 1 {
		t.Fatalf("cancel called %d times", cancels)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Fatalf("view should show stopping state:\n%s", m.View())
	}
	m, cmd = update(t, m, DoneMsg{})
	if cmd == nil {
		t.Fatalf("done should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

type sendRecorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *sendRecorder) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func TestObserverForwardsEvents(t *testing.T) {
	rec := &sendRecorder{}
	obs := NewObserver(rec)
	var wg sync.WaitGroup
	for _, e := range testEntries() {
		wg.Add(1)
		go func(e roster.Entry) {
			defer wg.Done()
			obs.StageChanged(e, orchestrator.StageCloning)
			obs.Finished(orchestrator.Record{Index: e.Index, ID: e.ID})
		}(e)
	}
	wg.Wait()
	if len(rec.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(rec.msgs))
	}
	var _ orchestrator.Observer = obs
}
