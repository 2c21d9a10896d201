// Package tui renders live grading progress with bubbletea. Each roster
// entry gets a line showing its current stage; finished entries show their
// grade column.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/marker/internal/orchestrator"
	"github.com/kingrea/marker/internal/roster"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	gradedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	lateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// StageMsg reports a stage transition for one entry.
type StageMsg struct {
	Entry roster.Entry
	Stage orchestrator.Stage
}

// FinishedMsg carries a finished record.
type FinishedMsg struct {
	Record orchestrator.Record
}

// DoneMsg signals that the whole batch has finished.
type DoneMsg struct{}

type row struct {
	entry  roster.Entry
	stage  orchestrator.Stage
	record *orchestrator.Record
}

// Model is the bubbletea model for a grading run.
type Model struct {
	title    string
	rows     []row
	byIndex  map[int]int
	spinner  spinner.Model
	finished int
	done     bool
	quitting bool
	cancel   func()
	width    int
}

// NewModel builds a progress model for entries. cancel is invoked when the
// user asks to quit before the batch is done; it may be nil.
func NewModel(title string, entries []roster.Entry, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle
	m := Model{
		title:   title,
		rows:    make([]row, len(entries)),
		byIndex: make(map[int]int, len(entries)),
		spinner: s,
		cancel:  cancel,
	}
	for i, e := range entries {
		m.rows[i] = row{entry: e, stage: orchestrator.StagePending}
		m.byIndex[e.Index] = i
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done {
				return m, tea.Quit
			}
			if !m.quitting && m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case StageMsg:
		if i, ok := m.byIndex[msg.Entry.Index]; ok && m.rows[i].record == nil {
			m.rows[i].stage = msg.Stage
		}
	case FinishedMsg:
		if i, ok := m.byIndex[msg.Record.Index]; ok && m.rows[i].record == nil {
			rec := msg.Record
			m.rows[i].record = &rec
			m.rows[i].stage = rec.Stage
			m.finished++
		}
	case DoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	status := fmt.Sprintf("%d/%d finished", m.finished, len(m.rows))
	switch {
	case m.done:
		status += " · done"
	case m.quitting:
		status += " · stopping, waiting for running scripts"
	default:
		status += " · q to stop"
	}
	b.WriteString(footerStyle.Render(status))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderRow(r row) string {
	id := idStyle.Render(fmt.Sprintf("%-16s", r.entry.ID))
	if r.record == nil {
		if r.stage == orchestrator.StagePending {
			return fmt.Sprintf("  %s %s", id, pendingStyle.Render("waiting"))
		}
		return fmt.Sprintf("%s %s %s", m.spinner.View(), id, activeStyle.Render(strings.ToLower(r.stage.String())))
	}
	rec := r.record
	style := failedStyle
	switch rec.Outcome {
	case orchestrator.OutcomeGraded:
		style = gradedStyle
	case orchestrator.OutcomeNoSubmission:
		style = lateStyle
	}
	line := fmt.Sprintf("  %s %s", id, style.Render(rec.Grade()))
	if rec.Feedback != "" {
		line += " " + detailStyle.Render(rec.Feedback)
	}
	if m.width > 0 {
		line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
	}
	return line
}

// Finished reports whether every entry has a record.
func (m Model) Finished() bool {
	return m.finished == len(m.rows)
}

// Sender is the part of *tea.Program the observer needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards orchestrator events into a running program.
type Observer struct {
	mu     sync.Mutex
	sender Sender
}

// NewObserver wraps a program (or any Sender).
func NewObserver(sender Sender) *Observer {
	return &Observer{sender: sender}
}

func (o *Observer) StageChanged(entry roster.Entry, stage orchestrator.Stage) {
	o.send(StageMsg{Entry: entry, Stage: stage})
}

func (o *Observer) Finished(rec orchestrator.Record) {
	o.send(FinishedMsg{Record: rec})
}

func (o *Observer) send(msg tea.Msg) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sender != nil {
		o.sender.Send(msg)
	}
}
