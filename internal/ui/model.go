// Package ui renders live search progress in the terminal with Bubble Tea.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

const (
	defaultTailSize = 8
	defaultBarWidth = 48
	minBarWidth     = 10
)

// SnapshotMsg carries the newest snapshot and every log line appended since
// the previous message.
type SnapshotMsg struct {
	Snapshot progress.Snapshot
	Lines    []progress.LogLine
}

type keyMap struct {
	Quit key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit: key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

// Model is the root Bubble Tea model. It only reads snapshots.
type Model struct {
	title    string
	snap     progress.Snapshot
	overall  bar.Model
	task     bar.Model
	tail     []progress.LogLine
	tailSize int
	keys     keyMap
	width    int
	quitting bool
}

// NewModel creates a model that keeps the last tailSize log lines.
func NewModel(title string, tailSize int) Model {
	if tailSize <= 0 {
		tailSize = defaultTailSize
	}
	overall := bar.New(bar.WithDefaultGradient(), bar.WithWidth(defaultBarWidth))
	task := bar.New(bar.WithSolidFill(string(sapphire)), bar.WithWidth(defaultBarWidth))
	return Model{
		title:    title,
		overall:  overall,
		task:     task,
		tailSize: tailSize,
		keys:     defaultKeys(),
		snap:     progress.NewAggregator().Snapshot(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := max(msg.Width-lipgloss.Width(labelStyle.Render(""))-8, minBarWidth)
		m.overall.Width = w
		m.task.Width = w
	case SnapshotMsg:
		if msg.Snapshot.Seq < m.snap.Seq {
			return m, nil
		}
		m.snap = msg.Snapshot
		m.tail = append(m.tail, msg.Lines...)
		if extra := len(m.tail) - m.tailSize; extra > 0 {
			m.tail = append([]progress.LogLine(nil), m.tail[extra:]...)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap
	var b strings.Builder

	header := titleStyle.Render(m.title)
	if s.Query != "" {
		header += mutedStyle.Render(fmt.Sprintf("  %q", s.Query))
	}
	b.WriteString(header + "\n\n")

	state := styleFor(sessionStyles, s.SessionState, mutedStyle).Render(s.SessionState.String())
	conn := styleFor(connectionStyles, s.ConnectionState, mutedStyle).Render(s.ConnectionState.String())
	if s.ReconnectAttempts > 0 && s.ConnectionState == progress.ConnReconnecting {
		conn += mutedStyle.Render(fmt.Sprintf(" (attempt %d)", s.ReconnectAttempts))
	}
	b.WriteString(row("Session", state))
	b.WriteString(row("Channel", conn))
	if s.Message != "" {
		b.WriteString(row("Message", s.Message))
	}
	b.WriteString("\n")

	b.WriteString(row("Overall", m.overall.ViewAs(float64(s.OverallPercent)/100)))
	tasks := fmt.Sprintf("%d of %d", min(s.CurrentTaskIndex+1, s.TotalTasks), s.TotalTasks)
	if s.CurrentPeriodLabel != "" {
		tasks += "  " + s.CurrentPeriodLabel
	}
	b.WriteString(row("Task", tasks))
	b.WriteString(row("", m.task.ViewAs(float64(s.CurrentTaskPercent)/100)))

	counts := fmt.Sprintf("%d saved", s.ItemsSaved)
	if s.ItemsTotal > 0 {
		counts = fmt.Sprintf("%d/%d saved", s.ItemsSaved, s.ItemsTotal)
	}
	if s.ResultsTotal > 0 {
		counts += fmt.Sprintf(", %d results", s.ResultsTotal)
	}
	if s.ArticlesSaved > 0 {
		counts += fmt.Sprintf(", %d articles total", s.ArticlesSaved)
	}
	b.WriteString(row("Items", counts))

	if len(m.tail) > 0 {
		lines := make([]string, 0, len(m.tail))
		for _, l := range m.tail {
			ts := mutedStyle.Render(l.TS.Format("15:04:05"))
			lines = append(lines, ts+" "+styleFor(levelStyles, l.Level, lipgloss.NewStyle()).Render(l.Message))
		}
		b.WriteString("\n" + paneStyle.Render(strings.Join(lines, "\n")) + "\n")
	}
	b.WriteString(mutedStyle.Render("q quit") + "\n")
	return b.String()
}

// Snapshot returns the snapshot currently rendered.
func (m Model) Snapshot() progress.Snapshot {
	return m.snap
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}
