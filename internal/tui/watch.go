// Package tui implements the `supactl watch` terminal view over the
// call journal.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/supactl/internal/journal"
)

const (
	refreshInterval = 2 * time.Second
	watchLimit      = 100
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusTimeout = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))

	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// JournalReader is the journal surface the watch view reads from.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Model is the BubbleTea model for the watch view.
type Model struct {
	journal JournalReader

	width  int
	height int

	callTable table.Model
	lastTick  time.Time
	lastError string
}

type tickMsg time.Time
type entriesMsg []journal.Entry
type errMsg error

// NewWatch creates a watch model over a journal.
func NewWatch(j JournalReader) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Operation", Width: 26},
			{Title: "Code", Width: 5},
			{Title: "Duration", Width: 10},
			{Title: "When", Width: 10},
			{Title: "Message", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		journal:   j,
		callTable: t,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchEntries, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) fetchEntries() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
	defer cancel()

	entries, err := m.journal.Recent(ctx, watchLimit)
	if err != nil {
		return errMsg(err)
	}
	return entriesMsg(entries)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 8
		if h < 3 {
			h = 3
		}
		m.callTable.SetHeight(h)

	case tickMsg:
		m.lastTick = time.Time(msg)
		return m, tea.Batch(m.fetchEntries, tick())

	case entriesMsg:
		m.lastError = ""
		m.callTable.SetRows(rowsFor(msg))

	case errMsg:
		m.lastError = msg.Error()
	}

	var cmd tea.Cmd
	m.callTable, cmd = m.callTable.Update(msg)
	return m, cmd
}

func rowsFor(entries []journal.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			statusGlyph(e.Status),
			e.Operation,
			fmt.Sprintf("%d", e.Code),
			e.Duration.Truncate(time.Millisecond).String(),
			e.CreatedAt.Local().Format("15:04:05"),
			e.Message,
		})
	}
	return rows
}

func statusGlyph(s journal.Status) string {
	switch s {
	case journal.StatusOK:
		return statusOK.Render("✓")
	case journal.StatusTimeout:
		return statusTimeout.Render("⏱")
	default:
		return statusFailed.Render("✗")
	}
}

func (m *Model) View() string {
	title := titleStyle.Render("supactl watch - recent calls")

	footer := footerStyle.Render("q: quit")
	if m.lastError != "" {
		footer = statusFailed.Render("journal error: " + m.lastError)
	} else if !m.lastTick.IsZero() {
		footer = footerStyle.Render(fmt.Sprintf("refreshed %s   q: quit", m.lastTick.Format("15:04:05")))
	}

	return docStyle.Render(title + "\n\n" + m.callTable.View() + "\n\n" + footer)
}

// Run starts the watch view and blocks until the user quits.
func Run(j JournalReader) error {
	p := tea.NewProgram(NewWatch(j), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
