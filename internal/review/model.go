// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/literature-manager/internal/taxonomy"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Applier files a record under the chosen topics.
type Applier interface {
	Apply(rec *types.PaperRecord, topics []string) (string, error)
}

// Tally counts review decisions.
type Tally struct {
	Filed   int
	Skipped int
}

// Model walks the pending records one at a time.
type Model struct {
	applier  Applier
	records  []*types.PaperRecord
	allowed  []string
	cursor   int
	choosing bool
	input    textinput.Model
	status   string
	tally    Tally
	done     bool
}

// NewModel builds a Model over records. tx supplies the slug hint shown
// while choosing; it may be nil.
func NewModel(a Applier, records []*types.PaperRecord, tx *taxonomy.Taxonomy) Model {
	ti := textinput.New()
	ti.Prompt = "topic> "
	ti.Placeholder = "slug or slug|slug"
	ti.CharLimit = 200
	m := Model{applier: a, records: records, input: ti}
	if tx != nil {
		m.allowed = tx.Slugs()
	}
	if len(records) == 0 {
		m.done = true
	}
	return m
}

// Tally returns the decisions made so far.
func (m Model) Tally() Tally { return m.tally }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.choosing {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	if key.Type == tea.KeyCtrlC {
		m.done = true
		return m, tea.Quit
	}

	if m.choosing {
		switch key.Type {
		case tea.KeyEsc:
			m.choosing = false
			m.input.Blur()
			m.status = ""
			return m, nil
		case tea.KeyEnter:
			return m.apply([]string{m.input.Value()})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "q":
		m.done = true
		return m, tea.Quit
	case "s", "n":
		m.tally.Skipped++
		return m.advance("Skipped")
	case "a", "y":
		rec := m.records[m.cursor]
		if len(rec.SuggestedTopics) == 0 {
			m.status = "No suggestion; press c to choose a topic"
			return m, nil
		}
		return m.apply(rec.SuggestedTopics)
	case "c":
		m.choosing = true
		m.input.SetValue("")
		m.status = ""
		cmd := m.input.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) apply(topics []string) (tea.Model, tea.Cmd) {
	rec := m.records[m.cursor]
	rel, err := m.applier.Apply(rec, topics)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m, nil
	}
	m.choosing = false
	m.input.Blur()
	m.tally.Filed++
	return m.advance("Filed to " + rel)
}

func (m Model) advance(status string) (tea.Model, tea.Cmd) {
	m.status = status
	m.cursor++
	if m.cursor >= len(m.records) {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.done {
		return fmt.Sprintf("Review finished: %d filed, %d skipped\n", m.tally.Filed, m.tally.Skipped)
	}
	rec := m.records[m.cursor]

	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(label+":"), value)
		}
	}
	field("Title", rec.Title)
	field("Authors", strings.Join(rec.Authors, "; "))
	if rec.Year > 0 {
		field("Year", fmt.Sprint(rec.Year))
	}
	field("File", rec.Filepath)
	field("Summary", rec.Summary)
	field("Method", fmt.Sprintf("%s (%.0f%%)", rec.ExtractionMethod, rec.ExtractionConfidence*100))
	suggestion := strings.Join(rec.SuggestedTopics, ", ")
	if suggestion == "" {
		suggestion = "none"
	}
	field("Suggested", suggestion)

	out := headerStyle.Render(fmt.Sprintf("Review %d/%d", m.cursor+1, len(m.records))) + "\n" +
		boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
	if m.choosing {
		out += m.input.View() + "\n"
		if len(m.allowed) > 0 {
			out += helpStyle.Render("topics: "+strings.Join(m.allowed, " ")) + "\n"
		}
		out += helpStyle.Render("enter file · esc back") + "\n"
	} else {
		out += helpStyle.Render("a accept suggestion · c choose topic · s skip · q quit") + "\n"
	}
	if m.status != "" {
		out += statusStyle.Render(m.status) + "\n"
	}
	return out
}
