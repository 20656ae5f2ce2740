// Package tui implements the interactive list browser behind
// `crmctl <entity> browse`.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Sternrassler/crm-client/pkg/collection"
	"github.com/Sternrassler/crm-client/pkg/crm"
)

// chrome is the number of lines used around the table.
const chrome = 7

const maxColumnWidth = 40

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Model is the Bubble Tea model of one entity list.
type Model[T crm.Record] struct {
	ctrl    *collection.Controller[T]
	desc    crm.Descriptor
	printer *message.Printer
	fwd     *forwarder[T]

	keys   keyMap
	help   help.Model
	input  textinput.Model
	table  table.Model
	state  collection.State[T]
	height int
}

// New builds the model and subscribes it to ctrl. Nothing is fetched until
// the program starts.
func New[T crm.Record](ctrl *collection.Controller[T], desc crm.Descriptor, lang language.Tag) *Model[T] {
	ti := textinput.New()
	ti.Placeholder = "search"
	ti.Prompt = "/ "
	ti.CharLimit = 100

	m := &Model[T]{
		ctrl:    ctrl,
		desc:    desc,
		printer: collection.Printer(lang),
		fwd:     newForwarder[T](),
		keys:    defaultKeys(),
		help:    help.New(),
		input:   ti,
		table: table.New(
			table.WithColumns(columnsFor(desc.Columns, nil)),
			table.WithFocused(true),
			table.WithHeight(10),
		),
		state: ctrl.State(),
	}
	ctrl.Subscribe(m.fwd.push)
	return m
}

// Init implements tea.Model.
func (m *Model[T]) Init() tea.Cmd {
	return tea.Batch(m.fwd.wait(), func() tea.Msg {
		m.ctrl.Dispatch()
		return nil
	})
}

// Update implements tea.Model.
func (m *Model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg[T]:
		m.apply(msg.state)
		return m, m.fwd.wait()

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetHeight(max(3, msg.Height-chrome))
		return m, nil

	case tea.KeyMsg:
		if m.input.Focused() {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model[T]) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m.quit()
	case key.Matches(msg, m.keys.Submit):
		m.input.Blur()
		m.ctrl.FlushSearch()
		return m, nil
	case msg.Type == tea.KeyEsc:
		m.input.Blur()
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		if err := m.ctrl.SetSearch(v); err != nil {
			return m, tea.Batch(cmd, tea.Println(err.Error()))
		}
	}
	return m, cmd
}

func (m *Model[T]) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Search):
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Next):
		m.ctrl.Next()
	case key.Matches(msg, m.keys.Prev):
		m.ctrl.Prev()
	case key.Matches(msg, m.keys.Toggle):
		if id, ok := m.cursorID(); ok {
			m.ctrl.Toggle(id)
		}
	case key.Matches(msg, m.keys.SelectAll):
		m.ctrl.SelectAll()
	case key.Matches(msg, m.keys.Retry):
		m.ctrl.Retry()
	case key.Matches(msg, m.keys.Clear):
		m.input.SetValue("")
		m.ctrl.ClearAll()
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model[T]) quit() (tea.Model, tea.Cmd) {
	m.fwd.stop()
	m.ctrl.Close()
	return m, tea.Quit
}

func (m *Model[T]) cursorID() (string, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.state.Page.Items) {
		return "", false
	}
	return m.state.Page.Items[i].Identifier(), true
}

// apply renders a controller snapshot into the table.
func (m *Model[T]) apply(s collection.State[T]) {
	m.state = s

	selected := make(map[string]bool, len(s.Selected))
	for _, id := range s.Selected {
		selected[id] = true
	}

	rows := make([]table.Row, len(s.Page.Items))
	for i, item := range s.Page.Items {
		mark := " "
		if selected[item.Identifier()] {
			mark = "✓"
		}
		rows[i] = append(table.Row{mark}, item.Cells()...)
	}

	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(columnsFor(m.desc.Columns, rows))
	m.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	m.table.SetCursor(max(cursor, 0))
}

// View implements tea.Model.
func (m *Model[T]) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(strings.ToUpper(m.desc.Name)))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.statusLine()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.state.Failed() {
		b.WriteString(errorStyle.Render(m.state.Err))
	} else if n := len(m.state.Selected); n > 0 {
		b.WriteString(selectedStyle.Render(fmt.Sprintf("%d selected", n)))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model[T]) statusLine() string {
	if m.state.Loading {
		return "loading…"
	}
	return collection.Summary(m.printer, m.state.Page)
}

func columnsFor(titles []string, rows []table.Row) []table.Column {
	cols := make([]table.Column, 0, len(titles)+1)
	cols = append(cols, table.Column{Title: " ", Width: 1})
	for i, title := range titles {
		width := lipgloss.Width(title)
		for _, row := range rows {
			if i+1 < len(row) {
				width = max(width, lipgloss.Width(row[i+1]))
			}
		}
		cols = append(cols, table.Column{Title: title, Width: min(width, maxColumnWidth)})
	}
	return cols
}

// Run starts the browser and blocks until the user quits or ctx ends.
// The controller is closed on return.
func Run[T crm.Record](ctx context.Context, ctrl *collection.Controller[T], desc crm.Descriptor, lang language.Tag, opts ...tea.ProgramOption) error {
	m := New(ctrl, desc, lang)
	defer func() {
		m.fwd.stop()
		ctrl.Close()
	}()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run browser: %w", err)
	}
	return nil
}
