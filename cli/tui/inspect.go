package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framewrap/cli/reader"
)

// chrome is the number of lines taken by everything except the table.
const chrome = 12

// headerLines is the table header height including its bottom border.
const headerLines = 2

func tableHeight(rows, limit int) int {
	return min(max(rows, 1), limit) + headerLines
}

// InspectModel is a Bubble Tea model for inspect views: summary stat boxes
// over a scrollable frame table.
type InspectModel struct {
	viewType string
	data     any
	table    table.Model
	errs     []string
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	cols, rows, errs := tableData(data)
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(tableHeight(len(rows), 20)),
	)
	t.SetStyles(tableStyles())

	return InspectModel{
		viewType: viewType,
		data:     data,
		table:    t,
		errs:     errs,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - chrome - headerLines; h > 0 {
			m.table.SetHeight(tableHeight(len(m.table.Rows()), h))
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var title string
	switch m.viewType {
	case ViewInspectStream:
		title = "Record Stream"
	case ViewInspectTrace:
		title = "Frame Trace"
	default:
		return fmt.Sprintf("Unknown view type: %s", m.viewType)
	}
	if d, ok := m.data.(*reader.InspectTraceResponse); ok && d.Summary.PipelineID != "" {
		title += " " + d.Summary.PipelineID
	}

	stats := summaryStats(m.data)
	if stats == nil {
		return fmt.Sprintf("Invalid data type for %s", m.viewType)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(renderStats(stats))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString(m.detail())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ scroll • q quit"))
	return b.String()
}

// detail renders the status and error of the selected row.
func (m InspectModel) detail() string {
	row := m.table.SelectedRow()
	i := m.table.Cursor()
	if row == nil || i < 0 || i >= len(m.errs) {
		return ""
	}
	status := row[len(row)-1]
	line := StatusStyle(status).Render(status)
	if m.errs[i] != "" {
		line += " " + ErrorStyle.Render(m.errs[i])
	}
	return "\n" + DetailStyle.Render(line)
}

// tableData converts an inspect payload into table columns and rows. The
// last column is always the status; errors are returned per row.
func tableData(data any) ([]table.Column, []table.Row, []string) {
	switch d := data.(type) {
	case *reader.InspectStreamResponse:
		cols := []table.Column{
			{Title: "Seq", Width: 6},
			{Title: "Kind", Width: 6},
			{Title: "TS", Width: 10},
			{Title: "SSRC", Width: 10},
			{Title: "PT", Width: 4},
			{Title: "Len", Width: 8},
			{Title: "Declared", Width: 8},
			{Title: "Padding", Width: 8},
			{Title: "Status", Width: 10},
		}
		rows := make([]table.Row, 0, len(d.Frames))
		errs := make([]string, 0, len(d.Frames))
		for _, f := range d.Frames {
			rows = append(rows, table.Row{
				strconv.Itoa(f.Seq), f.Kind, u32(f.Timestamp), u32(f.SSRC),
				strconv.Itoa(int(f.PT)), strconv.Itoa(f.Length),
				strconv.Itoa(f.Declared), strconv.Itoa(f.Padding), f.Status,
			})
			errs = append(errs, f.Error)
		}
		return cols, rows, errs

	case *reader.InspectTraceResponse:
		cols := []table.Column{
			{Title: "Dir", Width: 7},
			{Title: "Seq", Width: 5},
			{Title: "Kind", Width: 6},
			{Title: "TS", Width: 10},
			{Title: "Len", Width: 7},
			{Title: "Head", Width: 34},
			{Title: "Status", Width: 10},
		}
		rows := make([]table.Row, 0, len(d.Frames))
		errs := make([]string, 0, len(d.Frames))
		for _, f := range d.Frames {
			status := reader.StatusOK
			if f.Malformed() {
				status = reader.StatusMalformed
			}
			rows = append(rows, table.Row{
				f.Direction, strconv.Itoa(f.Seq), f.Kind, u32(f.Timestamp),
				strconv.Itoa(f.Len), f.Head, status,
			})
			errs = append(errs, f.Error)
		}
		return cols, rows, errs

	default:
		return []table.Column{{Title: "Status", Width: 10}}, nil, nil
	}
}

func u32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
