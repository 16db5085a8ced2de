package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SimpleTable renders static rows (env vars, bootstrap reports, API
// listings) as an aligned text table.
type SimpleTable struct {
	Title   string
	Headers []string
	Rows    [][]string

	// Empty is shown under the title when there are no rows. When unset an
	// empty table renders nothing.
	Empty string

	// CellStyle, if set, overrides the body style of a cell.
	CellStyle func(col int, cell string) (lipgloss.Style, bool)
}

// NewSimpleTable creates a table with the given title and headers.
func NewSimpleTable(title string, headers []string) *SimpleTable {
	return &SimpleTable{
		Title:   title,
		Headers: headers,
		Rows:    make([][]string, 0),
	}
}

// AddRow appends a row. Cells past the header count are dropped on render.
func (t *SimpleTable) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

func (t *SimpleTable) widths() []int {
	w := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		w[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(row) && i < len(w); i++ {
			w[i] = max(w[i], lipgloss.Width(row[i]))
		}
	}
	for i := range w {
		w[i] += 2
	}
	return w
}

// View renders the table with styles.
func (t *SimpleTable) View(styles Styles) string {
	if len(t.Rows) == 0 && t.Empty == "" {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}
	if len(t.Rows) == 0 {
		sb.WriteString(styles.Muted.Render(t.Empty))
		sb.WriteString("\n")
		return sb.String()
	}

	widths := t.widths()
	sep := styles.Muted.Render("|")
	header := styles.Bold.Padding(0, 1)
	body := styles.Body.Padding(0, 1)

	cells := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		cells[i] = header.Width(widths[i]).Render(h)
	}
	sb.WriteString(strings.Join(cells, sep) + "\n")

	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(styles.Muted.Render(strings.Repeat("-", total)) + "\n")

	for _, row := range t.Rows {
		n := min(len(row), len(widths))
		cells = cells[:0]
		for i := 0; i < n; i++ {
			style := body
			if t.CellStyle != nil {
				if s, ok := t.CellStyle(i, row[i]); ok {
					style = s.Padding(0, 1)
				}
			}
			cells = append(cells, style.Width(widths[i]).Render(row[i]))
		}
		sb.WriteString(strings.Join(cells, sep) + "\n")
	}
	return sb.String()
}
