package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows as left-aligned columns under a bold header. Cells
// are padded to the widest cell of their column.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	writeRow(&b, header, widths, headingStyle)
	for _, row := range rows {
		writeRow(&b, row, widths, lipgloss.NewStyle())
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int, style lipgloss.Style) {
	parts := make([]string, 0, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts = append(parts, style.Render(cell)+strings.Repeat(" ", w-lipgloss.Width(cell)))
	}
	b.WriteString("  ")
	b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
	b.WriteString("\n")
}
