package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"caevo/internal/ca"
	"caevo/internal/logging"
)

var (
	liveCell  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5F5F5")).Background(lipgloss.Color("#3C78D8"))
	deadCell  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
	tickLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A")).Width(4).Align(lipgloss.Right)
)

// renderDiagram prints one row per tick, the encoded observation first.
func renderDiagram(rows []ca.Row, plain bool) string {
	var b strings.Builder
	for t, row := range rows {
		if plain {
			b.WriteString(row.String())
			b.WriteByte('\n')
			continue
		}
		b.WriteString(tickLabel.Render(strconv.Itoa(t)))
		b.WriteByte(' ')
		for _, cell := range row {
			if cell == 1 {
				b.WriteString(liveCell.Render("█"))
			} else {
				b.WriteString(deadCell.Render("·"))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func isTerminal(w io.Writer) bool {
	return logging.IsTerminal(w)
}
