package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(16)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
)

// renderTable writes rows under headers as a bordered table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderDetails writes label/value pairs, one per line.
func renderDetails(w io.Writer, pairs [][2]string) error {
	var sb strings.Builder
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		sb.WriteString(labelStyle.Render(p[0]))
		sb.WriteString(p[1])
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func renderNote(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(format, args...)))
	return err
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
