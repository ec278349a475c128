package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1)
)

// maxListed caps how many groups the terminal summary lists.
const maxListed = 10

// TerminalSummary renders a compact boxed overview of a run for the CLI.
func TerminalSummary(r Report, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Batch %s", r.BatchID)))
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("run %s", r.RunID)))
	lines = append(lines, "")

	stats := fmt.Sprintf("%d articles  %d duplicates  %d groups  %d unclustered",
		r.TotalArticles, r.DuplicatesRemoved, len(r.Groups), len(r.Noise))
	if r.QualityGrade != "" {
		stats += fmt.Sprintf("  grade %s", r.QualityGrade)
	}
	lines = append(lines, stats, "")

	if len(r.Groups) > 0 {
		lines = append(lines, headerStyle.Render(fmt.Sprintf("%-3s %-6s %-5s %s", "#", "Viral", "Size", "Headline")))
	}
	for i, g := range r.Groups {
		if i == maxListed {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("... and %d more", len(r.Groups)-maxListed)))
			break
		}
		lines = append(lines, fmt.Sprintf("%-3d %-6d %-5d %s", i+1, g.TotalViralScore, g.Size, truncate(headline(g), 60)))
	}

	style := boxStyle
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
