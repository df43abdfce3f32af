package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-trades-must-flow/internal/errreport"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
)

// RenderSummary renders a run summary box.
func RenderSummary(title string, s model.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Rows processed: %d\n", s.Total)
	b.WriteString(SuccessStyle.Render(fmt.Sprintf("  • Added: %d", s.Added)) + "\n")
	b.WriteString(InfoStyle.Render(fmt.Sprintf("  • Duplicates: %d", s.Duplicates)) + "\n")
	if s.Skipped > 0 {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("  • Skipped: %d", s.Skipped)) + "\n")
	}
	if s.Errors > 0 {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("  • Errors: %d", s.Errors)) + "\n")
	} else {
		fmt.Fprintf(&b, "  • Errors: 0\n")
	}
	if s.ErrorsCSVURL != "" {
		b.WriteString(SubtleStyle.Render("  • Error report: "+s.ErrorsCSVURL) + "\n")
	}
	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}

// RenderErrorDetails renders up to limit rejected rows.
func RenderErrorDetails(details []errreport.Detail, limit int) string {
	if len(details) == 0 {
		return ""
	}
	shown := details
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	rows := [][]string{{"Line", "Symbol", "Reason"}}
	for _, d := range shown {
		rows = append(rows, []string{fmt.Sprintf("%d", d.LineNumber), d.Symbol, d.Reason})
	}
	out := renderTable(rows)
	if more := len(details) - len(shown); more > 0 {
		out += "\n" + SubtleStyle.Render(fmt.Sprintf("… and %d more", more))
	}
	return out
}

// RenderRuns renders a run listing.
func RenderRuns(runs []model.ImportRun) string {
	rows := [][]string{{"Job", "Status", "File", "Source", "Added", "Dupes", "Errors", "Created"}}
	for _, r := range runs {
		rows = append(rows, []string{
			r.JobID,
			statusText(r.Status),
			r.FileName,
			r.Source,
			fmt.Sprintf("%d", r.Summary.Added),
			fmt.Sprintf("%d", r.Summary.Duplicates),
			fmt.Sprintf("%d", r.Summary.Errors),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(rows)
}

// RenderPresets renders preset scores. A threshold above zero marks the
// presets that would be picked automatically.
func RenderPresets(matches []preset.Match, threshold float64) string {
	rows := [][]string{{"Preset", "Label", "Score"}}
	for _, m := range matches {
		score := fmt.Sprintf("%.2f", m.Score)
		if threshold > 0 && m.Score >= threshold {
			score = SuccessStyle.Render(score + " " + SuccessIcon)
		}
		rows = append(rows, []string{m.Preset.ID, m.Preset.Label, score})
	}
	return renderTable(rows)
}

func statusText(s model.RunStatus) string {
	switch s {
	case model.RunComplete:
		return SuccessStyle.Render(string(s))
	case model.RunFailed:
		return ErrorStyle.Render(string(s))
	default:
		return WarningStyle.Render(string(s))
	}
}

// renderTable pads columns to their widest cell. The first row is the header.
func renderTable(rows [][]string) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := TableCellStyle.Width(widths[i] + 2)
			if r == 0 {
				style = style.Bold(true)
			}
			cells[i] = style.Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}
