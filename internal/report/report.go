// Package report renders run summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lance13c/roster/internal/census"
	"github.com/lance13c/roster/internal/journal"
	"github.com/lance13c/roster/internal/runner"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4"))

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4A9EFF"))

	errStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5F87"))

	boxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7D56F4")).
		Padding(0, 1)
)

// Summary writes the end-of-run summary: one line per course, totals and the spreadsheet link
func Summary(w io.Writer, s runner.Summary, spreadsheetURL string) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run summary"))
	b.WriteString("\n")

	for _, c := range s.Courses {
		b.WriteString(courseLine(c))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Registered:"), s.Registered())
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("New participants:"), len(s.Participants))
	fmt.Fprintf(&b, "%s %d", labelStyle.Render("Rows added to sheet:"), s.Appended())
	if failed := len(s.Failed()); failed > 0 {
		fmt.Fprintf(&b, "\n%s", errStyle.Render(fmt.Sprintf("%d course(s) failed", failed)))
	}
	if spreadsheetURL != "" {
		fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("Sheet:"), spreadsheetURL)
	}

	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

func courseLine(c runner.CourseReport) string {
	name := fmt.Sprintf("%-8s %s", c.Job.CourseID, c.Job.Ledger)
	if c.Err != nil {
		return errStyle.Render("✗ "+name) + labelStyle.Render(": "+c.Err.Error())
	}

	registered := 0
	if c.Sweep != nil {
		registered = c.Sweep.Registered
	}
	detail := fmt.Sprintf(": %d registered, %d with email, %d added", registered, len(c.Participants), c.Ledger.Appended)
	if c.Ledger.Err != nil {
		detail += ", sheet error: " + c.Ledger.Err.Error()
		return errStyle.Render("✗ "+name) + labelStyle.Render(detail)
	}
	return okStyle.Render("✓ "+name) + labelStyle.Render(detail)
}

// Census writes the dry-run page counts of one course
func Census(w io.Writer, courseID string, pages []census.Page) {
	pending, rows := census.Totals(pages)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Course %s", courseID)))
	for _, p := range pages {
		fmt.Fprintf(w, "  %s %d rows, %d pending, %d registered\n",
			labelStyle.Render(fmt.Sprintf("page %d:", p.Number)), len(p.Rows), p.Pending, p.Registered())
	}
	fmt.Fprintf(w, "  %s %d pending of %d rows over %d page(s)\n", labelStyle.Render("total:"), pending, rows, len(pages))
}

// History writes recent runs from the journal
func History(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, labelStyle.Render("No runs recorded yet."))
		return
	}

	fmt.Fprintln(w, titleStyle.Render("Recent runs"))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		status := okStyle.Render(r.Status)
		if r.Status != journal.StatusCompleted {
			status = errStyle.Render(r.Status)
		}
		fmt.Fprintf(w, "  #%-4d %s  %-11s %2d course(s) %3d participant(s)  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), status, r.Courses, r.Participants, labelStyle.Render(duration))
	}
}

// RunDetail writes the per-course outcomes of one journaled run
func RunDetail(w io.Writer, runID int64, results []journal.CourseResult) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run #%d", runID)))
	for _, r := range results {
		name := fmt.Sprintf("%-8s %s", r.CourseID, r.Ledger)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s %s\n", errStyle.Render("✗ "+name), labelStyle.Render(r.Error))
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", okStyle.Render("✓ "+name),
			labelStyle.Render(fmt.Sprintf("%d registered in %d sweep(s), %d failure(s), %d with email, %d added",
				r.Registered, r.Sweeps, r.Failures, r.Participants, r.Appended)))
	}
}

// Statistics writes the journal totals below the run list
func Statistics(w io.Writer, stats map[string]interface{}) {
	fmt.Fprintf(w, "\n  %s %v runs, %v participants captured (%v distinct emails), %v failed course(s)\n",
		labelStyle.Render("journal:"),
		stats["total_runs"], stats["total_participants"], stats["distinct_emails"], stats["failed_courses"])
}
