// Package runner processes the configured courses one after another: open the course, sweep
// its pending enrollees, merge the captured participants into the ledger and journal the
// outcome. A failing course is logged and skipped.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/journal"
	"github.com/lance13c/roster/internal/ledger"
	"github.com/lance13c/roster/internal/logging"
	"github.com/lance13c/roster/internal/sweep"
)

// Journal records course outcomes
type Journal interface {
	SaveCourseResult(res *journal.CourseResult, participants []domain.Participant) (int64, error)
}

// Options configures a Runner
type Options struct {
	// CourseURL maps a course id to its enrollee view
	CourseURL  func(courseID string) string
	PageSettle time.Duration

	// Journal and RunID are optional
	Journal Journal
	RunID   int64
}

// CourseReport is the outcome of one course
type CourseReport struct {
	Job          domain.CourseJob
	Participants []domain.Participant
	Sweep        *sweep.Result
	Ledger       ledger.Outcome
	Err          error
	Duration     time.Duration
}

// Summary aggregates the course reports of a run
type Summary struct {
	Courses      []CourseReport
	Participants []domain.Participant
}

// Appended returns the number of rows written to the ledger across all courses
func (s Summary) Appended() int {
	n := 0
	for _, c := range s.Courses {
		n += c.Ledger.Appended
	}
	return n
}

// Registered returns the number of registrations across all courses
func (s Summary) Registered() int {
	n := 0
	for _, c := range s.Courses {
		if c.Sweep != nil {
			n += c.Sweep.Registered
		}
	}
	return n
}

// Failed returns the courses that ended with an error
func (s Summary) Failed() []CourseReport {
	var out []CourseReport
	for _, c := range s.Courses {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Runner drives courses through one browser view
type Runner struct {
	view   sweep.DocumentView
	engine *sweep.Engine
	ledger *ledger.Ledger
	opts   Options
}

// New creates a runner. The engine must drive the same view.
func New(view sweep.DocumentView, engine *sweep.Engine, l *ledger.Ledger, opts Options) *Runner {
	return &Runner{
		view:   view,
		engine: engine,
		ledger: l,
		opts:   opts,
	}
}

// RunCourse processes one course. Any failure, a panic included, is logged and yields an
// empty batch; the error is returned for reporting only.
func (r *Runner) RunCourse(ctx context.Context, job domain.CourseJob) ([]domain.Participant, error) {
	report := r.runCourse(ctx, job)
	return report.Participants, report.Err
}

// RunAll processes jobs in order. A failed course does not stop the ones after it; only
// context cancellation ends the run early.
func (r *Runner) RunAll(ctx context.Context, jobs []domain.CourseJob) Summary {
	var summary Summary
	for _, job := range jobs {
		if ctx.Err() != nil {
			logging.Warn("Run interrupted, %d course(s) not processed", len(jobs)-len(summary.Courses))
			break
		}
		report := r.runCourse(ctx, job)
		summary.Courses = append(summary.Courses, report)
		summary.Participants = append(summary.Participants, report.Participants...)
	}
	return summary
}

func (r *Runner) runCourse(ctx context.Context, job domain.CourseJob) (report CourseReport) {
	start := time.Now()
	report.Job = job

	defer func() {
		if p := recover(); p != nil {
			logging.Error("Panic while processing course %s: %v\n%s", job.CourseID, p, debug.Stack())
			report.Err = fmt.Errorf("course %s: panic: %v", job.CourseID, p)
		}
		if report.Err != nil {
			report.Participants = nil
		}
		report.Duration = time.Since(start)
		r.record(report)
	}()

	logging.Info("\n=============================================")
	logging.Info("Processing Course ID: %s", job.CourseID)
	logging.Info("=============================================")

	url := r.opts.CourseURL(job.CourseID)
	if err := r.view.Navigate(ctx, url); err != nil {
		logging.Error("An error occurred while processing course %s: %v", job.CourseID, err)
		report.Err = fmt.Errorf("open course %s: %w", job.CourseID, err)
		return report
	}
	if err := browser.Pause(ctx, r.opts.PageSettle); err != nil {
		report.Err = err
		return report
	}

	result, err := r.engine.Run(ctx, job, url)
	report.Sweep = result
	if err != nil {
		logging.Error("An error occurred while processing course %s: %v", job.CourseID, err)
		report.Err = fmt.Errorf("sweep course %s: %w", job.CourseID, err)
		return report
	}
	report.Participants = result.Participants

	logging.Info("\n--- Summary for Course %s ---", job.CourseID)
	logging.Info("Found %d new participant(s) with email.", len(report.Participants))

	report.Ledger = r.ledger.Merge(ctx, job.Ledger, job.CourseID, report.Participants)
	return report
}

// record writes the course outcome to the journal; journal errors are only logged
func (r *Runner) record(report CourseReport) {
	if r.opts.Journal == nil {
		return
	}

	res := &journal.CourseResult{
		RunID:    r.opts.RunID,
		CourseID: report.Job.CourseID,
		Ledger:   report.Job.Ledger,
		Appended: report.Ledger.Appended,
	}
	if report.Sweep != nil {
		res.Registered = report.Sweep.Registered
		res.Failures = report.Sweep.Failures
		res.Sweeps = report.Sweep.Sweeps
	}
	switch {
	case report.Err != nil:
		res.Error = report.Err.Error()
	case report.Ledger.Err != nil:
		res.Error = report.Ledger.Err.Error()
	}

	if _, err := r.opts.Journal.SaveCourseResult(res, report.Participants); err != nil {
		logging.Warn("Failed to journal course %s: %v", report.Job.CourseID, err)
	}
}
