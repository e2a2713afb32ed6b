// Package sweep registers the pending enrollees of one course and captures their contact
// addresses. The enrollee list has no stable row identifiers and reorders itself after every
// registration, so the engine re-queries the page across every mutation and restarts its
// pass from page 1 whenever a registration succeeds.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/lance13c/roster/internal/browser"
	"github.com/lance13c/roster/internal/census"
	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/logging"
)

// DocumentView is the live, re-queryable page the engine drives
type DocumentView interface {
	Navigate(ctx context.Context, url string) error
	FindAll(ctx context.Context, selector string) ([]browser.Ref, error)
	FindOne(ctx context.Context, selector string) (browser.Ref, bool, error)
	Related(ctx context.Context, ref browser.Ref, ancestor, child string) (browser.Ref, bool, error)
	ScrollIntoView(ctx context.Context, ref browser.Ref) error
	Invoke(ctx context.Context, ref browser.Ref) error
	Text(ctx context.Context, ref browser.Ref) (string, error)
	Value(ctx context.Context, ref browser.Ref) (string, error)
	Attr(ctx context.Context, ref browser.Ref, name string) (string, error)
	Enabled(ctx context.Context, ref browser.Ref) (bool, error)
	DrainDialog(ctx context.Context, timeout time.Duration) (bool, error)
	HTML(ctx context.Context) (string, error)
}

// State of the sweep state machine
type State int

const (
	Sweeping State = iota
	PageExhausted
	SweepExhausted
	Done
)

func (s State) String() string {
	switch s {
	case Sweeping:
		return "Sweeping"
	case PageExhausted:
		return "PageExhausted"
	case SweepExhausted:
		return "SweepExhausted"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures an Engine
type Options struct {
	Selectors config.SelectorConfig
	Timeouts  config.TimeoutConfig
	Limits    config.LimitConfig

	// SnapshotDir receives a simplified copy of the page after each failed registration
	SnapshotDir string

	// Now stamps captured participants; defaults to time.Now
	Now func() time.Time
}

// OptionsFromConfig builds engine options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Selectors:   cfg.Selectors,
		Timeouts:    cfg.Timeouts,
		Limits:      cfg.Limits,
		SnapshotDir: cfg.ResolvePath(cfg.Journal.SnapshotDir),
	}
}

// Result summarizes one course run
type Result struct {
	CourseID     string
	Participants []domain.Participant
	Registered   int
	Failures     int
	Sweeps       int
	Quarantined  []string
	FinalState   State
}

// Engine runs registration sweeps against a DocumentView
type Engine struct {
	view        DocumentView
	sel         config.SelectorConfig
	timeouts    config.TimeoutConfig
	limits      config.LimitConfig
	snapshotDir string
	now         func() time.Time

	state State
}

// New creates an engine driving view
func New(view DocumentView, opts Options) *Engine {
	e := &Engine{
		view:        view,
		sel:         opts.Selectors,
		timeouts:    opts.Timeouts,
		limits:      opts.Limits,
		snapshotDir: opts.SnapshotDir,
		now:         opts.Now,
		state:       Done,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.limits.MaxAttempts < 1 {
		e.limits.MaxAttempts = 1
	}
	if e.limits.MaxSweeps < 1 {
		e.limits.MaxSweeps = 100
	}
	if e.limits.MaxPages < 1 {
		e.limits.MaxPages = 50
	}
	return e
}

// State returns the engine's current state
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) setState(s State) {
	if e.state != s {
		logging.Debug("Sweep state %s -> %s", e.state, s)
	}
	e.state = s
}

// run carries the per-course bookkeeping of one Run call
type run struct {
	job         domain.CourseJob
	courseURL   string
	page        int
	result      *Result
	failures    map[string]int
	quarantined map[string]bool
}

type sweepOutcome int

const (
	sweepClean sweepOutcome = iota
	sweepRegistered
	sweepFailed
)

// Run registers every pending enrollee of the course currently shown at courseURL.
// The caller must already have navigated there. Only context cancellation is returned as
// an error; UI failures are retried through reloads.
func (e *Engine) Run(ctx context.Context, job domain.CourseJob, courseURL string) (*Result, error) {
	r := &run{
		job:         job,
		courseURL:   courseURL,
		page:        1,
		result:      &Result{CourseID: job.CourseID},
		failures:    make(map[string]int),
		quarantined: make(map[string]bool),
	}

	logging.Info("--- Checking for pending participants to register (with pagination) ---")
	for {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		if r.result.Sweeps >= e.limits.MaxSweeps {
			logging.Warn("Course %s: giving up after %d sweeps", job.CourseID, r.result.Sweeps)
			break
		}

		// Every sweep starts from page 1
		if r.page != 1 {
			e.resetToFirstPage(ctx, r)
		}

		r.result.Sweeps++
		e.setState(Sweeping)
		outcome, err := e.sweep(ctx, r)
		if err != nil {
			return r.result, err
		}
		if outcome == sweepClean {
			e.setState(SweepExhausted)
			break
		}
	}

	if r.result.Registered > 0 {
		e.resetToFirstPage(ctx, r)
	}

	e.setState(Done)
	r.result.FinalState = Done

	if r.result.Registered == 0 {
		logging.Info("✓ No pending participants to register across all pages.")
	} else {
		logging.Info("✓ Registered %d participant(s) in %d sweep(s), %d with email.",
			r.result.Registered, r.result.Sweeps, len(r.result.Participants))
	}
	return r.result, nil
}

// sweep walks pages 1..N once. It stops early after a registration (the list reorders) or
// a failure (the page was reloaded).
func (e *Engine) sweep(ctx context.Context, r *run) (sweepOutcome, error) {
	page := r.page
	for {
		logging.Info("Processing page %d for pending participants...", page)

		for {
			ref, label, ok, err := e.nextPending(ctx, r, page)
			if err != nil {
				if ctx.Err() != nil {
					return sweepFailed, ctx.Err()
				}
				logging.Warn("  ✗ Failed to query pending participants: %v", err)
				r.result.Failures++
				return sweepFailed, e.reload(ctx, r)
			}
			if !ok {
				e.setState(PageExhausted)
				logging.Info("  ✓ No more pending participants on this page.")
				break
			}

			registered, err := e.process(ctx, r, page, ref, label)
			if err != nil {
				return sweepFailed, err
			}
			if registered {
				return sweepRegistered, nil
			}
			return sweepFailed, e.reload(ctx, r)
		}

		if page >= e.limits.MaxPages {
			logging.Warn("Stopping pagination at page limit %d", e.limits.MaxPages)
			return sweepClean, nil
		}
		if !e.changePage(ctx, page+1, true) {
			return sweepClean, nil
		}
		page++
		r.page = page
		e.setState(Sweeping)
	}
}

// process is the unit of work for one pending item: capture contact data, re-resolve the
// item, register it. It reports whether the registration succeeded.
func (e *Engine) process(ctx context.Context, r *run, page int, ref browser.Ref, label string) (bool, error) {
	logging.Info("  Registering %s on page %d...", label, page)

	name, email := domain.UnknownName, ""
	trigger, found, err := e.view.Related(ctx, ref, e.sel.Row, e.sel.DetailTrigger)
	switch {
	case err != nil:
		logging.Warn("  ✗ Could not locate profile link for %s: %v", label, err)
	case !found:
		logging.Warn("  ✗ No profile link in the row of %s", label)
	default:
		name, email = e.extractContact(ctx, trigger)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// The detail dialog may have re-rendered the list
	current, ok, err := e.resolvePending(ctx, r, page, label)
	if err == nil && !ok {
		err = fmt.Errorf("pending marker for %s disappeared", label)
	}
	if err == nil {
		err = e.register(ctx, current)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		e.recordFailure(r, label, err)
		e.snapshot(ctx, r, label)
		return false, nil
	}

	r.result.Registered++
	logging.Info("    ✓ Registered successfully.")
	if p := domain.NewParticipant(r.job.CourseID, name, email, e.now()); p.HasEmail() {
		r.result.Participants = append(r.result.Participants, p)
		logging.Info("  ✓ Found: %s - %s", p.Name, p.Email)
	} else {
		logging.Warn("  ✗ Email not found for: %s", name)
	}

	if err := browser.Pause(ctx, e.timeouts.StepPause); err != nil {
		return true, err
	}
	return true, nil
}

func (e *Engine) recordFailure(r *run, label string, cause error) {
	r.result.Failures++
	logging.Warn("    ✗ Registration failed for %s: %v. Refreshing course page.", label, cause)

	if isPositional(label) {
		return
	}
	r.failures[label]++
	if r.failures[label] >= e.limits.MaxAttempts && !r.quarantined[label] {
		r.quarantined[label] = true
		r.result.Quarantined = append(r.result.Quarantined, label)
		logging.Warn("    ✗ Skipping %s for the rest of this run after %d failed attempts", label, r.failures[label])
	}
}

// snapshot keeps a simplified copy of the page for diagnosing a failed registration
func (e *Engine) snapshot(ctx context.Context, r *run, label string) {
	if e.snapshotDir == "" {
		return
	}
	page, err := e.view.HTML(ctx)
	if err != nil {
		logging.Debug("Snapshot of %s skipped: %v", label, err)
		return
	}
	path, err := census.WriteSnapshot(e.snapshotDir, r.job.CourseID, label, page, e.now())
	if err != nil {
		logging.Warn("Failed to save page snapshot: %v", err)
		return
	}
	logging.Info("    Page snapshot saved to %s", path)
}

// reload hard-resets the page state by loading the course again
func (e *Engine) reload(ctx context.Context, r *run) error {
	r.page = 1
	if err := e.view.Navigate(ctx, r.courseURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn("Reload of %s failed: %v", r.courseURL, err)
	}
	return browser.Pause(ctx, e.timeouts.PageSettle)
}

// resetToFirstPage leaves the enrollee view on page 1 for whatever runs next
func (e *Engine) resetToFirstPage(ctx context.Context, r *run) {
	if ctx.Err() != nil {
		return
	}
	if e.changePage(ctx, 1, false) {
		r.page = 1
		return
	}
	if err := e.reload(ctx, r); err != nil {
		logging.Debug("Reset to page 1 interrupted: %v", err)
	}
}
