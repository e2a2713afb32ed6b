package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/journal"
	"github.com/lance13c/roster/internal/logging"
	"github.com/lance13c/roster/internal/report"
	"github.com/lance13c/roster/internal/runner"
	"github.com/lance13c/roster/internal/sweep"
)

// runCmd registers pending enrollees of every configured course
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register pending enrollees and record them in the spreadsheet",
	Long: `Log in to the portal, then for each configured course register every pending
enrollee, read their email from the profile dialog and append new participants to the
course worksheet. Courses are processed one at a time; a failing course is logged and
skipped.

Examples:
  roster run                        # all configured courses
  roster run --course 8473          # a single course
  roster run --headless=false       # watch the browser`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addCourseFlags(runCmd)
}

// addCourseFlags registers the flags shared by commands that drive the portal
func addCourseFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("course", nil, "only process these course ids (repeatable)")
	cmd.Flags().Bool("headless", true, "run Chrome without a window")
}

// commandConfig returns the configuration with the command's flags applied, and the jobs
// it selects
func commandConfig(cmd *cobra.Command) (*config.Config, []domain.CourseJob, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Site.Headless, _ = cmd.Flags().GetBool("headless")
	}

	courses, _ := cmd.Flags().GetStringSlice("course")
	jobs, err := cfg.Jobs(courses...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, jobs, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, jobs, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	summary, err := executeRun(cmd.Context(), cfg, jobs)
	if err != nil {
		return err
	}

	report.Summary(os.Stdout, summary, cfg.SpreadsheetURL())
	return nil
}

// executeRun processes jobs in one browser session and journals the run
func executeRun(ctx context.Context, cfg *config.Config, jobs []domain.CourseJob) (runner.Summary, error) {
	started := time.Now()

	db, err := openJournal(cfg)
	if err != nil {
		logging.Warn("Continuing without journal: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	session, err := openSession(ctx, cfg)
	if err != nil {
		return runner.Summary{}, err
	}
	defer session.Close()

	l := openLedger(ctx, cfg)

	opts := runner.Options{
		CourseURL:  cfg.CourseURL,
		PageSettle: cfg.Timeouts.PageSettle,
	}
	if db != nil {
		runID, err := db.StartRun(started)
		if err != nil {
			logging.Warn("Failed to journal run start: %v", err)
		} else {
			opts.Journal = db
			opts.RunID = runID
		}
	}

	engine := sweep.New(session, sweep.OptionsFromConfig(cfg))
	summary := runner.New(session, engine, l, opts).RunAll(ctx, jobs)

	if opts.Journal != nil {
		status := journal.StatusCompleted
		if ctx.Err() != nil {
			status = journal.StatusInterrupted
		}
		if err := db.FinishRun(opts.RunID, time.Now(), status); err != nil {
			logging.Warn("Failed to journal run end: %v", err)
		}
	}

	logging.Info("\n=============================================")
	logging.Info("Total new participants found across all courses: %d", len(summary.Participants))
	logging.Info("Finished in %v", time.Since(started).Round(time.Second))
	if url := cfg.SpreadsheetURL(); url != "" {
		logging.Info("View the data at: %s", url)
	}

	if ctx.Err() != nil {
		return summary, fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	return summary, nil
}
