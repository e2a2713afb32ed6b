package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/logging"
	"github.com/lance13c/roster/internal/report"
	"github.com/lance13c/roster/internal/sweep"
)

// scanCmd counts pending enrollees without registering anyone
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Count pending enrollees without registering them",
	Long: `Log in and page through the enrollee list of each course, printing how many rows
are pending and how many are already registered. Nothing is clicked except the page
controls, and nothing is written to the spreadsheet.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addCourseFlags(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, jobs, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	engine := sweep.New(session, sweep.OptionsFromConfig(cfg))
	for _, job := range jobs {
		pages, err := engine.Scan(ctx, job, cfg.CourseURL(job.CourseID))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Error("Scan of course %s failed: %v", job.CourseID, err)
			continue
		}
		report.Census(os.Stdout, job.CourseID, pages)
	}
	return nil
}
