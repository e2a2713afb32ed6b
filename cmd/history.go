package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/report"
)

// historyCmd lists previous runs from the journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Long: `Show the most recent runs recorded in the local journal. Pass --run to list the
per-course outcome of one run.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to show")
	historyCmd.Flags().Int64("run", 0, "show the course results of this run")
	historyCmd.Flags().String("course", "", "show how many participants were captured for this course")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	db, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("the journal is disabled in the configuration")
	}
	defer db.Close()

	if runID, _ := cmd.Flags().GetInt64("run"); runID > 0 {
		results, err := db.GetCourseResults(runID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("run %d has no recorded courses", runID)
		}
		report.RunDetail(os.Stdout, runID, results)
		return nil
	}

	if courseID, _ := cmd.Flags().GetString("course"); courseID != "" {
		count, err := db.CountParticipants(courseID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Course %s: %d participant(s) captured across all runs\n", courseID, count)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.GetRecentRuns(limit)
	if err != nil {
		return err
	}
	report.History(os.Stdout, runs)

	if len(runs) > 0 {
		stats, err := db.GetStatistics()
		if err != nil {
			return err
		}
		report.Statistics(os.Stdout, stats)
	}
	return nil
}
