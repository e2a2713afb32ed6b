package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/domain"
	"github.com/lance13c/roster/internal/logging"
	"github.com/lance13c/roster/internal/report"
	"github.com/lance13c/roster/internal/watcher"
)

// watchCmd keeps running on a schedule
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run repeatedly, and again whenever the configuration changes",
	Long: `Process all courses, then wait. A new run starts when the interval elapses or when
the configuration file is saved; the new configuration is loaded first and a broken one
is reported and ignored until it is fixed.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", time.Hour, "time between runs")
	addCourseFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, jobs, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx := cmd.Context()
	cw, err := watcher.NewConfigWatcher(cfg.Path, 0)
	if err != nil {
		return err
	}
	go func() {
		if err := cw.Start(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("Config watcher stopped: %v", err)
		}
	}()
	defer cw.Stop()

	for {
		summary, err := executeRun(ctx, cfg, jobs)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logging.Error("Run failed: %v", err)
		} else {
			report.Summary(os.Stdout, summary, cfg.SpreadsheetURL())
		}

		logging.Info("Next run in %v", interval)
		timer := time.NewTimer(interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
				break wait
			case <-cw.Changes():
				nextCfg, nextJobs, err := reloadConfig(cmd)
				if err != nil {
					logging.Error("Keeping previous configuration: %v", err)
					continue
				}
				cfg, jobs = nextCfg, nextJobs
				timer.Stop()
				break wait
			}
		}
	}
}

// reloadConfig reads the configuration again and reapplies the command's flags
func reloadConfig(cmd *cobra.Command) (*config.Config, []domain.CourseJob, error) {
	reloaded, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rosterConfig, configErr = reloaded, nil
	return commandConfig(cmd)
}
