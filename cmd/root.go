package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/config"
	"github.com/lance13c/roster/internal/logging"
)

var (
	cfgFile      string
	projectDir   string
	rosterConfig *config.Config
	configErr    error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roster",
	Short: "Roster - course enrollee registration",
	Long: `Roster logs in to the HR training portal, registers every pending enrollee of the
configured courses and records their contact details in the course worksheets of a
Google spreadsheet.

Run 'roster init' to create a configuration, then 'roster run' to process all courses.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands receive ctx through cmd.Context().
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .roster/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")
}

// initConfig sets up logging and loads the configuration. A load failure is kept for the
// commands that need a configuration.
func initConfig() {
	if err := logging.Initialize(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
	} else {
		logging.RedirectStandardLog()
	}

	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		logging.GetLogger().SetLevel(logging.DEBUG)
	}

	rosterConfig, configErr = loadConfig()
	if configErr == nil {
		logging.Debug("Using config %s with %d course(s)", rosterConfig.Path, len(rosterConfig.Courses))
	}
}

func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(projectDir)
	if cfgFile != "" {
		loader.WithFile(cfgFile)
	}
	return loader.Load()
}

// requireConfig returns the loaded configuration or explains why there is none
func requireConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, fmt.Errorf("%w\nRun 'roster init' to create a configuration", configErr)
	}
	return rosterConfig, nil
}
