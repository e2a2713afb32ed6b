package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lance13c/roster/internal/config"
)

// initCmd writes a starter configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .roster/config.yaml with the default courses",
	Long: `Create a configuration in the project directory with the portal defaults and the
standard course map. Edit it to set the portal username and the spreadsheet id, or export
HR_USERNAME, HR_PASSWORD, SPREADSHEET_ID and GOOGLE_CREDENTIALS_JSON instead.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(projectDir)
	path := loader.GetConfigPath()

	if force, _ := cmd.Flags().GetBool("force"); !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Courses = config.DefaultCourses()
	if err := loader.Save(cfg, path); err != nil {
		return err
	}

	fmt.Printf("✓ Wrote %s with %d course(s)\n", path, len(cfg.Courses))
	return nil
}
