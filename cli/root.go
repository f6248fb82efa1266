package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-flogo/flowwatch/support"
)

var rootCmd = &cobra.Command{
	Use:   "flowwatch",
	Short: "Watch workflow runs on a workflow engine",
	Long: `flowwatch starts workflow runs on a workflow engine, polls their instances
and reports the derived run state: running, task ready for input, completed
or failed, along with intermediate task results and changed outputs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path of the TOML configuration (defaults to $"+support.ConfigFile+")")
	rootCmd.PersistentFlags().String("engine", "", "Workflow engine base URL, overrides the configuration")
}

// Execute runs the flowwatch command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*support.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := support.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Engine.BaseURL = engine
	}
	return cfg, nil
}
