package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/project-flogo/flowwatch"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the flowwatch version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(flowwatch.Version()))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
