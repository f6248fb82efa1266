package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/project-flogo/flowwatch/tester"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <script.json>",
	Short: "Serve a scripted workflow engine",
	Long: `Serve the workflow engine REST API from a JSON script of snapshots, so
runs can be watched without a real engine.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Int("port", tester.DefaultPort, "Listen port")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	script, err := tester.LoadScript(args[0])
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	et, err := tester.NewRestEngineTester(script, map[string]interface{}{tester.SettingPort: port})
	if err != nil {
		return err
	}
	if err := et.Start(); err != nil {
		return err
	}

	for id := range script.Workflows {
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %s: POST http://%s/workflow/%s/start\n", id, et.Addr(), id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return et.Stop()
}
