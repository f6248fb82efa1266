package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/project-flogo/flowwatch/monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Listen port, overrides the configuration")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Monitor.Port = port
	}

	m, err := monitor.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return m.Stop()
}
