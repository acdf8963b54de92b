package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pilesim/config"
	"github.com/kilianp07/pilesim/mockdispatch"
)

var (
	mockAddr     string
	mockScenario string
)

var mockCmd = &cobra.Command{
	Use:   "mock-dispatcher",
	Short: "Run a mock dispatch server for manual testing",
	Long: `mock-dispatcher watches the pile fleet over MQTT and exposes HTTP
endpoints to submit, cancel and fault charge requests by hand, or to replay
a scripted scenario against the simulator.`,
	RunE: runMock,
}

func init() {
	mockCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8880", "HTTP listen address")
	mockCmd.Flags().StringVar(&mockScenario, "scenario", "", "scenario file to replay after startup")
	rootCmd.AddCommand(mockCmd)
}

func runMock(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, err := config.LoadOrCreate(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	srv, err := mockdispatch.New(mockdispatch.Config{Address: mockAddr, Scenario: mockScenario}, cfg.MQTT)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
