package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pilesim/app"
	"github.com/kilianp07/pilesim/config"
	"github.com/kilianp07/pilesim/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "pilesim",
	Short: "EV charging pile simulator",
	Long: `pilesim simulates a fleet of EV charging piles on an accelerated clock.
Each pile connects to the MQTT broker as its own device, accepts charge
commands and reports billing progress priced by a time-of-day tariff.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, created, err := config.LoadOrCreate(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("main")
	if created {
		logg.Infof("wrote default configuration to %s", cfgPath)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
