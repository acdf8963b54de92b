package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/pilesim/core/tariff"
)

var tariffCmd = &cobra.Command{
	Use:   "tariff [price-file]",
	Short: "Validate and print a price table",
	Long: `tariff loads the JSON price file, validates that its periods partition
the day and prints the resulting table. When the file does not exist the
built-in default table is written there first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTariff,
}

func init() {
	rootCmd.AddCommand(tariffCmd)
}

func runTariff(cmd *cobra.Command, args []string) error {
	path := "price.json"
	if len(args) == 1 {
		path = args[0]
	}
	table, created, err := tariff.LoadOrCreate(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "wrote default price table to %s\n", path)
	}
	for _, p := range table.Periods() {
		fmt.Fprintf(out, "%s - %s  %.4f/kWh\n", p.Start, p.End, p.Price)
	}
	fmt.Fprintf(out, "service fee    %.4f/kWh\n", table.ServiceFee())
	return nil
}
