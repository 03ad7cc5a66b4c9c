// README: Fleet maintenance commands: seed the demo fleet and reset every unit to available.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert the 25 demo units and default fare rates",
	RunE:  runSeed,
}

var resetCmd = &cobra.Command{
	Use:   "reset-units",
	Short: "Cancel active trips and mark every unit available",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(seedCmd, resetCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, log, err := bootstrap(ctx, "seed")
	if err != nil {
		return err
	}
	defer a.Close()
	n, err := a.Seed(ctx)
	if err != nil {
		return err
	}
	log.Infof("seeded %d units", n)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d units\n", n)
	return err
}

func runReset(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, log, err := bootstrap(ctx, "reset")
	if err != nil {
		return err
	}
	defer a.Close()
	res, err := a.Trips.ResetFleet(ctx)
	if err != nil {
		return err
	}
	log.Infof("reset %d units, cancelled %d trips", res.Updated, res.CancelledTrips)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d units, cancelled %d trips\n", res.Updated, res.CancelledTrips)
	return err
}
