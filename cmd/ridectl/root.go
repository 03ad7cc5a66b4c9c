// README: Root cobra command; shared --config flag and app bootstrap for subcommands.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ridedispatch/internal/app"
	"ridedispatch/internal/config"
	"ridedispatch/internal/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "ridectl",
	Short:         "Ride dispatch service and fleet tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); RIDE_* env vars override it")
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.New("ridectl").Errorf("%v", err)
	}
	return err
}

func bootstrap(ctx context.Context, component string) (*app.App, logger.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(component)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}
