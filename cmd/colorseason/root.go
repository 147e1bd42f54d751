package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/colorseason/internal/config"
	"github.com/dudu/colorseason/internal/logger"
)

// Version is the application version
const Version = "0.1.0"

var (
	configPath string
	// cfg is loaded once before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "colorseason",
	Short:         "Extract dominant hair, skin and lip colors from a portrait photo",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Init(c.Log.Level, c.Log.Development); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./colorseason.yaml or ./config/colorseason.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
