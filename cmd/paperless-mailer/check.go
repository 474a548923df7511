package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/paperless-mailer/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single poll cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel)

		fwd, tracker, err := buildForwarder(cfg, logger)
		if err != nil {
			return err
		}
		defer tracker.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return fwd.RunOnce(ctx)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
