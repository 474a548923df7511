package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/paperless-mailer/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll Paperless-ngx on an interval and mail new documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel)
		logger.Info("paperless-mailer starting",
			"paperless", cfg.PaperlessURL,
			"recipient", cfg.Recipient,
			"interval", cfg.Interval(),
		)

		fwd, tracker, err := buildForwarder(cfg, logger)
		if err != nil {
			return err
		}
		defer tracker.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The first signal stops the loop after the document in flight;
		// a second one exits immediately.
		go func() {
			<-ctx.Done()
			stop()
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			logger.Warn("forced shutdown")
			os.Exit(1)
		}()

		fwd.Run(ctx)
		logger.Info("paperless-mailer stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
