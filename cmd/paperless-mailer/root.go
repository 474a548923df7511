package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/paperless-mailer/internal/config"
	"github.com/tracyhatemice/paperless-mailer/internal/dedup"
	"github.com/tracyhatemice/paperless-mailer/internal/forwarder"
	"github.com/tracyhatemice/paperless-mailer/internal/paperless"
	"github.com/tracyhatemice/paperless-mailer/internal/sender"
)

var rootCmd = &cobra.Command{
	Use:   "paperless-mailer",
	Short: "Forward new Paperless-ngx documents to a mailbox",
	Long: `paperless-mailer watches a Paperless-ngx instance and mails every new
document matching the configured filters to a fixed recipient, exactly once.

All settings come from environment variables; run 'paperless-mailer config'
to see the effective configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openTracker opens the seen-document database. An unreadable database is
// moved aside and replaced with an empty one: losing the seen state costs
// duplicate mails, refusing to start costs all future mail.
func openTracker(path string, logger *slog.Logger) (*dedup.Tracker, error) {
	tracker, err := dedup.Open(path)
	if err == nil {
		return tracker, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		// Nothing on disk to recover from, the open failure stands.
		return nil, err
	}

	backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	logger.Error("seen database unusable, starting over with an empty one",
		"path", path,
		"backup", backup,
		"error", err,
	)
	if renameErr := os.Rename(path, backup); renameErr != nil {
		return nil, fmt.Errorf("move corrupt seen database aside: %w", renameErr)
	}
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		if rmErr := os.Remove(sidecar); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("could not remove database sidecar", "path", sidecar, "error", rmErr)
		}
	}
	return dedup.Open(path)
}

// buildForwarder wires the API client, the SMTP sender and the seen tracker
// from the configuration. The caller owns closing the returned tracker.
func buildForwarder(cfg config.Config, logger *slog.Logger) (*forwarder.Forwarder, *dedup.Tracker, error) {
	tracker, err := openTracker(cfg.SeenDBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open seen database: %w", err)
	}
	logger.Info("loaded seen state", "path", cfg.SeenDBPath(), "known", tracker.Count())

	source := paperless.New(cfg.PaperlessURL, cfg.PaperlessToken, logger)
	dispatch := sender.New(cfg.SMTPServer, cfg.SMTPPort, cfg.Security(), cfg.Login, cfg.Password, logger)

	fwd := forwarder.New(source, dispatch, tracker, forwarder.Options{
		Filter: paperless.Filter{
			TagID:          cfg.FilterTagID,
			DocumentTypeID: cfg.FilterDocumentTypeID,
			LookbackDays:   cfg.LookbackDays,
		},
		Recipient: cfg.Recipient,
		Subject:   cfg.Subject,
		Body:      cfg.Body,
		Interval:  cfg.Interval(),
	}, logger)
	return fwd, tracker, nil
}
