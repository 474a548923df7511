package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracyhatemice/paperless-mailer/internal/config"
	"github.com/tracyhatemice/paperless-mailer/internal/dedup"
)

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "List the documents already forwarded",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return err
		}

		// Read-only: no corruption recovery here, a broken database
		// should be surfaced, not renamed away.
		tracker, err := dedup.Open(cfg.SeenDBPath())
		if err != nil {
			return fmt.Errorf("open seen database: %w", err)
		}
		defer tracker.Close()

		records, err := tracker.Records(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no documents forwarded yet")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%d\t%s\t%s\n", r.DocumentID, r.ForwardedAt.Format(time.RFC3339), r.Title)
		}
		fmt.Printf("%d document(s) forwarded\n", len(records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seenCmd)
}
