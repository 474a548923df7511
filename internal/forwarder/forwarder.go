// Package forwarder drives the poll cycle: list documents, skip the ones
// already forwarded, mail the rest, and remember every success.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tracyhatemice/paperless-mailer/internal/paperless"
	"github.com/tracyhatemice/paperless-mailer/internal/sender"
)

// DocumentSource lists candidate documents and fetches their files.
type DocumentSource interface {
	ListDocuments(ctx context.Context, f paperless.Filter) ([]paperless.Document, error)
	DownloadDocument(ctx context.Context, id int64) (*paperless.File, error)
}

// Dispatcher delivers one document mail and returns only after the server
// accepted it.
type Dispatcher interface {
	Send(to, subject, body string, att sender.Attachment, documentID int64) error
}

// SeenSet is the durable record of forwarded documents. An id must only be
// added after its mail went out.
type SeenSet interface {
	Contains(id int64) bool
	Add(ctx context.Context, id int64, title string) error
}

// Options carries the per-run settings of a Forwarder.
type Options struct {
	Filter    paperless.Filter
	Recipient string
	Subject   string
	Body      string
	Interval  time.Duration
}

// Forwarder monitors one Paperless-ngx instance and mails new documents.
type Forwarder struct {
	source  DocumentSource
	sender  Dispatcher
	tracker SeenSet
	opts    Options
	logger  *slog.Logger
}

// New creates a Forwarder.
func New(source DocumentSource, dispatch Dispatcher, tracker SeenSet, opts Options, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		source:  source,
		sender:  dispatch,
		tracker: tracker,
		opts:    opts,
		logger:  logger,
	}
}

// Run polls on the configured interval until ctx is cancelled. Cycle errors
// are logged, not returned; the next tick gets a fresh chance.
func (f *Forwarder) Run(ctx context.Context) {
	f.logger.Info("starting forwarder",
		"interval", f.opts.Interval,
		"recipient", f.opts.Recipient,
	)

	// Run immediately on start, then on interval.
	if err := f.RunOnce(ctx); err != nil && ctx.Err() == nil {
		f.logger.Error("cycle failed", "error", err)
	}

	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forwarder stopped")
			return
		case <-ticker.C:
			if err := f.RunOnce(ctx); err != nil && ctx.Err() == nil {
				f.logger.Error("cycle failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single poll cycle. Failures of a single document are
// logged and skipped; errors that would hit every remaining document as
// well, like a rejected API token or an unreachable SMTP server, abort the
// rest of the cycle.
func (f *Forwarder) RunOnce(ctx context.Context) error {
	docs, err := f.source.ListDocuments(ctx, f.opts.Filter)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	var fresh []paperless.Document
	for _, doc := range docs {
		if !f.tracker.Contains(doc.ID) {
			fresh = append(fresh, doc)
		}
	}
	if len(fresh) == 0 {
		f.logger.Debug("no new documents", "listed", len(docs))
		return nil
	}
	// Oldest documents go out first regardless of the listing order.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	f.logger.Info("found new documents", "new", len(fresh), "listed", len(docs))

	var forwarded, failed int
	for i, doc := range fresh {
		// The document in flight is always finished; cancellation takes
		// effect between documents.
		if err := ctx.Err(); err != nil {
			f.logger.Info("cycle interrupted", "remaining", len(fresh)-i)
			return err
		}

		if err := f.process(ctx, doc); err != nil {
			if errors.Is(err, paperless.ErrAuth) || errors.Is(err, sender.ErrTransport) {
				return fmt.Errorf("document %d: %w", doc.ID, err)
			}
			f.logger.Error("forward failed", "id", doc.ID, "title", doc.Title, "error", err)
			failed++
			continue
		}
		f.logger.Info("forwarded", "id", doc.ID, "title", doc.Title, "to", f.opts.Recipient)
		forwarded++
	}
	f.logger.Info("cycle finished",
		"listed", len(docs),
		"new", len(fresh),
		"forwarded", forwarded,
		"failed", failed,
	)
	return nil
}

// process downloads one document, mails it, and records the forward.
func (f *Forwarder) process(ctx context.Context, doc paperless.Document) error {
	file, err := f.source.DownloadDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	att := sender.Attachment{
		Name:        attachmentName(doc, file),
		ContentType: file.ContentType,
		Content:     file.Content,
	}
	if err := f.sender.Send(f.opts.Recipient, f.opts.Subject, f.opts.Body, att, doc.ID); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The mail is out. Record it even when shutdown is already underway,
	// otherwise the next start would send the document again.
	if err := f.tracker.Add(context.WithoutCancel(ctx), doc.ID, doc.Title); err != nil {
		f.logger.Error("recording forward failed, document may be mailed again",
			"id", doc.ID,
			"error", err,
		)
	}
	return nil
}

// attachmentName picks a filename for the mail attachment, preferring what
// the download reported over the document metadata.
func attachmentName(doc paperless.Document, file *paperless.File) string {
	if file.Name != "" {
		return file.Name
	}
	if doc.OriginalFileName != "" {
		return doc.OriginalFileName
	}
	return fmt.Sprintf("%d.pdf", doc.ID)
}
