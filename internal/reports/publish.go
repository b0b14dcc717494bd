package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/internal/notify"
	"github.com/JaimeStill/expedite/pkg/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sender emails a rendered report. *notify.Notifier satisfies it.
type Sender interface {
	Report(ctx context.Context, s notify.Summary, recipients []string, att *graph.Attachment) error
}

// Publisher renders, archives and emails run reports. Entries are
// persisted per case by the pipeline, not here.
type Publisher struct {
	archive  storage.System
	sender   Sender
	cfg      *Config
	location *time.Location
	logger   *slog.Logger
}

// NewPublisher creates a Publisher. archive may be nil to skip archiving.
func NewPublisher(archive storage.System, sender Sender, cfg *Config, loc *time.Location, logger *slog.Logger) *Publisher {
	if loc == nil {
		loc = time.Local
	}
	return &Publisher{
		archive:  archive,
		sender:   sender,
		cfg:      cfg,
		location: loc,
		logger:   logger.With("system", "reports"),
	}
}

// Publish runs every step even when an earlier one fails and returns the
// joined failures.
func (p *Publisher) Publish(ctx context.Context, r *Report, botCode string) error {
	var errs []error

	var buf bytes.Buffer
	err := WriteXLSX(&buf, r, Meta{
		AssistantCode: p.cfg.AssistantCode,
		BotCode:       botCode,
		NetworkUser:   p.cfg.NetworkUser,
		Station:       p.cfg.Station,
		PID:           os.Getpid(),
		Location:      p.location,
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("render report: %w", err))
		return errors.Join(errs...)
	}

	if p.cfg.Archive && p.archive != nil {
		key := path.Join("reports", r.Variant(), r.FileName())
		if err := p.archive.Upload(ctx, key, bytes.NewReader(buf.Bytes()), xlsxContentType); err != nil {
			errs = append(errs, fmt.Errorf("archive report: %w", err))
		} else {
			p.logger.InfoContext(ctx, "report archived", "key", key)
		}
	}

	t := r.Tally()
	summary := notify.Summary{
		RunID:     r.RunID().String(),
		Variant:   r.Variant(),
		Date:      r.FinishedAt(),
		Total:     t.Total,
		Succeeded: t.Succeeded,
		Failed:    t.Failed,
		Pending:   t.Pending,
	}
	att := &graph.Attachment{
		Name:        r.FileName(),
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}
	if err := p.sender.Report(ctx, summary, p.cfg.Recipients, att); err != nil {
		errs = append(errs, fmt.Errorf("email report: %w", err))
	}

	p.logger.InfoContext(ctx, "report published",
		"run", r.RunID(),
		"total", t.Total,
		"succeeded", t.Succeeded,
		"failed", t.Failed,
		"pending", t.Pending,
		"flagged", t.Flagged,
	)
	return errors.Join(errs...)
}
