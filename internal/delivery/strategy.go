package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/internal/notify"
	"github.com/JaimeStill/expedite/pkg/formatting"
)

// Options configures a Strategy for one variant.
type Options struct {
	Variant string
	// BasePath is the remote folder deliverables are uploaded under.
	BasePath string
	// Threshold is the largest merged file sent as an attachment.
	Threshold int64
	Chain     Chain
}

type base struct {
	drive   Drive
	sender  Sender
	advisor Advisor
	opts    Options
	logger  *slog.Logger
}

// share runs the chain and sends the advisory when the winning tier is
// degraded.
func (b *base) share(ctx context.Context, item Item, t Target) (Shared, error) {
	res, err := b.opts.Chain.Run(ctx, item, t)
	if err != nil {
		return res, err
	}

	if len(res.Errors) > 0 {
		b.logger.WarnContext(ctx, "share tiers failed", "case", t.Case.ID, "tier", res.Tier, "error", res.Cause())
	}
	if res.Degraded {
		if err := b.advisor.ShareAdvisory(ctx, t.Variant, t.Case, res.Link, res.Cause()); err != nil {
			b.logger.WarnContext(ctx, "share advisory not sent", "case", t.Case.ID, "error", err)
		}
	}
	return res, nil
}

func (b *base) remote(ticket string, elem ...string) string {
	parts := append([]string{b.opts.BasePath, assembly.Sanitize(ticket)}, elem...)
	return path.Join(parts...)
}

type mergeStrategy struct {
	base
}

// NewMergeStrategy delivers a merged file: inline below the threshold,
// otherwise uploaded and shared by link.
func NewMergeStrategy(drive Drive, sender Sender, advisor Advisor, opts Options, logger *slog.Logger) Strategy {
	return &mergeStrategy{base{
		drive:   drive,
		sender:  sender,
		advisor: advisor,
		opts:    opts,
		logger:  logger.With("system", "delivery", "variant", opts.Variant),
	}}
}

func (s *mergeStrategy) Deliver(ctx context.Context, d *assembly.Deliverable, t Target) (*Result, error) {
	if t.Recipient == "" {
		return nil, ErrNoRecipient
	}

	if d.Size < s.opts.Threshold {
		return s.attach(ctx, d, t)
	}

	remote := s.remote(t.Case.Ticket(), assembly.Sanitize(t.Case.ID)+".pdf")
	item, err := s.drive.UploadFile(ctx, d.Path, remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, remote, err)
	}

	shared, err := s.share(ctx, item, t)
	if err != nil {
		return nil, err
	}

	narrative, err := s.sender.Deliver(ctx, notify.Delivery{
		Case:       t.Case,
		To:         t.Recipient,
		Variant:    t.Variant,
		Kind:       notify.KindLink,
		Link:       shared.Link,
		RemotePath: remote,
	})
	if err != nil {
		return nil, fmt.Errorf("send link: %w", err)
	}

	s.logger.InfoContext(ctx, "deliverable shared", "case", t.Case.ID, "tier", shared.Tier, "size", formatting.FormatBytes(d.Size, 1))
	return &Result{
		Channel:    ChannelLink,
		Link:       shared.Link,
		Tier:       shared.Tier,
		Degraded:   shared.Degraded,
		RemotePath: remote,
		Narrative:  narrative,
	}, nil
}

func (s *mergeStrategy) attach(ctx context.Context, d *assembly.Deliverable, t Target) (*Result, error) {
	content, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read deliverable: %w", err)
	}

	narrative, err := s.sender.Deliver(ctx, notify.Delivery{
		Case:    t.Case,
		To:      t.Recipient,
		Variant: t.Variant,
		Kind:    notify.KindAttachment,
		Attachment: &graph.Attachment{
			Name:        assembly.Sanitize(t.Case.Ticket()) + ".pdf",
			ContentType: "application/pdf",
			Content:     content,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("send attachment: %w", err)
	}

	s.logger.InfoContext(ctx, "deliverable attached", "case", t.Case.ID, "size", formatting.FormatBytes(d.Size, 1))
	return &Result{Channel: ChannelAttachment, Narrative: narrative}, nil
}

type folderStrategy struct {
	base
}

// NewFolderStrategy uploads the folder tree and shares it through the chain.
func NewFolderStrategy(drive Drive, sender Sender, advisor Advisor, opts Options, logger *slog.Logger) Strategy {
	return &folderStrategy{base{
		drive:   drive,
		sender:  sender,
		advisor: advisor,
		opts:    opts,
		logger:  logger.With("system", "delivery", "variant", opts.Variant),
	}}
}

func (s *folderStrategy) Deliver(ctx context.Context, d *assembly.Deliverable, t Target) (*Result, error) {
	if t.Recipient == "" {
		return nil, ErrNoRecipient
	}

	remote := s.remote(t.Case.Ticket())
	item, err := s.drive.UploadTree(ctx, d.Path, remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, remote, err)
	}

	shared, err := s.share(ctx, item, t)
	if err != nil {
		return nil, err
	}

	narrative, err := s.sender.Deliver(ctx, notify.Delivery{
		Case:       t.Case,
		To:         t.Recipient,
		Variant:    t.Variant,
		Kind:       notify.KindLink,
		Link:       shared.Link,
		RemotePath: remote,
	})
	if err != nil {
		return nil, fmt.Errorf("send link: %w", err)
	}

	s.logger.InfoContext(ctx, "folder shared", "case", t.Case.ID, "tier", shared.Tier, "files", len(d.Entries))
	return &Result{
		Channel:    ChannelLink,
		Link:       shared.Link,
		Tier:       shared.Tier,
		Degraded:   shared.Degraded,
		RemotePath: item.Path,
		Narrative:  narrative,
	}, nil
}
