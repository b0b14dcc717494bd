package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/documents"
	"github.com/JaimeStill/expedite/internal/reports"
	"github.com/JaimeStill/expedite/pkg/rules"
)

// State is a step of the per-case state machine.
type State string

const (
	StatePending    State = "pending"
	StateRuleCheck  State = "rule_check"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateAssembling State = "assembling"
	StateDelivering State = "delivering"
	StateUpdating   State = "updating"
	StateTerminal   State = "terminal"
)

// caseRun is the state carried through one case.
type caseRun struct {
	c      cases.Case
	dir    string
	logger *slog.Logger
	state  State

	recipient   string
	docs        []documents.Document
	admitted    []documents.Document
	deliverable *assembly.Deliverable
	result      *delivery.Result

	entry reports.Entry
}

func (r *caseRun) finish(outcome reports.Outcome, observation string) (State, error) {
	r.entry.Outcome = outcome
	r.entry.Observation = observation
	return StateTerminal, nil
}

type step func(ctx context.Context, run *caseRun) (State, error)

// Processor runs one case from Pending to a terminal outcome.
type Processor struct {
	rt    *Runtime
	steps map[State]step
}

// NewProcessor creates a Processor over rt.
func NewProcessor(rt *Runtime) *Processor {
	p := &Processor{rt: rt}
	p.steps = map[State]step{
		StatePending:    p.pending,
		StateRuleCheck:  p.ruleCheck,
		StateFetching:   p.fetch,
		StateFiltering:  p.filter,
		StateAssembling: p.assemble,
		StateDelivering: p.deliver,
		StateUpdating:   p.update,
	}
	return p
}

// Process drives c to a terminal outcome. Every error and panic is
// converted to OutcomeFailed; Process never fails the batch. A case that
// fails after its recipient was resolved is told so by mail.
func (p *Processor) Process(ctx context.Context, c cases.Case) (entry reports.Entry) {
	run := &caseRun{
		c:      c,
		logger: p.rt.Logger.With("case", c.ID, "ticket", c.Ticket()),
		entry: reports.Entry{
			CaseID:        c.ID,
			Ticket:        c.Ticket(),
			SecondaryKeys: c.SecondaryKeys,
		},
	}

	defer func() {
		if rec := recover(); rec != nil {
			run.logger.ErrorContext(ctx, "case panicked", "panic", rec)
			run.entry.Outcome = reports.OutcomeFailed
			run.entry.Observation = fmt.Sprintf("unexpected failure: %v", rec)
		}
		if run.entry.Outcome == reports.OutcomeFailed && run.state != StateRuleCheck && run.recipient != "" {
			p.caseError(ctx, run)
		}
		if run.dir != "" {
			os.RemoveAll(run.dir)
		}
		if p.rt.Metrics != nil {
			p.rt.Metrics.CaseOutcome(p.rt.Variant, string(run.entry.Outcome))
		}
		entry = run.entry
	}()

	run.state = StatePending
	for run.state != StateTerminal {
		next, err := p.steps[run.state](ctx, run)
		if err != nil {
			run.logger.WarnContext(ctx, "case failed", "state", run.state, "error", err)
			next, _ = run.finish(reports.OutcomeFailed, err.Error())
		}
		if next == StateTerminal {
			break
		}
		run.logger.DebugContext(ctx, "case transition", "from", run.state, "to", next)
		run.state = next
	}

	run.logger.InfoContext(ctx, "case finished",
		"outcome", run.entry.Outcome,
		"observation", run.entry.Observation,
		"flagged", run.entry.Flagged,
	)
	return run.entry
}

func (p *Processor) caseError(ctx context.Context, run *caseRun) {
	err := p.rt.Notifier.CaseError(ctx, p.rt.Variant, run.c, run.recipient, run.entry.Observation)
	if err != nil {
		run.logger.WarnContext(ctx, "case-error notice not sent", "error", err)
	}
}

func (p *Processor) pending(_ context.Context, run *caseRun) (State, error) {
	dir, err := os.MkdirTemp(p.rt.WorkDir, "case-*")
	if err != nil {
		return "", fmt.Errorf("create case directory: %w", err)
	}
	run.dir = dir
	return StateRuleCheck, nil
}

// ruleCheck applies the non-critical preconditions. A failure ends the case
// and notifies the responsible party.
func (p *Processor) ruleCheck(ctx context.Context, run *caseRun) (State, error) {
	observation := p.precondition(ctx, run)
	if observation == "" {
		return StateFetching, nil
	}

	if err := p.rt.Notifier.NonCritical(ctx, p.rt.Variant, run.c, observation); err != nil {
		run.logger.WarnContext(ctx, "non-critical notice not sent", "error", err)
	}
	return run.finish(reports.OutcomeFailed, observation)
}

func (p *Processor) precondition(ctx context.Context, run *caseRun) string {
	c := run.c

	if strings.TrimSpace(c.Reference) == "" && strings.TrimSpace(c.TicketNumber) == "" {
		return ObsMissingTicket
	}
	if len(c.SecondaryKeys) == 0 {
		return ObsNoSecondaryKeys
	}

	if p.rt.Production && strings.TrimSpace(c.Email) != "" && !cases.ValidEmail(c.Email) {
		return ObsInvalidEmail
	}

	cctx, cancel := p.rt.call(ctx)
	defer cancel()

	recipient, err := p.rt.Recipients.Resolve(cctx, c)
	if err != nil {
		run.logger.WarnContext(ctx, "recipient not resolved", "error", err)
		return ObsMissingEmail
	}
	if p.rt.Production && !cases.ValidEmail(recipient) {
		return ObsInvalidEmail
	}

	run.recipient = recipient
	return ""
}

func (p *Processor) fetch(ctx context.Context, run *caseRun) (State, error) {
	seen := make(map[string]struct{})
	for _, key := range run.c.SecondaryKeys {
		cctx, cancel := p.rt.call(ctx)
		docs, err := p.rt.Documents.Search(cctx, key)
		cancel()
		if err != nil {
			return "", fmt.Errorf("search documents for %s: %w", key, err)
		}

		for _, d := range docs {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			run.docs = append(run.docs, d)
		}
		run.logger.DebugContext(ctx, "documents found", "key", key, "count", len(docs))
	}

	if len(run.docs) == 0 {
		return run.finish(reports.OutcomeFailed, ObsNoDocuments)
	}
	return StateFiltering, nil
}

func (p *Processor) filter(ctx context.Context, run *caseRun) (State, error) {
	run.admitted = rules.Apply(p.rt.Filter, run.docs)
	run.logger.InfoContext(ctx, "documents filtered", "found", len(run.docs), "admitted", len(run.admitted))

	if len(run.admitted) > 0 {
		return StateAssembling, nil
	}

	observation := ObsAllExcluded
	if err := p.rt.Notifier.NoAttachments(ctx, p.rt.Variant, run.c); err != nil {
		run.logger.WarnContext(ctx, "no-attachments notice not sent", "error", err)
		observation += "; notice not sent: " + err.Error()
	}
	return run.finish(reports.OutcomeExcludedAll, observation)
}

func (p *Processor) assemble(ctx context.Context, run *caseRun) (State, error) {
	collector := &assembly.Collector{
		Source:  p.rt.Documents,
		Timeout: p.rt.CallTimeout,
		Logger:  run.logger,
	}

	files, err := collector.Collect(ctx, run.admitted, filepath.Join(run.dir, "downloads"))
	if errors.Is(err, assembly.ErrAllDownloadsFailed) {
		return run.finish(reports.OutcomeFailed, ObsAllDownloads)
	}
	if err != nil {
		return "", err
	}

	d, err := p.rt.Assembler.Assemble(ctx, assembly.Request{
		Dir:    filepath.Join(run.dir, "out"),
		Ticket: run.c.Ticket(),
		CaseID: run.c.ID,
		Files:  files,
	})
	if err != nil {
		return "", fmt.Errorf("assemble: %w", err)
	}

	run.deliverable = d
	return StateDelivering, nil
}

func (p *Processor) deliver(ctx context.Context, run *caseRun) (State, error) {
	dctx, cancel := p.rt.deliveryContext(ctx)
	defer cancel()

	res, err := p.rt.Strategy.Deliver(dctx, run.deliverable, delivery.Target{
		Case:      run.c,
		Recipient: run.recipient,
		Variant:   p.rt.Variant,
	})
	if err != nil {
		return "", fmt.Errorf("deliver: %w", err)
	}

	if res.Tier != "" && p.rt.Metrics != nil {
		p.rt.Metrics.ShareTier(p.rt.Variant, res.Tier)
	}
	run.logger.InfoContext(ctx, "deliverable delivered",
		"channel", res.Channel,
		"tier", res.Tier,
		"degraded", res.Degraded,
	)

	run.result = res
	return StateUpdating, nil
}

// update writes the resolution back. A failure here keeps the case
// Processed and flags it for reconciliation.
func (p *Processor) update(ctx context.Context, run *caseRun) (State, error) {
	cctx, cancel := p.rt.call(ctx)
	err := p.rt.Cases.Update(cctx, run.c.ID, true, run.result.Narrative)
	cancel()

	if err == nil {
		return run.finish(reports.OutcomeProcessed, ObsProcessed)
	}

	run.logger.ErrorContext(ctx, "case update failed after delivery", "error", err)
	run.entry.Flagged = true

	if nerr := p.rt.Notifier.UpdateFailed(ctx, p.rt.Variant, run.c, err); nerr != nil {
		run.logger.WarnContext(ctx, "update-failed notice not sent", "error", nerr)
	}
	return run.finish(reports.OutcomeProcessed, fmt.Sprintf("%s; %s: %v", ObsProcessed, ObsUpdateFailedNote, err))
}
