package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/lock"
	"github.com/JaimeStill/expedite/internal/reports"
)

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusBusy      Status = "busy"
	StatusSkipped   Status = "skipped"
	StatusAborted   Status = "aborted"
)

// RunResult summarizes one Run call.
type RunResult struct {
	RunID  uuid.UUID
	Status Status
	Reason string
	// Report is nil unless the run reached the batch stage.
	Report *reports.Report
	// Unrecorded counts entries the History rejected.
	Unrecorded int
}

// Runner executes one batch for a variant under its execution lock.
type Runner struct {
	rt        *Runtime
	processor *Processor
}

// NewRunner creates a Runner over rt.
func NewRunner(rt *Runtime) *Runner {
	return &Runner{rt: rt, processor: NewProcessor(rt)}
}

// Run acquires the variant lock and processes the pending batch. It returns
// an error only for fatal pre-batch conditions, an unreadable lock store
// among them. A held lock, a closed window and per-case failures are
// reported through RunResult.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.New()
	logger := r.rt.Logger.With("run", runID, "variant", r.rt.Variant)

	var (
		result *RunResult
		runErr error
	)
	err := r.rt.Locker.Do(ctx, r.rt.Variant, func(ctx context.Context, _ *lock.Handle) error {
		result, runErr = r.run(ctx, runID, logger)
		return nil
	})
	if errors.Is(err, lock.ErrBusy) {
		logger.WarnContext(ctx, "run skipped, variant busy", "error", err)
		if nerr := r.rt.Notifier.LockBusy(ctx, r.rt.Variant, err); nerr != nil {
			logger.WarnContext(ctx, "lock-busy notice not sent", "error", nerr)
		}
		return &RunResult{RunID: runID, Status: StatusBusy, Reason: err.Error()}, nil
	}
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrLock, err)
		logger.ErrorContext(ctx, "run not started", "error", cause)
		if nerr := r.rt.Notifier.ConnectionError(ctx, r.rt.Variant, cause); nerr != nil {
			logger.WarnContext(ctx, "connection-error notice not sent", "error", nerr)
		}
		return nil, cause
	}
	return result, runErr
}

func (r *Runner) run(ctx context.Context, runID uuid.UUID, logger *slog.Logger) (*RunResult, error) {
	rt := r.rt
	started := rt.now()

	if !rt.Gate.IsOpen(started) {
		logger.InfoContext(ctx, "outside operating window")
		return &RunResult{RunID: runID, Status: StatusSkipped, Reason: "outside operating window"}, nil
	}

	if err := r.preflight(ctx); err != nil {
		return r.abort(ctx, runID, logger, fmt.Errorf("%w: %w", ErrPreflight, err))
	}

	cctx, cancel := rt.call(ctx)
	candidates, err := rt.Cases.QueryPending(cctx, rt.Tags)
	cancel()
	if err != nil {
		return r.abort(ctx, runID, logger, fmt.Errorf("%w: %w", ErrFetch, err))
	}

	logger.InfoContext(ctx, "batch started", "candidates", len(candidates))
	if err := rt.Notifier.RunStarted(ctx, rt.Variant, runID.String(), len(candidates)); err != nil {
		logger.WarnContext(ctx, "run-started notice not sent", "error", err)
	}

	batch := reports.Run{ID: runID, Variant: rt.Variant, StartedAt: started}
	entries, unrecorded := r.process(ctx, batch, candidates, logger)

	finished := rt.now()
	report := reports.New(runID, rt.Variant, started, finished, entries)

	r.finish(ctx, report, logger)
	return &RunResult{RunID: runID, Status: StatusCompleted, Report: report, Unrecorded: unrecorded}, nil
}

// process runs each candidate in order and records every entry as soon as
// it is decided. When the gate closes, the case about to start is recorded
// as interrupted and the rest as not reached; when ctx ends, every remaining
// case is recorded as cancelled. All of them are skipped-pending. It returns
// the entries and how many of them the History rejected.
func (r *Runner) process(ctx context.Context, batch reports.Run, candidates []cases.Case, logger *slog.Logger) ([]reports.Entry, int) {
	rt := r.rt
	entries := make([]reports.Entry, 0, len(candidates))
	unrecorded := 0

	keep := func(e reports.Entry) {
		entries = append(entries, e)
		if !r.record(ctx, batch, e, logger) {
			unrecorded++
		}
	}

	for i, c := range candidates {
		first, rest := "", ""
		switch {
		case ctx.Err() != nil:
			first, rest = ObsCancelled, ObsCancelled
		case !rt.Gate.IsOpen(rt.now()):
			first, rest = ObsInterrupted, ObsNotReached
		}

		if first != "" {
			logger.WarnContext(ctx, "batch interrupted", "reason", first, "remaining", len(candidates)-i)
			for j, pending := range candidates[i:] {
				observation := rest
				if j == 0 {
					observation = first
				}
				keep(skipped(pending, observation))
				if rt.Metrics != nil {
					rt.Metrics.CaseOutcome(rt.Variant, string(reports.OutcomeSkippedPending))
				}
			}
			break
		}

		keep(r.processor.Process(ctx, c))
	}

	if unrecorded > 0 {
		logger.ErrorContext(ctx, "report entries not recorded", "count", unrecorded, "entries", len(entries))
	}
	return entries, unrecorded
}

// record writes e on a context detached from cancellation so a cancelled
// batch still leaves its history behind.
func (r *Runner) record(ctx context.Context, batch reports.Run, e reports.Entry, logger *slog.Logger) bool {
	if r.rt.History == nil {
		return true
	}

	cctx, cancel := r.rt.call(context.WithoutCancel(ctx))
	defer cancel()

	if err := r.rt.History.Record(cctx, batch, e, r.rt.now()); err != nil {
		logger.ErrorContext(ctx, "report entry not recorded", "case", e.CaseID, "outcome", e.Outcome, "error", err)
		return false
	}
	return true
}

func skipped(c cases.Case, observation string) reports.Entry {
	return reports.Entry{
		CaseID:        c.ID,
		Ticket:        c.Ticket(),
		SecondaryKeys: c.SecondaryKeys,
		Outcome:       reports.OutcomeSkippedPending,
		Observation:   observation,
	}
}

// preflight pings the case system, the document repository and every
// configured probe concurrently.
func (r *Runner) preflight(ctx context.Context) error {
	probes := append([]Probe{
		{Name: "cases", Ping: r.rt.Cases.Ping},
		{Name: "documents", Ping: r.rt.Documents.Ping},
	}, r.rt.Probes...)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range probes {
		g.Go(func() error {
			cctx, cancel := r.rt.call(gctx)
			defer cancel()
			if err := p.Ping(cctx); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) abort(ctx context.Context, runID uuid.UUID, logger *slog.Logger, cause error) (*RunResult, error) {
	logger.ErrorContext(ctx, "run aborted", "error", cause)
	if err := r.rt.Notifier.ConnectionError(ctx, r.rt.Variant, cause); err != nil {
		logger.WarnContext(ctx, "connection-error notice not sent", "error", err)
	}
	if r.rt.Metrics != nil {
		now := r.rt.now()
		r.rt.Metrics.RunFinished(r.rt.Variant, string(StatusAborted), 0, now)
		r.pushMetrics(ctx, logger)
	}
	return &RunResult{RunID: runID, Status: StatusAborted, Reason: cause.Error()}, cause
}

// finish publishes the report and metrics. It runs on a context detached
// from cancellation so an interrupted batch still reports.
func (r *Runner) finish(ctx context.Context, report *reports.Report, logger *slog.Logger) {
	rt := r.rt
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*max(rt.CallTimeout, time.Minute))
	defer cancel()

	if report.Len() == 0 {
		logger.InfoContext(fctx, "no pending cases, report not published")
	} else if rt.Publisher != nil {
		if err := rt.Publisher.Publish(fctx, report, rt.BotCode); err != nil {
			logger.ErrorContext(fctx, "report not fully published", "error", err)
		}
	}

	if rt.Metrics != nil {
		rt.Metrics.RunFinished(rt.Variant, string(StatusCompleted), report.FinishedAt().Sub(report.StartedAt()), report.FinishedAt())
		r.pushMetrics(fctx, logger)
	}

	t := report.Tally()
	logger.InfoContext(fctx, "batch finished",
		"total", t.Total,
		"succeeded", t.Succeeded,
		"failed", t.Failed,
		"pending", t.Pending,
		"flagged", t.Flagged,
	)
}

func (r *Runner) pushMetrics(ctx context.Context, logger *slog.Logger) {
	if err := r.rt.Metrics.Push(ctx, r.rt.Variant); err != nil {
		logger.WarnContext(ctx, "metrics not pushed", "error", err)
	}
}
