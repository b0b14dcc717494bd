// Package reports records batch outcomes: the immutable run report, its
// spreadsheet rendering, persisted entries and their reconciliation.
package reports

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of one case in one run.
type Outcome string

const (
	OutcomeProcessed      Outcome = "processed"
	OutcomeFailed         Outcome = "failed"
	OutcomeExcludedAll    Outcome = "excluded_all"
	OutcomeSkippedPending Outcome = "skipped_pending"
)

// Status is the business-facing report column derived from an Outcome.
type Status string

const (
	StatusSucceeded Status = "Exitoso"
	StatusFailed    Status = "No Exitoso"
	StatusPending   Status = "Pendiente"
)

// Status maps the outcome to its report status.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeProcessed:
		return StatusSucceeded
	case OutcomeSkippedPending:
		return StatusPending
	default:
		return StatusFailed
	}
}

// Entry is one case's recorded outcome.
type Entry struct {
	CaseID        string
	Ticket        string
	SecondaryKeys []string
	Outcome       Outcome
	Observation   string
	// Flagged marks a delivered case whose write-back failed and needs
	// manual reconciliation.
	Flagged bool
}

// Tally counts entries by status.
type Tally struct {
	Total     int
	Succeeded int
	Failed    int
	Pending   int
	Flagged   int
}

// Report is the outcome of one batch run. It is never modified after New.
type Report struct {
	runID      uuid.UUID
	variant    string
	startedAt  time.Time
	finishedAt time.Time
	entries    []Entry
}

// New creates a report over a copy of entries.
func New(runID uuid.UUID, variant string, startedAt, finishedAt time.Time, entries []Entry) *Report {
	return &Report{
		runID:      runID,
		variant:    variant,
		startedAt:  startedAt,
		finishedAt: finishedAt,
		entries:    slices.Clone(entries),
	}
}

func (r *Report) RunID() uuid.UUID      { return r.runID }
func (r *Report) Variant() string       { return r.variant }
func (r *Report) StartedAt() time.Time  { return r.startedAt }
func (r *Report) FinishedAt() time.Time { return r.finishedAt }

// Entries returns a copy of the report entries in processing order.
func (r *Report) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Len returns the number of entries.
func (r *Report) Len() int {
	return len(r.entries)
}

// Tally counts the report entries by status.
func (r *Report) Tally() Tally {
	t := Tally{Total: len(r.entries)}
	for _, e := range r.entries {
		switch e.Outcome.Status() {
		case StatusSucceeded:
			t.Succeeded++
		case StatusPending:
			t.Pending++
		default:
			t.Failed++
		}
		if e.Flagged {
			t.Flagged++
		}
	}
	return t
}

// FileName is the spreadsheet name for the report, stamped with its finish
// time.
func (r *Report) FileName() string {
	return "reporte_expedicion_" + r.finishedAt.Format("20060102_150405") + ".xlsx"
}
