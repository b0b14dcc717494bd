package reports

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/expedite/pkg/pagination"
	"github.com/JaimeStill/expedite/pkg/query"
	"github.com/JaimeStill/expedite/pkg/repository"
)

// Record is a persisted report entry.
type Record struct {
	ID            uuid.UUID  `json:"id"`
	RunID         uuid.UUID  `json:"run_id"`
	Variant       string     `json:"variant"`
	CaseID        string     `json:"case_id"`
	Ticket        string     `json:"ticket"`
	SecondaryKeys string     `json:"secondary_keys"`
	Outcome       Outcome    `json:"outcome"`
	Status        Status     `json:"status"`
	Observation   string     `json:"observation"`
	Flagged       bool       `json:"flagged"`
	ReconciledAt  *time.Time `json:"reconciled_at,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// Filters narrows a listing. Nil fields are ignored.
type Filters struct {
	Variant *string
	Status  *string
	Ticket  *string
	Flagged *bool
	RunID   *uuid.UUID
	Since   *time.Time
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Variant", f.Variant).
		WhereEquals("Status", f.Status).
		WhereContains("Ticket", f.Ticket).
		WhereEquals("Flagged", f.Flagged).
		WhereEquals("RunID", f.RunID).
		WhereSince("StartedAt", f.Since)
}

// Run identifies the batch an entry belongs to.
type Run struct {
	ID        uuid.UUID
	Variant   string
	StartedAt time.Time
}

// Store persists report entries.
type Store interface {
	// Record inserts one entry of run, decided at finishedAt, as its own
	// statement. Rows recorded earlier in the run are never rewritten.
	Record(ctx context.Context, run Run, e Entry, finishedAt time.Time) error
	// List pages through persisted entries.
	List(ctx context.Context, page pagination.Request, filters Filters) (*pagination.Page[Record], error)
	// Reconcile clears the flag of a flagged entry. It returns ErrNotFound
	// when no flagged entry has that id.
	Reconcile(ctx context.Context, id uuid.UUID) error
}

var projection = query.
	NewProjection("public.report_entries", "e").
	Field("ID", "id").
	Field("RunID", "run_id").
	Field("Variant", "variant").
	Field("CaseID", "case_id").
	Field("Ticket", "ticket").
	Field("SecondaryKeys", "secondary_keys").
	Field("Outcome", "outcome").
	Field("Status", "status").
	Field("Observation", "observation").
	Field("Flagged", "flagged").
	Field("ReconciledAt", "reconciled_at").
	Field("StartedAt", "started_at").
	Field("FinishedAt", "finished_at")

var defaultSort = []query.SortField{
	{Field: "StartedAt", Descending: true},
	{Field: "Ticket"},
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	err := s.Scan(
		&r.ID, &r.RunID, &r.Variant, &r.CaseID, &r.Ticket, &r.SecondaryKeys,
		&r.Outcome, &r.Status, &r.Observation, &r.Flagged, &r.ReconciledAt,
		&r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

type repo struct {
	db         *sql.DB
	pagination pagination.Config
	logger     *slog.Logger
}

// NewStore creates a PostgreSQL-backed Store.
func NewStore(db *sql.DB, pagination pagination.Config, logger *slog.Logger) Store {
	return &repo{
		db:         db,
		pagination: pagination,
		logger:     logger.With("system", "reports"),
	}
}

const insertEntry = `
	INSERT INTO report_entries(
		id, run_id, variant, case_id, ticket, secondary_keys,
		outcome, status, observation, flagged, started_at, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *repo) Record(ctx context.Context, run Run, e Entry, finishedAt time.Time) error {
	_, err := repository.Exec(ctx, r.db, insertEntry,
		uuid.New(), run.ID, run.Variant, e.CaseID, e.Ticket,
		strings.Join(e.SecondaryKeys, ","), string(e.Outcome),
		string(e.Outcome.Status()), e.Observation, e.Flagged,
		run.StartedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("record case %s: %w", e.CaseID, repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	r.logger.DebugContext(ctx, "report entry recorded", "run", run.ID, "case", e.CaseID, "outcome", e.Outcome)
	return nil
}

func (r *repo) List(ctx context.Context, page pagination.Request, filters Filters) (*pagination.Page[Record], error) {
	page = page.Within(r.pagination)

	qb := filters.Apply(query.NewBuilder(projection, defaultSort...)).OrderBy(page.Sort)

	countSQL, countArgs, err := qb.BuildCount()
	if err != nil {
		return nil, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count report entries: %w", err)
	}

	pageSQL, pageArgs, err := qb.BuildPage(page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	items, err := repository.Select(ctx, r.db, scanRecord, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("query report entries: %w", err)
	}

	result := pagination.NewPage(items, total, page)
	return &result, nil
}

func (r *repo) Reconcile(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecOne(ctx, r.db, `
		UPDATE report_entries
		SET flagged = false, reconciled_at = NOW()
		WHERE id = $1 AND flagged`, id)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.InfoContext(ctx, "report entry reconciled", "id", id)
	return nil
}
