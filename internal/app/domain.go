// Package app wires configuration and infrastructure into the domain
// systems and per-variant pipeline runtimes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/documents"
	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/internal/infrastructure"
	"github.com/JaimeStill/expedite/internal/lock"
	"github.com/JaimeStill/expedite/internal/metrics"
	"github.com/JaimeStill/expedite/internal/notify"
	"github.com/JaimeStill/expedite/internal/reports"
	"github.com/JaimeStill/expedite/pkg/database"
	"github.com/JaimeStill/expedite/pkg/schedule"
	"github.com/JaimeStill/expedite/pkg/storage"
)

// Domain holds the systems shared by every pipeline variant.
type Domain struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database database.System
	Metrics  *metrics.Recorder

	Gate       *schedule.Gate
	Locker     *lock.Locker
	Cases      cases.Client
	Documents  documents.System
	Graph      *graph.Client
	Notifier   *notify.Notifier
	Recipients *delivery.Recipients
	Drive      delivery.Drive
	Reports    reports.Store
	Publisher  *reports.Publisher
}

// NewDomain creates all domain systems from cfg and infra.
func NewDomain(cfg *config.Config, infra *infrastructure.Infrastructure) (*Domain, error) {
	logger := infra.Logger

	gate, err := schedule.New(&cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	lockStore, err := lock.Open(&cfg.Lock, infra.Database.Connection())
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}

	casesClient, err := cases.New(&cfg.Cases, logger)
	if err != nil {
		return nil, fmt.Errorf("cases: %w", err)
	}

	graphClient, err := graph.New(&cfg.Graph, logger)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	drive, err := NewDrive(cfg.Delivery.Drive, graphClient, infra.Storage, logger)
	if err != nil {
		return nil, err
	}

	catalog, err := notify.LoadCatalog(cfg.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	notifier := notify.New(catalog, graphClient, notify.Options{
		Responsible: cfg.Responsible,
		Redirect:    cfg.Redirect(),
		Location:    gate.Location(),
	}, logger)

	store := reports.NewStore(infra.Database.Connection(), cfg.Pagination, logger)

	return &Domain{
		Config:     cfg,
		Logger:     logger,
		Database:   infra.Database,
		Metrics:    infra.Metrics,
		Gate:       gate,
		Locker:     lock.New(lockStore, &cfg.Lock, logger),
		Cases:      casesClient,
		Documents:  documents.New(&cfg.Documents, logger),
		Graph:      graphClient,
		Notifier:   notifier,
		Recipients: delivery.NewRecipients(casesClient, cfg.Redirect()),
		Drive:      drive,
		Reports:    store,
		Publisher:  reports.NewPublisher(infra.Storage, notifier, &cfg.Report, gate.Location(), logger),
	}, nil
}

// NewDrive selects the upload target named by kind. store is required for
// the blob drive.
func NewDrive(kind string, g *graph.Client, store storage.System, logger *slog.Logger) (delivery.Drive, error) {
	switch kind {
	case delivery.DriveOneDrive:
		if g == nil {
			return nil, fmt.Errorf("%w: onedrive requires a graph client", delivery.ErrUnknownDrive)
		}
		return delivery.NewGraphDrive(g), nil
	case delivery.DriveBlob:
		if store == nil {
			return nil, fmt.Errorf("%w: blob requires storage", delivery.ErrUnknownDrive)
		}
		return delivery.NewBlobDrive(store, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", delivery.ErrUnknownDrive, kind)
	}
}

// Probe is the result of one connectivity check.
type Probe struct {
	Name string
	Err  error
}

// Check pings every external system in order and returns one result each.
func (d *Domain) Check(ctx context.Context) []Probe {
	checks := append([]namedPing{
		{"cases", d.Cases.Ping},
		{"documents", d.Documents.Ping},
	}, d.extraPings()...)

	results := make([]Probe, 0, len(checks))
	for _, c := range checks {
		results = append(results, Probe{Name: c.name, Err: c.ping(ctx)})
	}
	return results
}

type namedPing struct {
	name string
	ping func(context.Context) error
}

// extraPings lists the checks beyond the case and document systems.
func (d *Domain) extraPings() []namedPing {
	var pings []namedPing
	if d.Database != nil {
		pings = append(pings, namedPing{"database", d.Database.Ping})
	}
	if d.Graph != nil {
		pings = append(pings, namedPing{"graph", d.Graph.Ping})
	}
	return pings
}
