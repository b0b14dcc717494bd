// Package infrastructure assembles the process-wide systems a run needs
// before any variant is wired: logger, lifecycle, database pool, optional
// blob storage and the metrics recorder.
package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/metrics"
	"github.com/JaimeStill/expedite/pkg/database"
	"github.com/JaimeStill/expedite/pkg/lifecycle"
	"github.com/JaimeStill/expedite/pkg/storage"
)

// Infrastructure is built once per process and shared by every variant.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	// Storage is nil unless blob delivery or report archiving is enabled.
	Storage storage.System
	Metrics *metrics.Recorder

	shutdownTimeout time.Duration
}

// NewLogger builds the process logger from cfg, writing to w.
func NewLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.JSON() {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// New builds every system from cfg without contacting any of them.
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	logger := NewLogger(&cfg.Logging, os.Stderr)

	infra := &Infrastructure{
		Lifecycle:       lifecycle.New(ctx),
		Logger:          logger,
		Metrics:         metrics.New(&cfg.Metrics, logger),
		shutdownTimeout: cfg.ShutdownTimeoutDuration(),
	}

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	infra.Database = db

	if cfg.NeedsStorage() {
		if infra.Storage, err = storage.New(&cfg.Storage, logger); err != nil {
			db.Connection().Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	return infra, nil
}

// Start registers each system's hooks and runs the startup checks.
func (i *Infrastructure) Start() error {
	starters := []interface {
		Start(*lifecycle.Coordinator) error
	}{i.Database}
	if i.Storage != nil {
		starters = append(starters, i.Storage)
	}

	for _, s := range starters {
		if err := s.Start(i.Lifecycle); err != nil {
			return err
		}
	}
	return i.Lifecycle.WaitForStartup()
}

// Close runs the shutdown steps within the configured shutdown timeout.
func (i *Infrastructure) Close() error {
	return i.Lifecycle.Shutdown(i.shutdownTimeout)
}
