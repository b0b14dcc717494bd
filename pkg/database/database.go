// Package database opens the PostgreSQL pool used for run locks and report
// history.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/expedite/pkg/lifecycle"
)

// ErrNotReady wraps any failure to reach the database.
var ErrNotReady = errors.New("database not ready")

// System owns the connection pool.
type System interface {
	Connection() *sql.DB
	// Ping checks connectivity, bounded by the configured connect timeout.
	Ping(ctx context.Context) error
	// Start registers a connectivity check and a pool close.
	Start(lc *lifecycle.Coordinator) error
}

type pool struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

// New opens a pgx-backed pool from cfg. Connections are made lazily.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	cc, err := cfg.ConnConfig()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &pool{
		db:      db,
		timeout: cfg.ConnTimeoutDuration(),
		logger:  logger.With("system", "database", "host", cc.Host, "database", cc.Database),
	}, nil
}

func (p *pool) Connection() *sql.DB {
	return p.db
}

func (p *pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (p *pool) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return err
		}
		p.logger.Info("database connection established")
		return nil
	})

	lc.OnShutdown("database", func(context.Context) error {
		stats := p.db.Stats()
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		p.logger.Debug("database connection closed", "opened", stats.OpenConnections, "waits", stats.WaitCount)
		return nil
	})

	return nil
}
