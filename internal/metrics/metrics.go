// Package metrics exposes batch run metrics and pushes them to a
// Prometheus Pushgateway at the end of each run.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the pipeline metrics on a private registry.
type Recorder struct {
	CasesTotal     *prometheus.CounterVec
	ShareTierTotal *prometheus.CounterVec
	RunDuration    *prometheus.GaugeVec
	LastRun        *prometheus.GaugeVec

	registry *prometheus.Registry
	cfg      *Config
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Recorder with its own registry.
func New(cfg *Config, logger *slog.Logger) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		CasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expedite_cases_total",
				Help: "Cases reaching a terminal outcome",
			},
			[]string{"variant", "outcome"},
		),
		ShareTierTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expedite_share_tier_total",
				Help: "Deliveries shared per fallback tier",
			},
			[]string{"variant", "tier"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "expedite_run_duration_seconds",
				Help: "Duration of the last batch run",
			},
			[]string{"variant"},
		),
		LastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "expedite_last_run_timestamp_seconds",
				Help: "Unix time the last batch run finished",
			},
			[]string{"variant", "status"},
		),
		registry: reg,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.TimeoutDuration()},
		logger:   logger.With("system", "metrics"),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// CaseOutcome counts one case outcome.
func (r *Recorder) CaseOutcome(variant, outcome string) {
	r.CasesTotal.WithLabelValues(variant, outcome).Inc()
}

// ShareTier counts one delivery shared through tier.
func (r *Recorder) ShareTier(variant, tier string) {
	r.ShareTierTotal.WithLabelValues(variant, tier).Inc()
}

// RunFinished records the run duration and completion time.
func (r *Recorder) RunFinished(variant, status string, d time.Duration, at time.Time) {
	r.RunDuration.WithLabelValues(variant).Set(d.Seconds())
	r.LastRun.WithLabelValues(variant, status).Set(float64(at.Unix()))
}

// Push sends the registry to the configured Pushgateway grouped by variant.
// It is a no-op when no gateway is configured.
func (r *Recorder) Push(ctx context.Context, variant string) error {
	if r.cfg.PushgatewayURL == "" {
		return nil
	}

	err := push.New(r.cfg.PushgatewayURL, r.cfg.Job).
		Gatherer(r.registry).
		Grouping("variant", variant).
		Client(r.client).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}

	r.logger.DebugContext(ctx, "metrics pushed", "gateway", r.cfg.PushgatewayURL, "variant", variant)
	return nil
}
