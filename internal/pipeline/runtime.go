// Package pipeline drives a batch of copy-request cases through rule
// checks, document retrieval, filtering, assembly, delivery and write-back.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/documents"
	"github.com/JaimeStill/expedite/internal/lock"
	"github.com/JaimeStill/expedite/internal/notify"
	"github.com/JaimeStill/expedite/internal/reports"
	"github.com/JaimeStill/expedite/pkg/rules"
)

// Gate decides whether work may run at a given instant. *schedule.Gate
// satisfies it.
type Gate interface {
	IsOpen(now time.Time) bool
}

// Notifier sends requester and operational mail. *notify.Notifier satisfies it.
type Notifier interface {
	Deliver(ctx context.Context, d notify.Delivery) (string, error)
	RunStarted(ctx context.Context, variant, runID string, candidates int) error
	ConnectionError(ctx context.Context, variant string, cause error) error
	NonCritical(ctx context.Context, variant string, c cases.Case, observation string) error
	NoAttachments(ctx context.Context, variant string, c cases.Case) error
	CaseError(ctx context.Context, variant string, c cases.Case, to, observation string) error
	UpdateFailed(ctx context.Context, variant string, c cases.Case, cause error) error
	LockBusy(ctx context.Context, variant string, cause error) error
}

// History persists each case outcome as soon as it is decided.
// reports.Store satisfies it.
type History interface {
	Record(ctx context.Context, run reports.Run, e reports.Entry, finishedAt time.Time) error
}

// Recipients resolves a case's delivery address. *delivery.Recipients
// satisfies it.
type Recipients interface {
	Resolve(ctx context.Context, c cases.Case) (string, error)
}

// Publisher distributes a finished report. *reports.Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, r *reports.Report, botCode string) error
}

// Metrics observes run outcomes. *metrics.Recorder satisfies it.
type Metrics interface {
	CaseOutcome(variant, outcome string)
	ShareTier(variant, tier string)
	RunFinished(variant, status string, d time.Duration, at time.Time)
	Push(ctx context.Context, variant string) error
}

// Probe is a named pre-batch connectivity check.
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

// Runtime carries everything one pipeline variant needs. It is built once
// by the composition root and passed explicitly to the Runner and
// Processor.
type Runtime struct {
	Variant    string
	BotCode    string
	Production bool
	Tags       cases.Tags
	WorkDir    string

	// CallTimeout bounds each single external call.
	CallTimeout time.Duration
	// DeliveryTimeout bounds one Strategy.Deliver call.
	DeliveryTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time

	Gate       Gate
	Filter     *rules.Filter
	Locker     *lock.Locker
	Cases      cases.Client
	Documents  documents.System
	Assembler  assembly.Assembler
	Strategy   delivery.Strategy
	Notifier   Notifier
	Recipients Recipients
	History    History
	Publisher  Publisher
	Metrics    Metrics

	// Probes run alongside the case and document system pings.
	Probes []Probe
}

func (rt *Runtime) now() time.Time {
	if rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

func (rt *Runtime) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, rt.CallTimeout)
}

func (rt *Runtime) deliveryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.DeliveryTimeout <= 0 {
		return rt.call(ctx)
	}
	return context.WithTimeout(ctx, rt.DeliveryTimeout)
}
