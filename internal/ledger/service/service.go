// Package service implements the reputation ledger state machine. Every
// operation executes as a single indivisible unit relative to all others: a
// mutex serializes the state machine, preconditions are checked before any
// write, and each operation's writes go through one compound store call.
// On any failed precondition nothing is mutated, so there is no rollback path.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"credence/internal/ledger/models"
	"credence/internal/ledger/store"
	"credence/internal/platform/metrics"
	"credence/pkg/platform/audit"
)

// AuditPublisher emits audit events for ledger state transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the ledger state machine. It owns serialization: callers may
// invoke it from any goroutine, but operations apply one at a time.
type Service struct {
	mu     sync.Mutex
	store  store.Ledger
	params models.Params

	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Tests use this to drive epoch expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates the ledger service over a store.
func New(st store.Ledger, params models.Params, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if params.InitialTrust <= 0 || params.InitialTrust > models.MaxReputation {
		return nil, fmt.Errorf("initial trust %d out of range", params.InitialTrust)
	}
	if params.PenaltyAmount <= 0 || params.RewardAmount <= 0 || params.InviteStake <= 0 {
		return nil, fmt.Errorf("reward, penalty, and stake must be positive")
	}
	if params.MinVotesToResolve <= 0 {
		return nil, fmt.Errorf("minimum votes to resolve must be positive")
	}

	svc := &Service{
		store:  st,
		params: params,
		tracer: otel.Tracer("credence/ledger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Params exposes the protocol constants for the read API.
func (s *Service) Params() models.Params {
	return s.params
}

// emit publishes an audit event; audit failures are logged, never allowed to
// fail an already-committed operation.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}

// clampReputation bounds a computed reputation into [MinReputation,
// MaxReputation]. Values outside the range indicate a programming defect;
// production clamps defensively rather than corrupting the ledger.
func clampReputation(rep int) int {
	if rep < models.MinReputation {
		return models.MinReputation
	}
	if rep > models.MaxReputation {
		return models.MaxReputation
	}
	return rep
}
