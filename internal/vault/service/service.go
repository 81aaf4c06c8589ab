// Package service implements the vault's authorization engine: role gating,
// M-of-N proposals, rolling spending limits, timelocks and recurring payments.
//
// Every exported mutating method is one invocation. Invocations are
// serialized within a process, read and write through a staging overlay, and
// commit all of their writes or none of them. A commit is refused with
// conflict when another process changed any value the invocation read.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"treasury/internal/vault/metrics"
	"treasury/internal/vault/models"
	"treasury/internal/vault/ports"
	"treasury/internal/vault/rbac"
	"treasury/internal/vault/store"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/sentinel"
)

const tracerName = "treasury/internal/vault/service"

// Service orchestrates vault invocations over a KV store.
type Service struct {
	kv       store.KV
	guard    *rbac.Guard
	transfer ports.Transferer
	clock    ports.Clock

	auditPublisher   ports.AuditPublisher
	logger           *slog.Logger
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	proposalLifetime models.Tick
	txTimeout        time.Duration

	mu sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithProposalLifetime sets how many ticks a proposal stays open.
func WithProposalLifetime(ticks models.Tick) Option {
	return func(s *Service) {
		if ticks > 0 {
			s.proposalLifetime = ticks
		}
	}
}

// WithTxTimeout bounds invocations whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// New constructs a Service. The authenticator confirms callers of every
// mutating invocation; the transferer settles disbursements.
func New(kv store.KV, auth ports.Authenticator, transfer ports.Transferer, clock ports.Clock, opts ...Option) (*Service, error) {
	if kv == nil {
		return nil, fmt.Errorf("vault store is required")
	}
	if transfer == nil {
		return nil, fmt.Errorf("transferer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	guard, err := rbac.NewGuard(auth)
	if err != nil {
		return nil, err
	}

	s := &Service{
		kv:               kv,
		guard:            guard,
		transfer:         transfer,
		clock:            clock,
		logger:           slog.New(slog.DiscardHandler),
		tracer:           otel.Tracer(tracerName),
		proposalLifetime: models.DefaultProposalLifetime,
		txTimeout:        defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// requireInitialized loads the config or fails with NotInitialized.
func requireInitialized(ctx context.Context, tx *txState) (*models.Config, error) {
	cfg, err := tx.state.Config(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotInitialized, "vault is not initialized")
	}
	if err != nil {
		return nil, internal(err, "failed to load config")
	}
	return cfg, nil
}

// authorize confirms caller, requires an initialized vault and then min role.
func (s *Service) authorize(ctx context.Context, tx *txState, caller models.Identity, min models.Role) (*models.Config, models.Role, error) {
	if err := s.guard.Confirm(ctx, caller); err != nil {
		return nil, models.RoleMember, err
	}
	cfg, err := requireInitialized(ctx, tx)
	if err != nil {
		return nil, models.RoleMember, err
	}
	role, err := s.guard.RequireRole(ctx, tx.state, caller, min)
	if err != nil {
		return nil, role, err
	}
	return cfg, role, nil
}

// internal passes coded errors through and wraps everything else.
func internal(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// settle hands t to the transferer and classifies its failure. Settled
// references are kept on tx for reconciliation logging.
func (s *Service) settle(ctx context.Context, tx *txState, t models.Transfer) error {
	err := s.transfer.Transfer(ctx, t)
	if err == nil {
		tx.settled = append(tx.settled, t.Reference)
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeInsufficientBalance) {
		return dErrors.Wrap(err, dErrors.CodeInsufficientBalance, "vault balance is insufficient")
	}
	return dErrors.Wrap(err, dErrors.CodeTransferFailed, "transfer failed")
}
