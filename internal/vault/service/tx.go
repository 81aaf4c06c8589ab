package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"treasury/internal/vault/models"
	"treasury/internal/vault/store"
	"treasury/pkg/attrs"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
	"treasury/pkg/requestcontext"
)

// defaultTxTimeout is the maximum duration of one invocation.
const defaultTxTimeout = 5 * time.Second

// txState is the view an invocation works on: typed state over a staging
// overlay, the tick the invocation runs at, the audit events to publish once
// it commits and the references of transfers it settled.
type txState struct {
	state   *store.State
	stage   *store.Staging
	now     models.Tick
	events  []pendingEvent
	settled []string
}

type pendingEvent struct {
	action  audit.AuditEvent
	actor   models.Identity
	subject string
	attrs   []any
}

func (tx *txState) record(action audit.AuditEvent, actor models.Identity, subject string, kv ...any) {
	tx.events = append(tx.events, pendingEvent{action: action, actor: actor, subject: subject, attrs: kv})
}

// commitAndFail marks a failure whose staged writes must still commit. Only
// the lazy Expired transition uses it.
type commitAndFail struct {
	err error
}

func (c *commitAndFail) Error() string { return c.err.Error() }

func (c *commitAndFail) Unwrap() error { return c.err }

func failAfterCommit(err error) error {
	return &commitAndFail{err: err}
}

// runInTx executes fn as one serialized invocation. Staged writes commit only
// when fn returns nil or a commitAndFail; audit events publish after commit.
func (s *Service) runInTx(ctx context.Context, op string, fn func(ctx context.Context, tx *txState) error) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "vault."+op)
	defer func() {
		code := "ok"
		if err != nil {
			code = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
		}
		span.End()
		s.metrics.ObserveInvocation(op, code, start)
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "invocation aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check again after acquiring the lock.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "invocation aborted: context cancelled")
	}

	stage := store.NewStaging(s.kv)
	tx := &txState{state: store.NewState(stage), stage: stage, now: s.clock.Now(ctx)}
	span.SetAttributes(
		attribute.String("vault.operation", op),
		attribute.Int64("vault.tick", int64(tx.now)),
	)

	fnErr := fn(ctx, tx)
	var deferred *commitAndFail
	if fnErr != nil && !errors.As(fnErr, &deferred) {
		stage.Discard()
		s.logUnrecorded(ctx, op, tx.settled, fnErr)
		s.logFailure(ctx, op, fnErr)
		return fnErr
	}

	if commitErr := stage.Commit(ctx); commitErr != nil {
		s.logUnrecorded(ctx, op, tx.settled, commitErr)
		if store.IsConflict(commitErr) {
			s.logger.WarnContext(ctx, "vault state changed during invocation",
				"operation", op,
				"request_id", requestcontext.RequestID(ctx),
				"error", commitErr,
			)
			return dErrors.Wrap(commitErr, dErrors.CodeConflict, "vault state changed concurrently, retry the request")
		}
		s.logger.ErrorContext(ctx, "failed to commit vault state",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", commitErr,
		)
		return dErrors.Wrap(commitErr, dErrors.CodeInternal, "failed to commit vault state")
	}
	s.publish(ctx, tx.events)

	if deferred != nil {
		s.logFailure(ctx, op, deferred.err)
		return deferred.err
	}
	return nil
}

// logUnrecorded reports transfers that settled in an invocation whose state
// did not commit. Settlement is idempotent on the reference, so retrying the
// invocation records them without paying again.
func (s *Service) logUnrecorded(ctx context.Context, op string, references []string, err error) {
	if len(references) == 0 {
		return
	}
	s.logger.ErrorContext(ctx, "transfer settled but vault state was not committed",
		"operation", op,
		"references", references,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func (s *Service) logFailure(ctx context.Context, op string, err error) {
	code := dErrors.CodeOf(err)
	args := []any{
		"operation", op,
		"code", string(code),
		"request_id", requestcontext.RequestID(ctx),
		"caller", requestcontext.Caller(ctx),
		"error", err,
	}
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		s.logger.ErrorContext(ctx, "vault invocation failed", args...)
		return
	}
	s.logger.WarnContext(ctx, "vault invocation rejected", args...)
}

// publish logs and emits the committed invocation's audit events.
func (s *Service) publish(ctx context.Context, events []pendingEvent) {
	requestID := requestcontext.RequestID(ctx)
	for _, ev := range events {
		args := append([]any{
			"event", string(ev.action),
			"log_type", "audit",
			"request_id", requestID,
			"actor", ev.actor.String(),
			"subject", ev.subject,
		}, ev.attrs...)
		s.logger.InfoContext(ctx, string(ev.action), args...)

		if s.auditPublisher == nil {
			continue
		}
		err := s.auditPublisher.Emit(ctx, audit.Event{
			Timestamp:  requestcontext.Now(ctx),
			Actor:      ev.actor.String(),
			Subject:    ev.subject,
			Action:     string(ev.action),
			Decision:   "committed",
			RequestID:  requestID,
			Attributes: attrs.ToStringMap(ev.attrs),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event",
				"event", string(ev.action),
				"subject", ev.subject,
				"error", err,
			)
		}
	}
}
