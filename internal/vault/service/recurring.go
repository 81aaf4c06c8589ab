package service

import (
	"context"
	"errors"
	"fmt"

	"treasury/internal/vault/models"
	"treasury/internal/vault/spending"
	"treasury/internal/vault/store"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
	"treasury/pkg/platform/sentinel"
)

// ScheduleRequest describes a standing payment.
type ScheduleRequest struct {
	Recipient models.Identity
	Token     models.Identity
	Amount    models.Amount
	Memo      string
	Interval  models.Tick
}

// PaymentFailure is one schedule that could not be paid this round.
type PaymentFailure struct {
	ID      uint64 `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProcessReport summarizes one ProcessDuePayments run.
type ProcessReport struct {
	Tick   models.Tick      `json:"tick"`
	Paid   []uint64         `json:"paid"`
	Failed []PaymentFailure `json:"failed"`
}

func loadRecurring(ctx context.Context, tx *txState, id uint64) (*models.RecurringPayment, error) {
	r, err := tx.state.Recurring(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeRecurringNotFound, fmt.Sprintf("recurring payment %d not found", id))
	}
	if err != nil {
		return nil, internal(err, "failed to load recurring payment")
	}
	return r, nil
}

// SchedulePayment creates an active schedule first due at now+interval.
// Admin only, since paying it needs no further approvals.
func (s *Service) SchedulePayment(ctx context.Context, caller models.Identity, req ScheduleRequest) (uint64, error) {
	var id uint64
	err := s.runInTx(ctx, "schedule_payment", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin)
		if err != nil {
			return err
		}
		if err := req.Amount.ValidateTransferable(); err != nil {
			return err
		}
		if req.Interval == 0 {
			return dErrors.New(dErrors.CodeInvalidInterval, "interval must be greater than zero")
		}
		if req.Recipient.IsZero() || req.Token.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "recipient and token are required")
		}
		if err := checkSpendingLimit(cfg, req.Amount); err != nil {
			return err
		}
		next, err := tx.state.NextRecurringID(ctx)
		if errors.Is(err, store.ErrIDCollision) {
			return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "recurring id already in use")
		}
		if err != nil {
			return internal(err, "failed to allocate recurring id")
		}
		r := &models.RecurringPayment{
			ID:                next,
			Proposer:          caller,
			Recipient:         req.Recipient,
			Token:             req.Token,
			Amount:            req.Amount,
			Memo:              req.Memo,
			Interval:          req.Interval,
			NextPaymentLedger: tx.now + req.Interval,
			IsActive:          true,
		}
		if err := tx.state.PutRecurring(ctx, r); err != nil {
			return internal(err, "failed to save recurring payment")
		}
		tx.record(audit.EventRecurringScheduled, caller, store.RecurringKey(r.ID),
			"recurring_id", r.ID,
			"recipient", r.Recipient.String(),
			"token", r.Token.String(),
			"amount", r.Amount,
			"interval", uint64(r.Interval),
		)
		id = next
		return nil
	})
	return id, err
}

// ProcessDuePayments pays every active schedule due at the current tick.
// Each schedule is its own invocation in id order; one failure never blocks
// the others and leaves that schedule due for the next run. A schedule that
// fell several intervals behind is paid once per run.
func (s *Service) ProcessDuePayments(ctx context.Context) (*ProcessReport, error) {
	report := &ProcessReport{Paid: []uint64{}, Failed: []PaymentFailure{}}
	var due []uint64
	err := s.runInTx(ctx, "list_due_payments", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		schedules, err := tx.state.RecurringPayments(ctx)
		if err != nil {
			return internal(err, "failed to list recurring payments")
		}
		report.Tick = tx.now
		for _, r := range schedules {
			if r.IsDueAt(tx.now) {
				due = append(due, r.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range due {
		paid, err := s.payRecurring(ctx, id)
		switch {
		case err != nil:
			s.metrics.IncrementRecurring("failed")
			message := err.Error()
			if de, ok := dErrors.As(err); ok {
				message = de.Message
			}
			report.Failed = append(report.Failed, PaymentFailure{
				ID:      id,
				Code:    string(dErrors.CodeOf(err)),
				Message: message,
			})
		case paid:
			s.metrics.IncrementRecurring("paid")
			report.Paid = append(report.Paid, id)
		}
	}
	return report, nil
}

// payRecurring settles one due schedule. It returns false without error when
// the schedule stopped being due since it was listed.
func (s *Service) payRecurring(ctx context.Context, id uint64) (bool, error) {
	var (
		paid   bool
		amount models.Amount
		token  models.Identity
	)
	err := s.runInTx(ctx, "process_recurring", func(ctx context.Context, tx *txState) error {
		cfg, err := requireInitialized(ctx, tx)
		if err != nil {
			return err
		}
		r, err := loadRecurring(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.IsDueAt(tx.now) {
			return nil
		}
		window, err := tx.state.SpendingWindow(ctx)
		if err != nil {
			return internal(err, "failed to load spending window")
		}
		reserved, err := spending.Check(window, cfg, r.Amount, tx.now)
		if err != nil {
			return err
		}
		reference := fmt.Sprintf("%s:%d", store.RecurringKey(r.ID), r.PaymentCount+1)
		if err := s.settle(ctx, tx, models.Transfer{
			Token:     r.Token,
			Recipient: r.Recipient,
			Amount:    r.Amount,
			Reference: reference,
		}); err != nil {
			return err
		}

		r.Advance()
		if err := tx.state.PutSpendingWindow(ctx, reserved); err != nil {
			return internal(err, "failed to save spending window")
		}
		if err := tx.state.PutRecurring(ctx, r); err != nil {
			return internal(err, "failed to save recurring payment")
		}
		tx.record(audit.EventRecurringPaid, r.Proposer, store.RecurringKey(r.ID),
			"recurring_id", r.ID,
			"payment_count", r.PaymentCount,
			"next_payment_ledger", uint64(r.NextPaymentLedger),
			"amount", r.Amount,
			"reference", reference,
		)
		paid, amount, token = true, r.Amount, r.Token
		return nil
	})
	if err == nil && paid {
		s.metrics.AddDisbursed(token.String(), "recurring", amount.InexactFloat64())
	}
	return paid, err
}

// PausePayment stops a schedule from being paid. Admin only.
func (s *Service) PausePayment(ctx context.Context, caller models.Identity, id uint64) error {
	return s.setRecurringActive(ctx, "pause_payment", caller, id, false)
}

// ResumePayment reactivates a paused schedule without touching its next
// due tick. Admin only.
func (s *Service) ResumePayment(ctx context.Context, caller models.Identity, id uint64) error {
	return s.setRecurringActive(ctx, "resume_payment", caller, id, true)
}

func (s *Service) setRecurringActive(ctx context.Context, op string, caller models.Identity, id uint64, active bool) error {
	return s.runInTx(ctx, op, func(ctx context.Context, tx *txState) error {
		if _, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin); err != nil {
			return err
		}
		r, err := loadRecurring(ctx, tx, id)
		if err != nil {
			return err
		}
		r.IsActive = active
		if err := tx.state.PutRecurring(ctx, r); err != nil {
			return internal(err, "failed to save recurring payment")
		}
		event := audit.EventRecurringPaused
		if active {
			event = audit.EventRecurringResumed
		}
		tx.record(event, caller, store.RecurringKey(r.ID),
			"recurring_id", r.ID,
			"next_payment_ledger", uint64(r.NextPaymentLedger),
		)
		return nil
	})
}

// GetRecurring returns schedule id.
func (s *Service) GetRecurring(ctx context.Context, id uint64) (*models.RecurringPayment, error) {
	var out *models.RecurringPayment
	err := s.runInTx(ctx, "get_recurring", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		r, err := loadRecurring(ctx, tx, id)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// ListRecurring returns every schedule in id order.
func (s *Service) ListRecurring(ctx context.Context) ([]*models.RecurringPayment, error) {
	var out []*models.RecurringPayment
	err := s.runInTx(ctx, "list_recurring", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		schedules, err := tx.state.RecurringPayments(ctx)
		if err != nil {
			return internal(err, "failed to list recurring payments")
		}
		out = schedules
		return nil
	})
	return out, err
}

// GetSpending reports rolling totals and remaining capacity at the current tick.
func (s *Service) GetSpending(ctx context.Context) (*models.SpendingSummary, error) {
	var out models.SpendingSummary
	err := s.runInTx(ctx, "get_spending", func(ctx context.Context, tx *txState) error {
		cfg, err := requireInitialized(ctx, tx)
		if err != nil {
			return err
		}
		window, err := tx.state.SpendingWindow(ctx)
		if err != nil {
			return internal(err, "failed to load spending window")
		}
		out = spending.Summarize(window, cfg, tx.now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
