package service

import (
	"context"
	"errors"
	"fmt"

	"treasury/internal/vault/models"
	"treasury/internal/vault/spending"
	"treasury/internal/vault/store"
	"treasury/internal/vault/timelock"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
	"treasury/pkg/platform/sentinel"
)

// TransferRequest carries the proposal fields chosen by the proposer.
type TransferRequest struct {
	Recipient models.Identity
	Token     models.Identity
	Amount    models.Amount
	Memo      string
}

func (r TransferRequest) validate(cfg *models.Config) error {
	if err := r.Amount.ValidateTransferable(); err != nil {
		return err
	}
	if r.Recipient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if r.Token.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "token is required")
	}
	return checkSpendingLimit(cfg, r.Amount)
}

func checkSpendingLimit(cfg *models.Config, amount models.Amount) error {
	if amount.Exceeds(cfg.SpendingLimit) {
		return dErrors.New(dErrors.CodeSpendingLimitExceeded,
			fmt.Sprintf("amount %s exceeds spending limit %s", amount, cfg.SpendingLimit))
	}
	return nil
}

func loadProposal(ctx context.Context, tx *txState, id uint64) (*models.Proposal, error) {
	p, err := tx.state.Proposal(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeProposalNotFound, fmt.Sprintf("proposal %d not found", id))
	}
	if err != nil {
		return nil, internal(err, "failed to load proposal")
	}
	return p, nil
}

// expire materializes the Expired transition and fails the invocation with
// ProposalExpired while still committing the transition.
func expire(ctx context.Context, tx *txState, caller models.Identity, p *models.Proposal) error {
	p.Status = models.StatusExpired
	if err := tx.state.PutProposal(ctx, p); err != nil {
		return internal(err, "failed to save proposal")
	}
	tx.record(audit.EventProposalExpired, caller, store.ProposalKey(p.ID),
		"proposal_id", p.ID,
		"expires_at", uint64(p.ExpiresAt),
		"observed_at", uint64(tx.now),
	)
	return failAfterCommit(dErrors.New(dErrors.CodeProposalExpired,
		fmt.Sprintf("proposal %d expired at tick %d", p.ID, p.ExpiresAt)))
}

// ProposeTransfer opens a Pending proposal and returns its id.
func (s *Service) ProposeTransfer(ctx context.Context, caller models.Identity, req TransferRequest) (uint64, error) {
	var id uint64
	err := s.runInTx(ctx, "propose_transfer", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleTreasurer)
		if err != nil {
			return err
		}
		if err := req.validate(cfg); err != nil {
			return err
		}
		next, err := tx.state.NextProposalID(ctx)
		if errors.Is(err, store.ErrIDCollision) {
			return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "proposal id already in use")
		}
		if err != nil {
			return internal(err, "failed to allocate proposal id")
		}
		p := &models.Proposal{
			ID:        next,
			Proposer:  caller,
			Recipient: req.Recipient,
			Token:     req.Token,
			Amount:    req.Amount,
			Memo:      req.Memo,
			Approvals: []models.Identity{},
			Status:    models.StatusPending,
			CreatedAt: tx.now,
			ExpiresAt: tx.now + s.proposalLifetime,
		}
		if err := tx.state.PutProposal(ctx, p); err != nil {
			return internal(err, "failed to save proposal")
		}
		tx.record(audit.EventProposalCreated, caller, store.ProposalKey(p.ID),
			"proposal_id", p.ID,
			"recipient", p.Recipient.String(),
			"token", p.Token.String(),
			"amount", p.Amount,
		)
		id = next
		return nil
	})
	if err == nil {
		s.metrics.IncrementProposalsCreated()
	}
	return id, err
}

// ApproveProposal adds caller's approval. Reaching threshold moves the
// proposal to Approved and fixes its unlock tick.
func (s *Service) ApproveProposal(ctx context.Context, caller models.Identity, id uint64) (*models.Proposal, error) {
	var out *models.Proposal
	err := s.runInTx(ctx, "approve_proposal", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleTreasurer)
		if err != nil {
			return err
		}
		if !cfg.IsSigner(caller) {
			return dErrors.New(dErrors.CodeNotASigner, "caller is not a signer")
		}
		p, err := loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.IsExpiredAt(tx.now) {
			return expire(ctx, tx, caller, p)
		}
		if p.HasApproved(caller) {
			return dErrors.New(dErrors.CodeAlreadyApproved, "caller already approved this proposal")
		}
		if p.Status != models.StatusPending {
			return dErrors.New(dErrors.CodeInvalidState, "proposal is "+p.Status.String())
		}
		p.AddApproval(caller)
		if p.ApprovalCount() >= int(cfg.Threshold) {
			p.Status = models.StatusApproved
			p.UnlockLedger = timelock.ComputeUnlock(cfg, p.Amount, tx.now)
		}
		if err := tx.state.PutProposal(ctx, p); err != nil {
			return internal(err, "failed to save proposal")
		}
		tx.record(audit.EventProposalApproved, caller, store.ProposalKey(p.ID),
			"proposal_id", p.ID,
			"approvals", p.ApprovalCount(),
			"threshold", cfg.Threshold,
			"status", p.Status.String(),
			"unlock_ledger", uint64(p.UnlockLedger),
		)
		out = p.Clone()
		return nil
	})
	if err == nil && out.Status == models.StatusApproved {
		s.metrics.IncrementTransition(models.StatusApproved.String())
	}
	if dErrors.HasCode(err, dErrors.CodeProposalExpired) {
		s.metrics.IncrementTransition(models.StatusExpired.String())
	}
	return out, err
}

// RejectProposal closes a Pending or Approved proposal. Admins may reject
// either; the proposer may withdraw their own proposal while it is Pending.
func (s *Service) RejectProposal(ctx context.Context, caller models.Identity, id uint64) error {
	err := s.runInTx(ctx, "reject_proposal", func(ctx context.Context, tx *txState) error {
		if err := s.guard.Confirm(ctx, caller); err != nil {
			return err
		}
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		p, err := loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		role, err := tx.state.Role(ctx, caller)
		if err != nil {
			return internal(err, "failed to load role")
		}
		withdrawing := p.Proposer == caller && p.Status == models.StatusPending
		if !role.AtLeast(models.RoleAdmin) && !withdrawing {
			return dErrors.New(dErrors.CodeInsufficientRole,
				"admin role required unless withdrawing own pending proposal")
		}
		if !p.Status.IsOpen() {
			return dErrors.New(dErrors.CodeInvalidState, "proposal is "+p.Status.String())
		}
		previous := p.Status
		p.Status = models.StatusRejected
		if err := tx.state.PutProposal(ctx, p); err != nil {
			return internal(err, "failed to save proposal")
		}
		tx.record(audit.EventProposalRejected, caller, store.ProposalKey(p.ID),
			"proposal_id", p.ID,
			"previous_status", previous.String(),
		)
		return nil
	})
	if err == nil {
		s.metrics.IncrementTransition(models.StatusRejected.String())
	}
	return err
}

// ExecuteProposal disburses an Approved, unlocked proposal. The transfer runs
// before any state is written; status and spending totals commit only after
// it succeeds.
func (s *Service) ExecuteProposal(ctx context.Context, caller models.Identity, id uint64) (*models.Proposal, error) {
	var out *models.Proposal
	err := s.runInTx(ctx, "execute_proposal", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleTreasurer)
		if err != nil {
			return err
		}
		p, err := loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.StatusPending:
			return dErrors.New(dErrors.CodeThresholdNotMet,
				fmt.Sprintf("proposal has %d of %d approvals", p.ApprovalCount(), cfg.Threshold))
		case models.StatusApproved:
		default:
			return dErrors.New(dErrors.CodeInvalidState, "proposal is "+p.Status.String())
		}
		if p.IsExpiredAt(tx.now) {
			return expire(ctx, tx, caller, p)
		}
		if !timelock.IsUnlocked(p.UnlockLedger, tx.now) {
			return dErrors.New(dErrors.CodeTimelockNotExpired,
				fmt.Sprintf("proposal unlocks at tick %d", p.UnlockLedger))
		}
		if err := checkSpendingLimit(cfg, p.Amount); err != nil {
			return err
		}
		window, err := tx.state.SpendingWindow(ctx)
		if err != nil {
			return internal(err, "failed to load spending window")
		}
		reserved, err := spending.Check(window, cfg, p.Amount, tx.now)
		if err != nil {
			return err
		}

		if err := s.settle(ctx, tx, models.Transfer{
			Token:     p.Token,
			Recipient: p.Recipient,
			Amount:    p.Amount,
			Reference: store.ProposalKey(p.ID),
		}); err != nil {
			return err
		}

		p.Status = models.StatusExecuted
		if err := tx.state.PutSpendingWindow(ctx, reserved); err != nil {
			return internal(err, "failed to save spending window")
		}
		if err := tx.state.PutProposal(ctx, p); err != nil {
			return internal(err, "failed to save proposal")
		}
		tx.record(audit.EventProposalExecuted, caller, store.ProposalKey(p.ID),
			"proposal_id", p.ID,
			"recipient", p.Recipient.String(),
			"token", p.Token.String(),
			"amount", p.Amount,
			"day_total", reserved.DayTotal,
			"week_total", reserved.WeekTotal,
		)
		out = p.Clone()
		return nil
	})
	switch {
	case err == nil:
		s.metrics.IncrementTransition(models.StatusExecuted.String())
		s.metrics.AddDisbursed(out.Token.String(), "proposal", out.Amount.InexactFloat64())
	case dErrors.HasCode(err, dErrors.CodeProposalExpired):
		s.metrics.IncrementTransition(models.StatusExpired.String())
	}
	return out, err
}

// GetProposal returns a snapshot of proposal id. Expiry is not materialized
// here, so an open status may be stale.
func (s *Service) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	var out *models.Proposal
	err := s.runInTx(ctx, "get_proposal", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		p, err := loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// ListProposals returns every proposal in id order.
func (s *Service) ListProposals(ctx context.Context) ([]*models.Proposal, error) {
	var out []*models.Proposal
	err := s.runInTx(ctx, "list_proposals", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		proposals, err := tx.state.Proposals(ctx)
		if err != nil {
			return internal(err, "failed to list proposals")
		}
		out = proposals
		return nil
	})
	return out, err
}
