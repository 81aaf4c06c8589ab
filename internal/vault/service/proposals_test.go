package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"treasury/internal/vault/models"
	"treasury/internal/vault/ports/mocks"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
)

func (s *ServiceSuite) propose(caller models.Identity, amount int64) uint64 {
	s.T().Helper()
	id, err := s.service.ProposeTransfer(s.ctx, caller, TransferRequest{
		Recipient: recipient,
		Token:     usdc,
		Amount:    models.NewAmount(amount),
		Memo:      "payroll",
	})
	s.Require().NoError(err)
	return id
}

// approved proposes amount and collects both signer approvals.
func (s *ServiceSuite) approved(amount int64) uint64 {
	s.T().Helper()
	id := s.propose(signer1, amount)
	_, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	p, err := s.service.ApproveProposal(s.ctx, signer2, id)
	s.Require().NoError(err)
	s.Require().Equal(models.StatusApproved, p.Status)
	return id
}

func (s *ServiceSuite) status(id uint64) models.ProposalStatus {
	s.T().Helper()
	p, err := s.service.GetProposal(s.ctx, id)
	s.Require().NoError(err)
	return p.Status
}

// ===== Scenarios =====

func (s *ServiceSuite) TestScenarioTwoOfThreeApproval() {
	s.initVault(nil)

	id := s.propose(signer1, 100)
	s.Equal(uint64(1), id)
	s.Equal(models.StatusPending, s.status(id))

	p, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, p.Status)
	s.Equal(1, p.ApprovalCount())

	p, err = s.service.ApproveProposal(s.ctx, signer2, id)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, p.Status)
	s.Equal(models.Tick(0), p.UnlockLedger)
	s.Equal([]models.Identity{signer1, signer2}, p.Approvals)
}

func (s *ServiceSuite) TestScenarioMemberCannotPropose() {
	s.initVault(nil)

	_, err := s.service.ProposeTransfer(s.ctx, member, TransferRequest{
		Recipient: recipient, Token: usdc, Amount: models.NewAmount(100),
	})
	s.requireCode(err, dErrors.CodeInsufficientRole)

	proposals, err := s.service.ListProposals(s.ctx)
	s.Require().NoError(err)
	s.Empty(proposals)
}

func (s *ServiceSuite) TestScenarioTimelock() {
	s.initVault(func(c *models.Config) { c.Threshold = 1 })

	id := s.propose(signer1, 600)
	p, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, p.Status)
	s.Equal(models.Tick(300), p.UnlockLedger)

	_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeTimelockNotExpired)
	s.Equal(models.StatusApproved, s.status(id))

	s.clock.Set(301)
	p, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	s.Equal(models.StatusExecuted, p.Status)
	s.True(s.balance(usdc, recipient).Equal(models.NewAmount(600)))
}

func (s *ServiceSuite) TestTimelockBoundary() {
	s.initVault(func(c *models.Config) { c.Threshold = 1 })

	id := s.propose(signer1, 600)
	_, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)

	s.clock.Set(299)
	_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeTimelockNotExpired)

	s.clock.Set(300)
	_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.NoError(err)
}

func (s *ServiceSuite) TestUnlockNotRecomputedAfterConfigChange() {
	s.initVault(func(c *models.Config) { c.Threshold = 1 })

	id := s.propose(signer1, 600)
	_, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)

	cfg := defaultConfig()
	cfg.Threshold = 1
	cfg.TimelockDelay = 10_000
	s.Require().NoError(s.service.UpdateConfig(s.ctx, admin, cfg))

	p, err := s.service.GetProposal(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.Tick(300), p.UnlockLedger)
}

// ===== Propose =====

func (s *ServiceSuite) TestProposeValidation() {
	s.initVault(nil)

	cases := []struct {
		name   string
		amount models.Amount
		code   dErrors.Code
	}{
		{"zero amount", models.NewAmount(0), dErrors.CodeInvalidAmount},
		{"negative amount", models.NewAmount(-5), dErrors.CodeInvalidAmount},
		{"above spending limit", models.NewAmount(1001), dErrors.CodeSpendingLimitExceeded},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.ProposeTransfer(s.ctx, signer1, TransferRequest{
				Recipient: recipient, Token: usdc, Amount: tc.amount,
			})
			s.requireCode(err, tc.code)
		})
	}

	s.Run("missing recipient", func() {
		_, err := s.service.ProposeTransfer(s.ctx, signer1, TransferRequest{Token: usdc, Amount: models.NewAmount(1)})
		s.requireCode(err, dErrors.CodeInvalidInput)
	})

	s.Run("no proposal created and ids stay dense", func() {
		proposals, err := s.service.ListProposals(s.ctx)
		s.Require().NoError(err)
		s.Empty(proposals)
		s.Equal(uint64(1), s.propose(signer1, 1000))
		s.Equal(uint64(2), s.propose(admin, 1))
	})
}

func (s *ServiceSuite) TestProposeSetsLifetime() {
	s.initVault(nil)
	id := s.propose(signer1, 10)

	p, err := s.service.GetProposal(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(startTick, p.CreatedAt)
	s.Equal(startTick+models.DefaultProposalLifetime, p.ExpiresAt)
	s.Equal(signer1, p.Proposer)
	s.Empty(p.Approvals)
	s.Equal([]string{string(audit.EventProposalCreated)}, s.actions())
}

// ===== Approve =====

func (s *ServiceSuite) TestApproveRules() {
	s.initVault(nil)
	id := s.propose(signer1, 100)

	s.Run("treasurer outside signer set", func() {
		_, err := s.service.ApproveProposal(s.ctx, treasurer, id)
		s.requireCode(err, dErrors.CodeNotASigner)
	})

	s.Run("member", func() {
		_, err := s.service.ApproveProposal(s.ctx, member, id)
		s.requireCode(err, dErrors.CodeInsufficientRole)
	})

	s.Run("unknown proposal", func() {
		_, err := s.service.ApproveProposal(s.ctx, signer1, 99)
		s.requireCode(err, dErrors.CodeProposalNotFound)
	})

	s.Run("duplicate approval does not count twice", func() {
		_, err := s.service.ApproveProposal(s.ctx, signer1, id)
		s.Require().NoError(err)
		_, err = s.service.ApproveProposal(s.ctx, signer1, id)
		s.requireCode(err, dErrors.CodeAlreadyApproved)

		p, err := s.service.GetProposal(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(1, p.ApprovalCount())
		s.Equal(models.StatusPending, p.Status)
	})

	s.Run("approving an approved proposal", func() {
		_, err := s.service.ApproveProposal(s.ctx, signer2, id)
		s.Require().NoError(err)
		_, err = s.service.ApproveProposal(s.ctx, admin, id)
		s.requireCode(err, dErrors.CodeInvalidState)
	})
}

// ===== Expiry =====

func (s *ServiceSuite) TestExpiryIsCommittedOnApprove() {
	s.initVault(nil)
	id := s.propose(signer1, 100)

	s.clock.Set(startTick + models.DefaultProposalLifetime)
	_, err := s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err, "approval at expires_at is still in time")

	s.clock.Advance(1)
	_, err = s.service.ApproveProposal(s.ctx, signer2, id)
	s.requireCode(err, dErrors.CodeProposalExpired)

	p, err := s.service.GetProposal(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, p.Status)
	s.Equal(1, p.ApprovalCount(), "the failed approval is not recorded")
	s.Contains(s.actions(), string(audit.EventProposalExpired))

	_, err = s.service.ApproveProposal(s.ctx, signer2, id)
	s.requireCode(err, dErrors.CodeInvalidState)
}

func (s *ServiceSuite) TestExpiryIsCommittedOnExecute() {
	s.initVault(nil)
	id := s.approved(100)

	s.clock.Set(startTick + models.DefaultProposalLifetime + 1)
	_, err := s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeProposalExpired)
	s.Equal(models.StatusExpired, s.status(id))
	s.True(s.balance(usdc, recipient).IsZero())

	_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeInvalidState)
}

// ===== Reject =====

func (s *ServiceSuite) TestRejectRules() {
	s.initVault(nil)

	s.Run("proposer withdraws pending proposal", func() {
		id := s.propose(signer1, 100)
		s.Require().NoError(s.service.RejectProposal(s.ctx, signer1, id))
		s.Equal(models.StatusRejected, s.status(id))
	})

	s.Run("other treasurer cannot reject", func() {
		id := s.propose(signer1, 100)
		err := s.service.RejectProposal(s.ctx, signer2, id)
		s.requireCode(err, dErrors.CodeInsufficientRole)
		s.Equal(models.StatusPending, s.status(id))
	})

	s.Run("proposer cannot reject once approved", func() {
		id := s.approved(100)
		err := s.service.RejectProposal(s.ctx, signer1, id)
		s.requireCode(err, dErrors.CodeInsufficientRole)
		s.Equal(models.StatusApproved, s.status(id))
	})

	s.Run("admin rejects approved proposal", func() {
		id := s.approved(100)
		s.Require().NoError(s.service.RejectProposal(s.ctx, admin, id))
		s.Equal(models.StatusRejected, s.status(id))

		err := s.service.RejectProposal(s.ctx, admin, id)
		s.requireCode(err, dErrors.CodeInvalidState)

		_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
		s.requireCode(err, dErrors.CodeInvalidState)
	})

	s.Run("unknown proposal", func() {
		err := s.service.RejectProposal(s.ctx, admin, 404)
		s.requireCode(err, dErrors.CodeProposalNotFound)
	})
}

// ===== Execute =====

func (s *ServiceSuite) TestExecute() {
	s.initVault(nil)

	s.Run("pending proposal has not met threshold", func() {
		id := s.propose(signer1, 100)
		_, err := s.service.ExecuteProposal(s.ctx, signer1, id)
		s.requireCode(err, dErrors.CodeThresholdNotMet)
	})

	s.Run("member cannot execute", func() {
		id := s.approved(100)
		_, err := s.service.ExecuteProposal(s.ctx, member, id)
		s.requireCode(err, dErrors.CodeInsufficientRole)
	})

	s.Run("disburses and charges spending windows", func() {
		s.events = nil
		id := s.approved(250)
		p, err := s.service.ExecuteProposal(s.ctx, treasurer, id)
		s.Require().NoError(err)
		s.Equal(models.StatusExecuted, p.Status)
		s.True(s.balance(usdc, recipient).Equal(models.NewAmount(250)))

		summary, err := s.service.GetSpending(s.ctx)
		s.Require().NoError(err)
		s.True(summary.DayTotal.Equal(models.NewAmount(250)))
		s.True(summary.WeekTotal.Equal(models.NewAmount(250)))
		s.True(summary.DayRemaining.Equal(models.NewAmount(4750)))
		s.Equal(string(audit.EventProposalExecuted), s.actions()[len(s.actions())-1])

		_, err = s.service.ExecuteProposal(s.ctx, treasurer, id)
		s.requireCode(err, dErrors.CodeInvalidState)
	})
}

func (s *ServiceSuite) TestExecuteOverLimitIsIdempotent() {
	s.initVault(func(c *models.Config) { c.DailyLimit = models.NewAmount(150) })

	first := s.approved(100)
	_, err := s.service.ExecuteProposal(s.ctx, signer1, first)
	s.Require().NoError(err)

	second := s.approved(100)
	for range 3 {
		_, err = s.service.ExecuteProposal(s.ctx, signer1, second)
		s.requireCode(err, dErrors.CodeDailyLimitExceeded)
		s.Equal(models.StatusApproved, s.status(second))

		summary, err := s.service.GetSpending(s.ctx)
		s.Require().NoError(err)
		s.True(summary.DayTotal.Equal(models.NewAmount(100)))
	}

	s.clock.Advance(models.TicksPerDay)
	_, err = s.service.ExecuteProposal(s.ctx, signer1, second)
	s.Require().NoError(err, "window rolled forward")
}

func (s *ServiceSuite) TestExecuteWeeklyLimit() {
	s.initVault(func(c *models.Config) { c.WeeklyLimit = models.NewAmount(150) })

	first := s.approved(100)
	_, err := s.service.ExecuteProposal(s.ctx, signer1, first)
	s.Require().NoError(err)

	s.clock.Advance(models.TicksPerDay)
	second := s.approved(100)
	_, err = s.service.ExecuteProposal(s.ctx, signer1, second)
	s.requireCode(err, dErrors.CodeWeeklyLimitExceeded)
}

func (s *ServiceSuite) TestExecuteRechecksSpendingLimit() {
	s.initVault(nil)
	id := s.approved(800)

	cfg := defaultConfig()
	cfg.SpendingLimit = models.NewAmount(500)
	s.Require().NoError(s.service.UpdateConfig(s.ctx, admin, cfg))

	_, err := s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeSpendingLimitExceeded)
	s.Equal(models.StatusApproved, s.status(id))
}

func (s *ServiceSuite) TestExecuteTransferFailures() {
	s.initVault(nil)
	transferer := mocks.NewMockTransferer(s.ctrl)
	svc := s.newService(transferer)

	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"collaborator failure", errors.New("rpc unavailable"), dErrors.CodeTransferFailed},
		{"insufficient balance", dErrors.New(dErrors.CodeInsufficientBalance, "vault short"), dErrors.CodeInsufficientBalance},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			id := s.approved(100)
			s.events = nil
			transferer.EXPECT().Transfer(gomock.Any(), gomock.Any()).Return(tc.err)

			_, err := svc.ExecuteProposal(s.ctx, signer1, id)
			s.requireCode(err, tc.code)
			s.Equal(models.StatusApproved, s.status(id))
			s.Empty(s.events)

			summary, err := svc.GetSpending(s.ctx)
			s.Require().NoError(err)
			s.True(summary.DayTotal.IsZero())
		})
	}
}

func (s *ServiceSuite) TestExecuteWithRealLedgerShortfall() {
	s.initVault(nil)
	id, err := s.service.ProposeTransfer(s.ctx, signer1, TransferRequest{
		Recipient: recipient, Token: eurc, Amount: models.NewAmount(10),
	})
	s.Require().NoError(err)
	_, err = s.service.ApproveProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	_, err = s.service.ApproveProposal(s.ctx, signer2, id)
	s.Require().NoError(err)

	_, err = s.service.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeInsufficientBalance)
}

func (s *ServiceSuite) TestExecutePassesReference() {
	s.initVault(nil)
	transferer := mocks.NewMockTransferer(s.ctrl)
	svc := s.newService(transferer)
	id := s.approved(100)

	transferer.EXPECT().Transfer(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, t models.Transfer) error {
			s.Equal(usdc, t.Token)
			s.Equal(recipient, t.Recipient)
			s.True(t.Amount.Equal(models.NewAmount(100)))
			s.Equal("proposal:1", t.Reference)
			return nil
		})

	_, err := svc.ExecuteProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
}

// ===== Settlement recovery =====

func (s *ServiceSuite) TestExecuteRetryAfterFailedCommitPaysOnce() {
	s.initVault(nil)
	id := s.approved(100)

	kv := &flakyKV{KV: s.kv}
	svc, err := New(kv, s.auth, s.ledger, s.clock, WithAuditPublisher(s.auditPub))
	s.Require().NoError(err)

	kv.failNext = true
	_, err = svc.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeInternal)
	s.Equal(models.StatusApproved, s.status(id))
	s.True(s.balance(usdc, recipient).Equal(models.NewAmount(100)))

	p, err := svc.ExecuteProposal(s.ctx, signer1, id)
	s.Require().NoError(err)
	s.Equal(models.StatusExecuted, p.Status)
	s.True(s.balance(usdc, recipient).Equal(models.NewAmount(100)))

	summary, err := svc.GetSpending(s.ctx)
	s.Require().NoError(err)
	s.True(summary.DayTotal.Equal(models.NewAmount(100)))
}

func (s *ServiceSuite) TestConcurrentExecuteAcrossReplicasPaysOnce() {
	s.initVault(nil)
	id := s.approved(100)

	// Replica B executes the proposal while replica A's transfer is in flight.
	transferer := mocks.NewMockTransferer(s.ctrl)
	replicaA := s.newService(transferer)
	transferer.EXPECT().Transfer(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, t models.Transfer) error {
			p, err := s.service.ExecuteProposal(ctx, signer2, id)
			s.Require().NoError(err)
			s.Equal(models.StatusExecuted, p.Status)
			return s.ledger.Transfer(ctx, t)
		})

	_, err := replicaA.ExecuteProposal(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeConflict)

	s.Equal(models.StatusExecuted, s.status(id))
	s.True(s.balance(usdc, recipient).Equal(models.NewAmount(100)))
	summary, err := s.service.GetSpending(s.ctx)
	s.Require().NoError(err)
	s.True(summary.DayTotal.Equal(models.NewAmount(100)))
}

func (s *ServiceSuite) TestConcurrentApproveAcrossReplicasConflicts() {
	s.initVault(nil)
	id := s.propose(signer1, 100)

	replicaB, err := New(s.kv, s.auth, s.ledger, s.clock)
	s.Require().NoError(err)
	kv := &interleavedKV{KV: s.kv, before: func() {
		_, err := replicaB.ApproveProposal(s.ctx, signer2, id)
		s.Require().NoError(err)
	}}
	replicaA, err := New(kv, s.auth, s.ledger, s.clock)
	s.Require().NoError(err)

	_, err = replicaA.ApproveProposal(s.ctx, admin, id)
	s.requireCode(err, dErrors.CodeConflict)

	p, err := s.service.GetProposal(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]models.Identity{signer2}, p.Approvals)
}
