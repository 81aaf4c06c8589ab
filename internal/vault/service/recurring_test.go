package service

import (
	"treasury/internal/vault/models"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
)

func (s *ServiceSuite) schedule(token models.Identity, amount int64, interval models.Tick) uint64 {
	s.T().Helper()
	id, err := s.service.SchedulePayment(s.ctx, admin, ScheduleRequest{
		Recipient: recipient,
		Token:     token,
		Amount:    models.NewAmount(amount),
		Memo:      "retainer",
		Interval:  interval,
	})
	s.Require().NoError(err)
	return id
}

// ===== Schedule =====

func (s *ServiceSuite) TestSchedulePayment() {
	s.initVault(nil)

	s.Run("admin schedules", func() {
		id := s.schedule(usdc, 50, 10)
		r, err := s.service.GetRecurring(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(startTick+10, r.NextPaymentLedger)
		s.True(r.IsActive)
		s.Zero(r.PaymentCount)
		s.Equal(admin, r.Proposer)
	})

	s.Run("treasurer cannot schedule", func() {
		_, err := s.service.SchedulePayment(s.ctx, signer1, ScheduleRequest{
			Recipient: recipient, Token: usdc, Amount: models.NewAmount(1), Interval: 1,
		})
		s.requireCode(err, dErrors.CodeInsufficientRole)
	})

	cases := []struct {
		name     string
		amount   int64
		interval models.Tick
		code     dErrors.Code
	}{
		{"zero interval", 10, 0, dErrors.CodeInvalidInterval},
		{"zero amount", 0, 10, dErrors.CodeInvalidAmount},
		{"above spending limit", 1001, 10, dErrors.CodeSpendingLimitExceeded},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.SchedulePayment(s.ctx, admin, ScheduleRequest{
				Recipient: recipient, Token: usdc, Amount: models.NewAmount(tc.amount), Interval: tc.interval,
			})
			s.requireCode(err, tc.code)
		})
	}

	s.Run("failed schedules allocate no ids", func() {
		list, err := s.service.ListRecurring(s.ctx)
		s.Require().NoError(err)
		s.Len(list, 1)
	})

	s.Run("unknown schedule", func() {
		_, err := s.service.GetRecurring(s.ctx, 77)
		s.requireCode(err, dErrors.CodeRecurringNotFound)
		err = s.service.PausePayment(s.ctx, admin, 77)
		s.requireCode(err, dErrors.CodeRecurringNotFound)
	})
}

// ===== Process =====

func (s *ServiceSuite) TestProcessDuePayments() {
	s.initVault(nil)
	id := s.schedule(usdc, 50, 10)

	s.Run("nothing due yet", func() {
		report, err := s.service.ProcessDuePayments(s.ctx)
		s.Require().NoError(err)
		s.Empty(report.Paid)
		s.Empty(report.Failed)
	})

	s.Run("pays when due and advances", func() {
		s.clock.Set(startTick + 10)
		s.events = nil
		report, err := s.service.ProcessDuePayments(s.ctx)
		s.Require().NoError(err)
		s.Equal([]uint64{id}, report.Paid)
		s.Equal(startTick+10, report.Tick)

		r, err := s.service.GetRecurring(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(startTick+20, r.NextPaymentLedger)
		s.Equal(uint32(1), r.PaymentCount)
		s.True(s.balance(usdc, recipient).Equal(models.NewAmount(50)))
		s.Equal([]string{string(audit.EventRecurringPaid)}, s.actions())

		summary, err := s.service.GetSpending(s.ctx)
		s.Require().NoError(err)
		s.True(summary.DayTotal.Equal(models.NewAmount(50)))
	})

	s.Run("same tick does not pay twice", func() {
		report, err := s.service.ProcessDuePayments(s.ctx)
		s.Require().NoError(err)
		s.Empty(report.Paid)
	})

	s.Run("far behind schedule pays once per run", func() {
		s.clock.Set(startTick + 100)
		report, err := s.service.ProcessDuePayments(s.ctx)
		s.Require().NoError(err)
		s.Equal([]uint64{id}, report.Paid)

		r, err := s.service.GetRecurring(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(startTick+30, r.NextPaymentLedger)
		s.Equal(uint32(2), r.PaymentCount)
	})
}

func (s *ServiceSuite) TestPauseAndResume() {
	s.initVault(nil)
	id := s.schedule(usdc, 50, 10)
	s.clock.Set(startTick + 10)

	s.Require().NoError(s.service.PausePayment(s.ctx, admin, id))
	report, err := s.service.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Empty(report.Paid)
	s.Empty(report.Failed)

	r, err := s.service.GetRecurring(s.ctx, id)
	s.Require().NoError(err)
	s.False(r.IsActive)
	s.Equal(startTick+10, r.NextPaymentLedger, "pause keeps scheduling fields")

	err = s.service.ResumePayment(s.ctx, signer1, id)
	s.requireCode(err, dErrors.CodeInsufficientRole)

	s.Require().NoError(s.service.ResumePayment(s.ctx, admin, id))
	report, err = s.service.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Equal([]uint64{id}, report.Paid)
}

func (s *ServiceSuite) TestProcessFailuresAreIndependent() {
	s.initVault(nil)
	short := s.schedule(eurc, 10, 5)
	funded := s.schedule(usdc, 20, 5)
	s.clock.Set(startTick + 5)

	report, err := s.service.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Equal([]uint64{funded}, report.Paid)
	s.Require().Len(report.Failed, 1)
	s.Equal(short, report.Failed[0].ID)
	s.Equal(string(dErrors.CodeInsufficientBalance), report.Failed[0].Code)

	r, err := s.service.GetRecurring(s.ctx, short)
	s.Require().NoError(err)
	s.Equal(startTick+5, r.NextPaymentLedger, "failed schedule stays due")
	s.Zero(r.PaymentCount)

	summary, err := s.service.GetSpending(s.ctx)
	s.Require().NoError(err)
	s.True(summary.DayTotal.Equal(models.NewAmount(20)))

	s.Require().NoError(s.ledger.Credit(s.ctx, eurc, vaultID, models.NewAmount(100)))
	report, err = s.service.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Equal([]uint64{short}, report.Paid)
}

func (s *ServiceSuite) TestProcessRespectsLimits() {
	s.initVault(func(c *models.Config) { c.DailyLimit = models.NewAmount(120) })
	first := s.schedule(usdc, 100, 5)
	second := s.schedule(usdc, 100, 5)
	s.clock.Set(startTick + 5)

	report, err := s.service.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Equal([]uint64{first}, report.Paid)
	s.Require().Len(report.Failed, 1)
	s.Equal(second, report.Failed[0].ID)
	s.Equal(string(dErrors.CodeDailyLimitExceeded), report.Failed[0].Code)

	r, err := s.service.GetRecurring(s.ctx, second)
	s.Require().NoError(err)
	s.Zero(r.PaymentCount)
}

// ===== Spending =====

func (s *ServiceSuite) TestGetSpendingRollsForward() {
	s.initVault(nil)
	id := s.approved(300)
	_, err := s.service.ExecuteProposal(s.ctx, signer1, id)
	s.Require().NoError(err)

	summary, err := s.service.GetSpending(s.ctx)
	s.Require().NoError(err)
	s.True(summary.DayTotal.Equal(models.NewAmount(300)))
	s.Equal(models.TicksPerDay, summary.DayResetsAt)

	s.clock.Set(models.TicksPerDay)
	summary, err = s.service.GetSpending(s.ctx)
	s.Require().NoError(err)
	s.True(summary.DayTotal.IsZero())
	s.True(summary.DayRemaining.Equal(models.NewAmount(5000)))
	s.True(summary.WeekTotal.Equal(models.NewAmount(300)))
}

func (s *ServiceSuite) TestProcessRetryAfterFailedCommitPaysOnce() {
	s.initVault(nil)
	id := s.schedule(usdc, 50, 10)
	s.clock.Set(startTick + 10)

	kv := &flakyKV{KV: s.kv}
	svc, err := New(kv, s.auth, s.ledger, s.clock)
	s.Require().NoError(err)

	kv.failNext = true
	report, err := svc.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(report.Failed, 1)
	s.Equal(string(dErrors.CodeInternal), report.Failed[0].Code)

	report, err = svc.ProcessDuePayments(s.ctx)
	s.Require().NoError(err)
	s.Equal([]uint64{id}, report.Paid)

	r, err := svc.GetRecurring(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(uint32(1), r.PaymentCount)
	s.True(s.balance(usdc, recipient).Equal(models.NewAmount(50)))
}
