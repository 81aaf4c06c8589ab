package handler

import "treasury/internal/vault/models"

// ConfigResponse is the JSON form of the vault config. Amounts are decimal
// strings so large values survive JavaScript clients.
type ConfigResponse struct {
	Signers           []string `json:"signers"`
	Threshold         uint32   `json:"threshold"`
	SpendingLimit     string   `json:"spending_limit"`
	DailyLimit        string   `json:"daily_limit"`
	WeeklyLimit       string   `json:"weekly_limit"`
	TimelockThreshold string   `json:"timelock_threshold"`
	TimelockDelay     uint64   `json:"timelock_delay"`
}

func toConfigResponse(cfg *models.Config) *ConfigResponse {
	signers := make([]string, 0, len(cfg.Signers))
	for _, s := range cfg.Signers {
		signers = append(signers, s.String())
	}
	return &ConfigResponse{
		Signers:           signers,
		Threshold:         cfg.Threshold,
		SpendingLimit:     cfg.SpendingLimit.String(),
		DailyLimit:        cfg.DailyLimit.String(),
		WeeklyLimit:       cfg.WeeklyLimit.String(),
		TimelockThreshold: cfg.TimelockThreshold.String(),
		TimelockDelay:     uint64(cfg.TimelockDelay),
	}
}

type RoleResponse struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

type IDResponse struct {
	ID uint64 `json:"id"`
}

type ProposalResponse struct {
	ID           uint64   `json:"id"`
	Proposer     string   `json:"proposer"`
	Recipient    string   `json:"recipient"`
	Token        string   `json:"token"`
	Amount       string   `json:"amount"`
	Memo         string   `json:"memo"`
	Approvals    []string `json:"approvals"`
	Status       string   `json:"status"`
	CreatedAt    uint64   `json:"created_at"`
	ExpiresAt    uint64   `json:"expires_at"`
	UnlockLedger uint64   `json:"unlock_ledger"`
}

func toProposalResponse(p *models.Proposal) *ProposalResponse {
	approvals := make([]string, 0, len(p.Approvals))
	for _, a := range p.Approvals {
		approvals = append(approvals, a.String())
	}
	return &ProposalResponse{
		ID:           p.ID,
		Proposer:     p.Proposer.String(),
		Recipient:    p.Recipient.String(),
		Token:        p.Token.String(),
		Amount:       p.Amount.String(),
		Memo:         p.Memo,
		Approvals:    approvals,
		Status:       p.Status.String(),
		CreatedAt:    uint64(p.CreatedAt),
		ExpiresAt:    uint64(p.ExpiresAt),
		UnlockLedger: uint64(p.UnlockLedger),
	}
}

type ProposalListResponse struct {
	Proposals []*ProposalResponse `json:"proposals"`
}

type RecurringResponse struct {
	ID                uint64 `json:"id"`
	Proposer          string `json:"proposer"`
	Recipient         string `json:"recipient"`
	Token             string `json:"token"`
	Amount            string `json:"amount"`
	Memo              string `json:"memo"`
	Interval          uint64 `json:"interval"`
	NextPaymentLedger uint64 `json:"next_payment_ledger"`
	PaymentCount      uint32 `json:"payment_count"`
	IsActive          bool   `json:"is_active"`
}

func toRecurringResponse(r *models.RecurringPayment) *RecurringResponse {
	return &RecurringResponse{
		ID:                r.ID,
		Proposer:          r.Proposer.String(),
		Recipient:         r.Recipient.String(),
		Token:             r.Token.String(),
		Amount:            r.Amount.String(),
		Memo:              r.Memo,
		Interval:          uint64(r.Interval),
		NextPaymentLedger: uint64(r.NextPaymentLedger),
		PaymentCount:      r.PaymentCount,
		IsActive:          r.IsActive,
	}
}

type RecurringListResponse struct {
	Recurring []*RecurringResponse `json:"recurring"`
}

type SpendingResponse struct {
	DayTotal      string `json:"day_total"`
	DayRemaining  string `json:"day_remaining"`
	DayResetsAt   uint64 `json:"day_resets_at"`
	WeekTotal     string `json:"week_total"`
	WeekRemaining string `json:"week_remaining"`
	WeekResetsAt  uint64 `json:"week_resets_at"`
}

func toSpendingResponse(s *models.SpendingSummary) *SpendingResponse {
	return &SpendingResponse{
		DayTotal:      s.DayTotal.String(),
		DayRemaining:  s.DayRemaining.String(),
		DayResetsAt:   uint64(s.DayResetsAt),
		WeekTotal:     s.WeekTotal.String(),
		WeekRemaining: s.WeekRemaining.String(),
		WeekResetsAt:  uint64(s.WeekResetsAt),
	}
}
