package handler

import (
	"strings"

	"treasury/internal/vault/models"
	"treasury/internal/vault/service"
	dErrors "treasury/pkg/domain-errors"
)

const maxMemoLength = 256

// ConfigRequest is the body of POST /vault/initialize and PUT /vault/config.
type ConfigRequest struct {
	Signers           []string `json:"signers"`
	Threshold         uint32   `json:"threshold"`
	SpendingLimit     string   `json:"spending_limit"`
	DailyLimit        string   `json:"daily_limit"`
	WeeklyLimit       string   `json:"weekly_limit"`
	TimelockThreshold string   `json:"timelock_threshold"`
	TimelockDelay     uint64   `json:"timelock_delay"`

	parsed models.Config
}

func (r *ConfigRequest) Normalize() {
	for i, s := range r.Signers {
		r.Signers[i] = strings.TrimSpace(s)
	}
	r.SpendingLimit = strings.TrimSpace(r.SpendingLimit)
	r.DailyLimit = strings.TrimSpace(r.DailyLimit)
	r.WeeklyLimit = strings.TrimSpace(r.WeeklyLimit)
	r.TimelockThreshold = strings.TrimSpace(r.TimelockThreshold)
}

// Validate parses amounts and identities. Threshold and signer-set rules are
// enforced by the service.
func (r *ConfigRequest) Validate() error {
	signers := make([]models.Identity, 0, len(r.Signers))
	for _, s := range r.Signers {
		id, err := models.ParseIdentity(s)
		if err != nil {
			return err
		}
		signers = append(signers, id)
	}
	limits := []struct {
		name  string
		raw   string
		field *models.Amount
	}{
		{"spending_limit", r.SpendingLimit, &r.parsed.SpendingLimit},
		{"daily_limit", r.DailyLimit, &r.parsed.DailyLimit},
		{"weekly_limit", r.WeeklyLimit, &r.parsed.WeeklyLimit},
		{"timelock_threshold", r.TimelockThreshold, &r.parsed.TimelockThreshold},
	}
	for _, l := range limits {
		if l.raw == "" {
			return dErrors.New(dErrors.CodeValidation, l.name+" is required")
		}
		amount, err := models.ParseAmount(l.raw)
		if err != nil {
			return err
		}
		*l.field = amount
	}
	r.parsed.Signers = signers
	r.parsed.Threshold = r.Threshold
	r.parsed.TimelockDelay = models.Tick(r.TimelockDelay)
	return nil
}

// Config returns the parsed config.
func (r *ConfigRequest) Config() models.Config {
	return r.parsed
}

// RoleRequest is the body of PUT /vault/roles/{identity}.
type RoleRequest struct {
	Role string `json:"role"`

	parsed models.Role
}

func (r *RoleRequest) Normalize() {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *RoleRequest) Validate() error {
	if r.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	role, err := models.ParseRole(r.Role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "role must be member, treasurer or admin")
	}
	r.parsed = role
	return nil
}

// SignerRequest is the body of POST /vault/signers.
type SignerRequest struct {
	Signer string `json:"signer"`
}

func (r *SignerRequest) Normalize() {
	r.Signer = strings.TrimSpace(r.Signer)
}

func (r *SignerRequest) Validate() error {
	if r.Signer == "" {
		return dErrors.New(dErrors.CodeValidation, "signer is required")
	}
	return nil
}

// TransferRequest is the body of POST /proposals.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo"`

	amount models.Amount
}

func (r *TransferRequest) Normalize() {
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.Token = strings.TrimSpace(r.Token)
	r.Amount = strings.TrimSpace(r.Amount)
}

func (r *TransferRequest) Validate() error {
	if len(r.Memo) > maxMemoLength {
		return dErrors.New(dErrors.CodeValidation, "memo is too long")
	}
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if r.Amount == "" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	amount, err := models.ParseAmount(r.Amount)
	if err != nil {
		return err
	}
	r.amount = amount
	return nil
}

func (r *TransferRequest) toService() service.TransferRequest {
	return service.TransferRequest{
		Recipient: models.Identity(r.Recipient),
		Token:     models.Identity(r.Token),
		Amount:    r.amount,
		Memo:      r.Memo,
	}
}

// ScheduleRequest is the body of POST /recurring.
type ScheduleRequest struct {
	TransferRequest
	Interval int64 `json:"interval"`
}

// toService passes non-positive intervals on as zero so the service rejects
// them with invalid_interval.
func (r *ScheduleRequest) toService() service.ScheduleRequest {
	t := r.TransferRequest.toService()
	var interval models.Tick
	if r.Interval > 0 {
		interval = models.Tick(r.Interval)
	}
	return service.ScheduleRequest{
		Recipient: t.Recipient,
		Token:     t.Token,
		Amount:    t.Amount,
		Memo:      t.Memo,
		Interval:  interval,
	}
}
