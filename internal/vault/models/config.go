package models

import (
	"slices"

	dErrors "treasury/pkg/domain-errors"
)

// Config holds vault-wide parameters. Created by initialize, mutable only by
// an Admin afterwards.
type Config struct {
	Signers           []Identity `json:"signers"`
	Threshold         uint32     `json:"threshold"`
	SpendingLimit     Amount     `json:"spending_limit"`
	DailyLimit        Amount     `json:"daily_limit"`
	WeeklyLimit       Amount     `json:"weekly_limit"`
	TimelockThreshold Amount     `json:"timelock_threshold"`
	TimelockDelay     Tick       `json:"timelock_delay"`
}

// Validate enforces 1 <= threshold <= len(signers), a duplicate-free signer
// set, and non-negative limits.
func (c *Config) Validate() error {
	if len(c.Signers) == 0 {
		return dErrors.New(dErrors.CodeInvalidThreshold, "signer set cannot be empty")
	}
	seen := make(map[Identity]struct{}, len(c.Signers))
	for _, s := range c.Signers {
		if s.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "signer identity cannot be empty")
		}
		if _, dup := seen[s]; dup {
			return dErrors.New(dErrors.CodeInvalidInput, "duplicate signer: "+s.String())
		}
		seen[s] = struct{}{}
	}
	if c.Threshold == 0 {
		return dErrors.New(dErrors.CodeInvalidThreshold, "threshold must be at least 1")
	}
	if int(c.Threshold) > len(c.Signers) {
		return dErrors.New(dErrors.CodeInvalidThreshold, "threshold cannot exceed signer count")
	}
	for name, limit := range map[string]Amount{
		"spending_limit":     c.SpendingLimit,
		"daily_limit":        c.DailyLimit,
		"weekly_limit":       c.WeeklyLimit,
		"timelock_threshold": c.TimelockThreshold,
	} {
		if limit.IsNegative() {
			return dErrors.New(dErrors.CodeInvalidAmount, name+" cannot be negative")
		}
	}
	return nil
}

// IsSigner reports whether id belongs to the signer set.
func (c *Config) IsSigner(id Identity) bool {
	return slices.Contains(c.Signers, id)
}

// Clone returns a deep copy so callers can stage edits.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Signers = slices.Clone(c.Signers)
	return &cp
}
