// Package timelock decides when an approved proposal may execute.
package timelock

import "treasury/internal/vault/models"

// ComputeUnlock returns 0 when amount is at or below the configured
// threshold, otherwise approvedAt plus the configured delay.
func ComputeUnlock(cfg *models.Config, amount models.Amount, approvedAt models.Tick) models.Tick {
	if !amount.Exceeds(cfg.TimelockThreshold) {
		return 0
	}
	return approvedAt + cfg.TimelockDelay
}

// IsUnlocked reports whether now has reached unlock. An unlock of 0 means no
// timelock applies.
func IsUnlocked(unlock, now models.Tick) bool {
	return unlock == 0 || now >= unlock
}
