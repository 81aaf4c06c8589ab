package models

// Tick is the host ledger's monotonically increasing logical time unit.
type Tick uint64

// Ledger closes roughly every five seconds.
const (
	TicksPerDay  Tick = 17280
	TicksPerWeek Tick = 7 * TicksPerDay

	// DefaultProposalLifetime is how long a proposal stays actionable after creation.
	DefaultProposalLifetime Tick = TicksPerWeek
)
