package models

import "slices"

// Proposal is a transfer awaiting M-of-N approval.
type Proposal struct {
	ID        uint64         `json:"id"`
	Proposer  Identity       `json:"proposer"`
	Recipient Identity       `json:"recipient"`
	Token     Identity       `json:"token"`
	Amount    Amount         `json:"amount"`
	Memo      string         `json:"memo"`
	Approvals []Identity     `json:"approvals"`
	Status    ProposalStatus `json:"status"`
	CreatedAt Tick           `json:"created_at"`
	ExpiresAt Tick           `json:"expires_at"`
	// UnlockLedger is 0 when no timelock applies. Fixed when the proposal
	// reaches its threshold and never recomputed.
	UnlockLedger Tick `json:"unlock_ledger"`
}

// HasApproved reports whether signer already approved.
func (p *Proposal) HasApproved(signer Identity) bool {
	return slices.Contains(p.Approvals, signer)
}

// AddApproval records signer's approval. Returns false if it was already present,
// leaving the set unchanged.
func (p *Proposal) AddApproval(signer Identity) bool {
	if p.HasApproved(signer) {
		return false
	}
	p.Approvals = append(p.Approvals, signer)
	return true
}

// ApprovalCount is the cardinality of the approvals set.
func (p *Proposal) ApprovalCount() int {
	return len(p.Approvals)
}

// IsExpiredAt reports whether an open proposal has outlived its lifetime.
// Terminal proposals never expire.
func (p *Proposal) IsExpiredAt(now Tick) bool {
	return p.Status.IsOpen() && now > p.ExpiresAt
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	cp := *p
	cp.Approvals = slices.Clone(p.Approvals)
	return &cp
}
