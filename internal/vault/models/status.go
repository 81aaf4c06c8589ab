package models

import (
	"fmt"

	dErrors "treasury/pkg/domain-errors"
)

// ProposalStatus is a node of the proposal lifecycle:
//
//	Pending -> Approved -> Executed
//	Pending | Approved -> Rejected
//	Pending | Approved -> Expired
type ProposalStatus uint8

const (
	StatusPending ProposalStatus = iota
	StatusApproved
	StatusExecuted
	StatusRejected
	StatusExpired
)

var statusNames = map[ProposalStatus]string{
	StatusPending:  "pending",
	StatusApproved: "approved",
	StatusExecuted: "executed",
	StatusRejected: "rejected",
	StatusExpired:  "expired",
}

func (s ProposalStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// IsOpen reports whether the status can still move (Pending or Approved).
func (s ProposalStatus) IsOpen() bool {
	return s == StatusPending || s == StatusApproved
}

// IsTerminal reports whether no further transition is possible.
func (s ProposalStatus) IsTerminal() bool {
	return !s.IsOpen()
}

func (s ProposalStatus) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid proposal status %d", uint8(s))
	}
	return []byte(name), nil
}

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	for status, name := range statusNames {
		if name == string(b) {
			*s = status
			return nil
		}
	}
	return dErrors.New(dErrors.CodeInvalidInput, "invalid proposal status: "+string(b))
}
