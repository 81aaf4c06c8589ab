package models

import (
	"strings"

	dErrors "treasury/pkg/domain-errors"
)

// Identity is an opaque party, recipient, or asset address. The vault never
// interprets it beyond equality.
type Identity string

// ParseIdentity trims and validates a raw identity from a trust boundary.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	return Identity(s), nil
}

func (i Identity) String() string { return string(i) }

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i == "" }
