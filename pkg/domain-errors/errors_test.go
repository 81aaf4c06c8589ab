package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeProposalNotFound, "proposal 7 not found")
		assert.True(t, HasCode(err, CodeProposalNotFound))
		assert.False(t, HasCode(err, CodeInvalidState))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("execute: %w", New(CodeTimelockNotExpired, "locked until 300"))
		assert.True(t, HasCode(err, CodeTimelockNotExpired))
	})

	t.Run("uncoded errors have no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeTransferFailed, "transfer rejected")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestIsComparesCodes(t *testing.T) {
	err := fmt.Errorf("approve: %w", New(CodeAlreadyApproved, "signer already approved"))
	assert.ErrorIs(t, err, New(CodeAlreadyApproved, ""))
	assert.NotErrorIs(t, err, New(CodeInvalidState, ""))
}
