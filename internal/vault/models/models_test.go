package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "treasury/pkg/domain-errors"
)

// TestRole_AtLeast validates the privilege ordering used by every role gate:
// "at least Treasurer" must admit Admin and reject Member.
func TestRole_AtLeast(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleMember, RoleMember, true},
		{RoleMember, RoleTreasurer, false},
		{RoleTreasurer, RoleTreasurer, true},
		{RoleAdmin, RoleTreasurer, true},
		{RoleTreasurer, RoleAdmin, false},
		{RoleAdmin, RoleAdmin, true},
	}
	for _, tt := range tests {
		t.Run(tt.role.String()+">="+tt.min.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.AtLeast(tt.min))
		})
	}
}

func TestRole_Text(t *testing.T) {
	t.Run("round trips through JSON as a name", func(t *testing.T) {
		body, err := json.Marshal(map[string]Role{"role": RoleTreasurer})
		require.NoError(t, err)
		assert.JSONEq(t, `{"role":"treasurer"}`, string(body))

		var decoded map[string]Role
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, RoleTreasurer, decoded["role"])
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := ParseRole("owner")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Signers:           []Identity{"admin", "s1", "s2"},
			Threshold:         2,
			SpendingLimit:     NewAmount(1000),
			DailyLimit:        NewAmount(5000),
			WeeklyLimit:       NewAmount(10000),
			TimelockThreshold: NewAmount(500),
			TimelockDelay:     100,
		}
	}

	t.Run("accepts threshold within signer count", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("rejects zero threshold", func(t *testing.T) {
		cfg := valid()
		cfg.Threshold = 0
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeInvalidThreshold))
	})

	t.Run("rejects threshold above signer count", func(t *testing.T) {
		cfg := valid()
		cfg.Threshold = 4
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeInvalidThreshold))
	})

	t.Run("rejects empty signer set", func(t *testing.T) {
		cfg := valid()
		cfg.Signers = nil
		cfg.Threshold = 1
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeInvalidThreshold))
	})

	t.Run("rejects duplicate signers", func(t *testing.T) {
		cfg := valid()
		cfg.Signers = []Identity{"s1", "s1"}
		cfg.Threshold = 1
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeInvalidInput))
	})

	t.Run("rejects negative limits", func(t *testing.T) {
		cfg := valid()
		cfg.DailyLimit = NewAmount(-1)
		assert.True(t, dErrors.HasCode(cfg.Validate(), dErrors.CodeInvalidAmount))
	})
}

func TestProposal_Approvals(t *testing.T) {
	p := &Proposal{ID: 1, Status: StatusPending}

	assert.True(t, p.AddApproval("s1"))
	assert.False(t, p.AddApproval("s1"), "second approval by the same signer is not recorded")
	assert.True(t, p.AddApproval("s2"))
	assert.Equal(t, 2, p.ApprovalCount())
}

func TestProposal_IsExpiredAt(t *testing.T) {
	p := &Proposal{Status: StatusApproved, ExpiresAt: 200}
	assert.False(t, p.IsExpiredAt(200), "expiry tick itself is still live")
	assert.True(t, p.IsExpiredAt(201))

	p.Status = StatusExecuted
	assert.False(t, p.IsExpiredAt(500), "terminal proposals never expire")
}

func TestAmount(t *testing.T) {
	t.Run("encodes as a JSON string", func(t *testing.T) {
		body, err := json.Marshal(struct {
			Amount Amount `json:"amount"`
		}{NewAmount(600)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"600"}`, string(body))
	})

	t.Run("holds values beyond int64", func(t *testing.T) {
		a, err := ParseAmount("170141183460469231731687303715884105727")
		require.NoError(t, err)
		assert.True(t, a.Exceeds(NewAmount(1<<62)))
	})

	t.Run("transferable amounts are positive integers", func(t *testing.T) {
		assert.NoError(t, NewAmount(1).ValidateTransferable())
		assert.True(t, dErrors.HasCode(NewAmount(0).ValidateTransferable(), dErrors.CodeInvalidAmount))
		half, err := ParseAmount("0.5")
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(half.ValidateTransferable(), dErrors.CodeInvalidAmount))
	})
}

func TestRecurringPayment_Advance(t *testing.T) {
	r := &RecurringPayment{Interval: 50, NextPaymentLedger: 150, IsActive: true}
	assert.True(t, r.IsDueAt(150))
	r.Advance()
	assert.Equal(t, Tick(200), r.NextPaymentLedger)
	assert.Equal(t, uint32(1), r.PaymentCount)
	assert.False(t, r.IsDueAt(199))

	r.IsActive = false
	assert.False(t, r.IsDueAt(1000), "paused schedules are never due")
}
