package service

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"treasury/internal/vault/models"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/platform/audit"
)

// Initialize creates the vault config and seeds admin with the Admin role.
// It may succeed exactly once per store.
func (s *Service) Initialize(ctx context.Context, admin models.Identity, cfg models.Config) error {
	return s.runInTx(ctx, "initialize", func(ctx context.Context, tx *txState) error {
		if err := s.guard.Confirm(ctx, admin); err != nil {
			return err
		}
		initialized, err := tx.state.Initialized(ctx)
		if err != nil {
			return internal(err, "failed to check initialization")
		}
		if initialized {
			return dErrors.New(dErrors.CodeAlreadyInitialized, "vault is already initialized")
		}
		next := cfg.Clone()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := tx.state.PutConfig(ctx, next); err != nil {
			return internal(err, "failed to save config")
		}
		if err := tx.state.PutRole(ctx, admin, models.RoleAdmin); err != nil {
			return internal(err, "failed to save admin role")
		}
		tx.record(audit.EventVaultInitialized, admin, "config",
			"signers", len(next.Signers),
			"threshold", next.Threshold,
			"spending_limit", next.SpendingLimit,
		)
		return nil
	})
}

// UpdateConfig replaces the vault config. Admin only; validated like Initialize.
// Unlock ticks of already approved proposals are not recomputed.
func (s *Service) UpdateConfig(ctx context.Context, caller models.Identity, cfg models.Config) error {
	return s.runInTx(ctx, "update_config", func(ctx context.Context, tx *txState) error {
		if _, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin); err != nil {
			return err
		}
		next := cfg.Clone()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := tx.state.PutConfig(ctx, next); err != nil {
			return internal(err, "failed to save config")
		}
		tx.record(audit.EventConfigUpdated, caller, "config",
			"signers", len(next.Signers),
			"threshold", next.Threshold,
			"daily_limit", next.DailyLimit,
			"weekly_limit", next.WeeklyLimit,
		)
		return nil
	})
}

// GetConfig returns a copy of the current config.
func (s *Service) GetConfig(ctx context.Context) (*models.Config, error) {
	var out *models.Config
	err := s.runInTx(ctx, "get_config", func(ctx context.Context, tx *txState) error {
		cfg, err := requireInitialized(ctx, tx)
		if err != nil {
			return err
		}
		out = cfg.Clone()
		return nil
	})
	return out, err
}

// SetRole assigns role to target. Admin only. Assigning Member clears the
// stored mapping since Member is the default.
func (s *Service) SetRole(ctx context.Context, caller, target models.Identity, role models.Role) error {
	return s.runInTx(ctx, "set_role", func(ctx context.Context, tx *txState) error {
		if _, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin); err != nil {
			return err
		}
		if target.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "target identity is required")
		}
		if !role.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown role")
		}
		previous, err := tx.state.Role(ctx, target)
		if err != nil {
			return internal(err, "failed to load role")
		}
		if role == models.RoleMember {
			err = tx.state.RemoveRole(ctx, target)
		} else {
			err = tx.state.PutRole(ctx, target, role)
		}
		if err != nil {
			return internal(err, "failed to save role")
		}
		tx.record(audit.EventRoleChanged, caller, target.String(),
			"previous_role", previous.String(),
			"role", role.String(),
		)
		return nil
	})
}

// GetRole returns id's role, Member when never elevated.
func (s *Service) GetRole(ctx context.Context, id models.Identity) (models.Role, error) {
	role := models.RoleMember
	err := s.runInTx(ctx, "get_role", func(ctx context.Context, tx *txState) error {
		if _, err := requireInitialized(ctx, tx); err != nil {
			return err
		}
		r, err := tx.state.Role(ctx, id)
		if err != nil {
			return internal(err, "failed to load role")
		}
		role = r
		return nil
	})
	return role, err
}

// AddSigner appends signer to the signer set. Admin only.
func (s *Service) AddSigner(ctx context.Context, caller, signer models.Identity) error {
	return s.runInTx(ctx, "add_signer", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin)
		if err != nil {
			return err
		}
		if signer.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "signer identity is required")
		}
		if cfg.IsSigner(signer) {
			return dErrors.New(dErrors.CodeSignerExists, "already a signer: "+signer.String())
		}
		next := cfg.Clone()
		next.Signers = append(next.Signers, signer)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := tx.state.PutConfig(ctx, next); err != nil {
			return internal(err, "failed to save config")
		}
		tx.record(audit.EventSignerAdded, caller, signer.String(),
			"signers", len(next.Signers),
		)
		return nil
	})
}

// RemoveSigner drops signer from the signer set. Admin only. Fails with
// InvalidThreshold when the remaining set could no longer reach threshold.
// Approvals already recorded on open proposals are kept.
func (s *Service) RemoveSigner(ctx context.Context, caller, signer models.Identity) error {
	return s.runInTx(ctx, "remove_signer", func(ctx context.Context, tx *txState) error {
		cfg, _, err := s.authorize(ctx, tx, caller, models.RoleAdmin)
		if err != nil {
			return err
		}
		if !cfg.IsSigner(signer) {
			return dErrors.New(dErrors.CodeNotASigner, "not a signer: "+signer.String())
		}
		next := cfg.Clone()
		next.Signers = slices.DeleteFunc(next.Signers, func(id models.Identity) bool { return id == signer })
		if err := next.Validate(); err != nil {
			var de *dErrors.Error
			if errors.As(err, &de) && de.Code == dErrors.CodeInvalidThreshold {
				return dErrors.New(dErrors.CodeInvalidThreshold,
					"removing signer would leave "+strconv.Itoa(len(next.Signers))+
						" signers for threshold "+strconv.FormatUint(uint64(next.Threshold), 10))
			}
			return err
		}
		if err := tx.state.PutConfig(ctx, next); err != nil {
			return internal(err, "failed to save config")
		}
		tx.record(audit.EventSignerRemoved, caller, signer.String(),
			"signers", len(next.Signers),
		)
		return nil
	})
}
