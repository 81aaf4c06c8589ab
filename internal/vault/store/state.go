package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"treasury/internal/vault/models"
	"treasury/pkg/platform/sentinel"
)

// Persisted keys.
const (
	KeyConfig           = "config"
	KeyProposalCounter  = "proposal_counter"
	KeyRecurringCounter = "recurring_counter"
	KeySpendingWindow   = "spending_window"

	prefixRole      = "role:"
	prefixProposal  = "proposal:"
	prefixRecurring = "recurring:"
)

func RoleKey(id models.Identity) string { return prefixRole + id.String() }

func ProposalKey(id uint64) string { return prefixProposal + strconv.FormatUint(id, 10) }

func RecurringKey(id uint64) string { return prefixRecurring + strconv.FormatUint(id, 10) }

// ErrIDCollision is returned when a freshly assigned id already has a record.
var ErrIDCollision = errors.New("id collision")

// State is the typed view of vault state over a KV. Records are JSON encoded.
type State struct {
	kv KV
}

func NewState(kv KV) *State {
	return &State{kv: kv}
}

func (s *State) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *State) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, raw)
}

func (s *State) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.kv.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Config returns sentinel.ErrNotFound before initialization.
func (s *State) Config(ctx context.Context) (*models.Config, error) {
	var cfg models.Config
	if err := s.getJSON(ctx, KeyConfig, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *State) PutConfig(ctx context.Context, cfg *models.Config) error {
	return s.putJSON(ctx, KeyConfig, cfg)
}

// Initialized reports whether a config has been persisted.
func (s *State) Initialized(ctx context.Context) (bool, error) {
	return s.exists(ctx, KeyConfig)
}

// Role returns the explicit role for id, or Member when none is stored.
func (s *State) Role(ctx context.Context, id models.Identity) (models.Role, error) {
	var role models.Role
	err := s.getJSON(ctx, RoleKey(id), &role)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.RoleMember, nil
	}
	if err != nil {
		return models.RoleMember, err
	}
	return role, nil
}

func (s *State) PutRole(ctx context.Context, id models.Identity, role models.Role) error {
	return s.putJSON(ctx, RoleKey(id), role)
}

// RemoveRole drops an explicit mapping so id falls back to Member.
func (s *State) RemoveRole(ctx context.Context, id models.Identity) error {
	return s.kv.Remove(ctx, RoleKey(id))
}

func (s *State) Proposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	var p models.Proposal
	if err := s.getJSON(ctx, ProposalKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *State) PutProposal(ctx context.Context, p *models.Proposal) error {
	return s.putJSON(ctx, ProposalKey(p.ID), p)
}

func (s *State) Recurring(ctx context.Context, id uint64) (*models.RecurringPayment, error) {
	var r models.RecurringPayment
	if err := s.getJSON(ctx, RecurringKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *State) PutRecurring(ctx context.Context, r *models.RecurringPayment) error {
	return s.putJSON(ctx, RecurringKey(r.ID), r)
}

// counter reads the next id stored under key. Ids start at 1.
func (s *State) counter(ctx context.Context, key string) (uint64, error) {
	var next uint64
	err := s.getJSON(ctx, key, &next)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

// allocate returns the next id under counterKey and advances the counter.
// A record already present at the new id is an ErrIDCollision.
func (s *State) allocate(ctx context.Context, counterKey string, recordKey func(uint64) string) (uint64, error) {
	id, err := s.counter(ctx, counterKey)
	if err != nil {
		return 0, err
	}
	taken, err := s.exists(ctx, recordKey(id))
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("%s %d: %w", counterKey, id, ErrIDCollision)
	}
	if err := s.putJSON(ctx, counterKey, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *State) NextProposalID(ctx context.Context) (uint64, error) {
	return s.allocate(ctx, KeyProposalCounter, ProposalKey)
}

func (s *State) NextRecurringID(ctx context.Context) (uint64, error) {
	return s.allocate(ctx, KeyRecurringCounter, RecurringKey)
}

// ProposalCount is the number of ids assigned so far.
func (s *State) ProposalCount(ctx context.Context) (uint64, error) {
	next, err := s.counter(ctx, KeyProposalCounter)
	return next - 1, err
}

func (s *State) RecurringCount(ctx context.Context) (uint64, error) {
	next, err := s.counter(ctx, KeyRecurringCounter)
	return next - 1, err
}

// Proposals returns every proposal in id order.
func (s *State) Proposals(ctx context.Context) ([]*models.Proposal, error) {
	n, err := s.ProposalCount(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Proposal, 0, n)
	for id := uint64(1); id <= n; id++ {
		p, err := s.Proposal(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// RecurringPayments returns every schedule in id order.
func (s *State) RecurringPayments(ctx context.Context) ([]*models.RecurringPayment, error) {
	n, err := s.RecurringCount(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.RecurringPayment, 0, n)
	for id := uint64(1); id <= n; id++ {
		r, err := s.Recurring(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SpendingWindow returns the zero window when none is stored.
func (s *State) SpendingWindow(ctx context.Context) (models.SpendingWindow, error) {
	var w models.SpendingWindow
	err := s.getJSON(ctx, KeySpendingWindow, &w)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.SpendingWindow{}, nil
	}
	return w, err
}

func (s *State) PutSpendingWindow(ctx context.Context, w models.SpendingWindow) error {
	return s.putJSON(ctx, KeySpendingWindow, w)
}
