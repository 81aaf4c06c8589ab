// Package transfer provides an asset ledger that settles vault disbursements.
// Deployments that settle on an external chain replace it with their own
// ports.Transferer.
//
// Balances and settled references live in a store.KV. Pointing the ledger at
// the vault's durable backend keeps both across restarts and shares them
// between replicas; the default in-memory store forgets them with the process.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"treasury/internal/vault/models"
	"treasury/internal/vault/store"
	dErrors "treasury/pkg/domain-errors"
)

const (
	prefixBalance = "ledger:balance:"
	prefixSettled = "ledger:settled:"

	// maxConflictRetries bounds how often a commit raced by another process
	// is rebuilt from fresh state.
	maxConflictRetries = 3
)

func balanceKey(token, holder models.Identity) string {
	return prefixBalance + token.String() + ":" + holder.String()
}

func settledKey(reference string) string {
	return prefixSettled + reference
}

// Ledger tracks per-token balances and debits the vault account on transfer.
type Ledger struct {
	mu    sync.Mutex
	vault models.Identity
	kv    store.KV
}

type Option func(*Ledger)

// WithStore keeps balances and settled references in kv.
func WithStore(kv store.KV) Option {
	return func(l *Ledger) {
		if kv != nil {
			l.kv = kv
		}
	}
}

// NewLedger creates a ledger whose transfers debit vault.
func NewLedger(vault models.Identity, opts ...Option) *Ledger {
	l := &Ledger{vault: vault, kv: store.NewMemory()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Vault returns the account transfers are paid from.
func (l *Ledger) Vault() models.Identity {
	return l.vault
}

// Credit adds amount to holder's balance of token.
func (l *Ledger) Credit(ctx context.Context, token, holder models.Identity, amount models.Amount) error {
	if err := amount.ValidateTransferable(); err != nil {
		return err
	}
	return l.commit(ctx, func(stage *store.Staging) error {
		return l.add(ctx, stage, token, holder, amount)
	})
}

// Seed sets holder's opening balance of token unless one is already stored.
// It reports whether the balance was written.
func (l *Ledger) Seed(ctx context.Context, token, holder models.Identity, amount models.Amount) (bool, error) {
	if err := amount.ValidateTransferable(); err != nil {
		return false, err
	}
	var seeded bool
	err := l.commit(ctx, func(stage *store.Staging) error {
		_, err := stage.Get(ctx, balanceKey(token, holder))
		switch {
		case err == nil:
			seeded = false
			return nil
		case !store.IsNotFound(err):
			return err
		}
		seeded = true
		return l.put(ctx, stage, token, holder, amount)
	})
	return seeded, err
}

// Balance returns holder's balance of token.
func (l *Ledger) Balance(ctx context.Context, token, holder models.Identity) (models.Amount, error) {
	return l.balance(ctx, l.kv, token, holder)
}

// Transfer moves t.Amount of t.Token from the vault to t.Recipient. A
// reference that already settled the same payment succeeds without moving
// funds again; one that settled a different payment fails.
func (l *Ledger) Transfer(ctx context.Context, t models.Transfer) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTransferFailed, "transfer aborted")
	}
	if err := t.Amount.ValidateTransferable(); err != nil {
		return err
	}
	if t.Token.IsZero() || t.Recipient.IsZero() {
		return dErrors.New(dErrors.CodeTransferFailed, "token and recipient are required")
	}

	err := l.commit(ctx, func(stage *store.Staging) error {
		if t.Reference != "" {
			done, err := l.alreadySettled(ctx, stage, t)
			if err != nil || done {
				return err
			}
		}

		available, err := l.balance(ctx, stage, t.Token, l.vault)
		if err != nil {
			return err
		}
		if t.Amount.Exceeds(available) {
			return dErrors.New(dErrors.CodeInsufficientBalance,
				fmt.Sprintf("vault holds %s of %s, transfer needs %s", available, t.Token, t.Amount))
		}
		if err := l.add(ctx, stage, t.Token, l.vault, models.Amount{Decimal: t.Amount.Neg()}); err != nil {
			return err
		}
		if err := l.add(ctx, stage, t.Token, t.Recipient, t.Amount); err != nil {
			return err
		}
		if t.Reference == "" {
			return nil
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode settled transfer: %w", err)
		}
		return stage.Set(ctx, settledKey(t.Reference), raw)
	})
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeTransferFailed, "failed to record transfer")
}

// alreadySettled reports whether t.Reference settled before.
func (l *Ledger) alreadySettled(ctx context.Context, kv store.KV, t models.Transfer) (bool, error) {
	raw, err := kv.Get(ctx, settledKey(t.Reference))
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var prior models.Transfer
	if err := json.Unmarshal(raw, &prior); err != nil {
		return false, fmt.Errorf("decode settled transfer %s: %w", t.Reference, err)
	}
	if !prior.SamePayment(t) {
		return false, dErrors.New(dErrors.CodeTransferFailed,
			fmt.Sprintf("reference %s already settled a different payment", t.Reference))
	}
	return true, nil
}

// commit runs fn over a fresh staging overlay and commits it, rebuilding from
// current state when another process committed first.
func (l *Ledger) commit(ctx context.Context, fn func(stage *store.Staging) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		stage := store.NewStaging(l.kv)
		if err = fn(stage); err != nil {
			return err
		}
		err = stage.Commit(ctx)
		if !store.IsConflict(err) {
			return err
		}
	}
	return err
}

func (l *Ledger) balance(ctx context.Context, kv store.KV, token, holder models.Identity) (models.Amount, error) {
	raw, err := kv.Get(ctx, balanceKey(token, holder))
	if store.IsNotFound(err) {
		return models.ZeroAmount, nil
	}
	if err != nil {
		return models.ZeroAmount, fmt.Errorf("load balance of %s for %s: %w", token, holder, err)
	}
	var amount models.Amount
	if err := json.Unmarshal(raw, &amount); err != nil {
		return models.ZeroAmount, fmt.Errorf("decode balance of %s for %s: %w", token, holder, err)
	}
	return amount, nil
}

func (l *Ledger) put(ctx context.Context, kv store.KV, token, holder models.Identity, amount models.Amount) error {
	raw, err := json.Marshal(amount)
	if err != nil {
		return fmt.Errorf("encode balance of %s for %s: %w", token, holder, err)
	}
	return kv.Set(ctx, balanceKey(token, holder), raw)
}

func (l *Ledger) add(ctx context.Context, kv store.KV, token, holder models.Identity, amount models.Amount) error {
	current, err := l.balance(ctx, kv, token, holder)
	if err != nil {
		return err
	}
	return l.put(ctx, kv, token, holder, current.Add(amount))
}
