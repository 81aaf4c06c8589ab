// Package ports defines the collaborators the vault depends on but does not
// implement: caller authentication, value settlement, logical time, and audit.
package ports

import (
	"context"

	"treasury/internal/vault/models"
	"treasury/pkg/platform/audit"
)

// Authenticator confirms that the claimed caller is the party actually
// invoking the operation. It is injected into the service, never read from
// ambient state, so tests can substitute a deterministic double.
type Authenticator interface {
	// Confirm returns an error coded unauthorized when caller did not
	// authenticate this invocation.
	Confirm(ctx context.Context, caller models.Identity) error
}

// Transferer moves value on the external ledger. An error coded
// insufficient_balance is surfaced as such; every other error is a
// transfer failure. Transfers are idempotent on Reference: repeating a
// reference that already settled returns nil and moves nothing.
type Transferer interface {
	Transfer(ctx context.Context, t models.Transfer) error
}

// Clock reports the host ledger's current tick.
type Clock interface {
	Now(ctx context.Context) models.Tick
}

// AuditPublisher emits audit events for committed mutations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
