package auth

import (
	"context"

	"treasury/internal/vault/models"
	dErrors "treasury/pkg/domain-errors"
	"treasury/pkg/requestcontext"
)

// ContextAuthenticator confirms callers against the identity the bearer
// middleware verified for the current request.
type ContextAuthenticator struct{}

func NewContextAuthenticator() *ContextAuthenticator {
	return &ContextAuthenticator{}
}

func (ContextAuthenticator) Confirm(ctx context.Context, caller models.Identity) error {
	verified := requestcontext.Caller(ctx)
	if verified == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "request is not authenticated")
	}
	if verified != caller.String() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not match authenticated identity")
	}
	return nil
}
