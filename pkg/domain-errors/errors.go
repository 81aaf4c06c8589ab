// Package domainerrors carries coded errors from domain and service layers to
// transports. Stores return sentinel facts; services translate them into coded
// errors here; handlers map codes onto responses.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class independent of its message.
type Code string

// Transport-level codes shared by every module.
const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
)

// Vault codes. The names are part of the public API contract: clients switch on them.
const (
	CodeAlreadyInitialized    Code = "already_initialized"
	CodeNotInitialized        Code = "not_initialized"
	CodeInvalidThreshold      Code = "invalid_threshold"
	CodeInvalidAmount         Code = "invalid_amount"
	CodeInvalidInterval       Code = "invalid_interval"
	CodeInsufficientRole      Code = "insufficient_role"
	CodeNotASigner            Code = "not_a_signer"
	CodeSignerExists          Code = "signer_exists"
	CodeProposalNotFound      Code = "proposal_not_found"
	CodeRecurringNotFound     Code = "recurring_not_found"
	CodeAlreadyApproved       Code = "already_approved"
	CodeThresholdNotMet       Code = "threshold_not_met"
	CodeInvalidState          Code = "invalid_state"
	CodeProposalExpired       Code = "proposal_expired"
	CodeTimelockNotExpired    Code = "timelock_not_expired"
	CodeSpendingLimitExceeded Code = "spending_limit_exceeded"
	CodeDailyLimitExceeded    Code = "daily_limit_exceeded"
	CodeWeeklyLimitExceeded   Code = "weekly_limit_exceeded"
	CodeTransferFailed        Code = "transfer_failed"
	CodeInsufficientBalance   Code = "insufficient_balance"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost coded error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in err's chain has the code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// Is matches coded errors by code so callers can compare against a template:
//
//	errors.Is(err, dErrors.New(dErrors.CodeProposalNotFound, ""))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
