// Package domainerrors defines the coded, user-facing error type returned by
// services. Stores and infrastructure return sentinel errors
// (pkg/platform/sentinel); services translate those facts into one of the codes
// below so transports can map them without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable error code exposed to callers.
type Code string

const (
	// Validation: malformed input. Fatal to the call, never retryable.
	CodeInvalidInput Code = "INVALID_INPUT"

	// Authorization failures.
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotOwner     Code = "NOT_OWNER"

	// State conflicts: the operation cannot succeed because the entity has
	// already moved on. The message conveys current truth to the caller.
	CodeNotFound            Code = "PASS_NOT_FOUND"
	CodeAlreadyRedeemed     Code = "PASS_ALREADY_REDEEMED"
	CodeExpired             Code = "PASS_EXPIRED"
	CodeStaleCredential     Code = "STALE_CREDENTIAL"
	CodeMalformedCredential Code = "MALFORMED_CREDENTIAL"
	CodeRestricted          Code = "PASS_RESTRICTED"

	// Configuration disabled at the venue level.
	CodeTransferDisabled     Code = "TRANSFER_DISABLED"
	CodeNotTransferable      Code = "PASS_NOT_TRANSFERABLE"
	CodeRecipientNotEligible Code = "RECIPIENT_NOT_ELIGIBLE"

	// Infrastructure.
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"
	CodeInternal    Code = "INTERNAL"
)

// Error carries a code, a human-readable message, and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the operation. Only
// infrastructure timeouts and unavailability qualify; every other code conveys
// a terminal fact.
func (e *Error) Retryable() bool {
	return e.Code == CodeUnavailable || e.Code == CodeTimeout
}

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode used at call sites that read like
// errors.Is.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so transports always have something stable to emit.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller should treat err as transient.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
