// Package domainerrors provides coded errors for domain operations. Services
// fail precondition checks with a code the transport layer can translate to an
// HTTP status, and callers can branch on codes without string matching.
//
// Stores do not use these codes; they return sentinel errors
// (pkg/platform/sentinel) which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Every failure an operation can report maps
// to exactly one code.
type Code string

const (
	// Generic codes.
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInternal     Code = "internal"

	// Admission codes.
	CodeAlreadyRegistered Code = "already_registered"
	CodeBootstrapClosed   Code = "bootstrap_closed"
	CodeInvalidCommitment Code = "invalid_commitment"
	CodeSelfInvite        Code = "self_invite"
	CodeInsufficientStake Code = "insufficient_stake"
	CodeNotRegistered     Code = "not_registered"

	// Voting codes.
	CodeAlreadyVoted   Code = "already_voted"
	CodeZeroReputation Code = "zero_reputation"
	CodeZeroWeight     Code = "zero_weight"

	// Epoch codes.
	CodeEpochNotEnded Code = "epoch_not_ended"

	// Resolution codes.
	CodeNotEnoughVotes  Code = "not_enough_votes"
	CodeAlreadyResolved Code = "already_resolved"
	CodeNotResolved     Code = "not_resolved"
	CodeDidNotVote      Code = "did_not_vote"
	CodeAlreadyClaimed  Code = "already_claimed"

	// Bounds codes. Reported only on internal invariant violations; treated
	// as programming defects, not runtime conditions.
	CodeReputationOutOfBounds Code = "reputation_out_of_bounds"
)

// Error is a coded domain error. It may wrap an underlying cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// HasCode is an alias of Is kept for readability at call sites that assert.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status the transport layer responds
// with. Precondition failures on state that already exists are conflicts;
// admission and voting gate failures are forbidden rather than unauthorized
// because the caller is identified, just not eligible.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeInvalidCommitment:
		return http.StatusBadRequest
	case CodeNotFound, CodeNotRegistered, CodeNotResolved, CodeDidNotVote:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyRegistered, CodeAlreadyVoted,
		CodeAlreadyResolved, CodeAlreadyClaimed:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeBootstrapClosed, CodeSelfInvite,
		CodeInsufficientStake, CodeZeroReputation, CodeZeroWeight:
		return http.StatusForbidden
	case CodeEpochNotEnded, CodeNotEnoughVotes:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
