// Package domain defines the typed identifiers shared across the ledger.
// Distinct types keep an item hash from ever being passed where an identity
// is expected; the compiler enforces the boundary.
package domain

import (
	"encoding/hex"
	"strings"

	dErrors "credence/pkg/domain-errors"
)

// IdentityID is the stable pseudonymous identifier of a participant. The
// execution environment supplies it with every call; the ledger never learns
// anything about the person behind it.
type IdentityID string

// ItemHash is the content-derived hash identifying an item under judgment.
// The ledger stores hashes only, never content bodies.
type ItemHash string

// Commitment is the one-way hash of a requester's secret, published at
// registration. The ledger stores the commitment and never sees the secret.
type Commitment string

// HashLen is the expected length in hex characters of item hashes and
// commitments (32 bytes).
const HashLen = 64

// maxIdentityLen bounds identity identifiers at API entry points.
const maxIdentityLen = 128

// ParseIdentityID validates an identity identifier from an untrusted source.
func ParseIdentityID(s string) (IdentityID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(s) > maxIdentityLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity exceeds maximum length")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must not contain whitespace")
	}
	return IdentityID(s), nil
}

// ParseItemHash validates a lowercase hex-encoded 32-byte item hash.
func ParseItemHash(s string) (ItemHash, error) {
	if err := validHex32(s); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid item hash")
	}
	return ItemHash(strings.ToLower(s)), nil
}

// ParseCommitment validates a hex-encoded 32-byte commitment. The all-zero
// commitment is rejected: it cannot have been derived from any secret.
func ParseCommitment(s string) (Commitment, error) {
	if err := validHex32(s); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidCommitment, "invalid commitment")
	}
	if strings.Trim(s, "0") == "" {
		return "", dErrors.New(dErrors.CodeInvalidCommitment, "zero commitment")
	}
	return Commitment(strings.ToLower(s)), nil
}

func validHex32(s string) error {
	if len(s) != HashLen {
		return dErrors.New(dErrors.CodeInvalidInput, "value must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "value must be hex encoded")
	}
	return nil
}

func (id IdentityID) String() string { return string(id) }
func (h ItemHash) String() string    { return string(h) }
func (c Commitment) String() string  { return string(c) }

// IsZero reports whether the identity is unset. Used for the optional inviter
// back-reference, which is a lookup key and never an owning pointer.
func (id IdentityID) IsZero() bool { return id == "" }
