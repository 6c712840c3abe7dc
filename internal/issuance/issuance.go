// Package issuance mints registration material: a one-time secret and the
// commitment derived from it. Clients are expected to run this derivation
// themselves; the endpoint exists for operators and test harnesses. The
// secret is returned once and never stored.
package issuance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// SecretLen is the byte length of a registration secret.
const SecretLen = 32

// Material is a freshly minted secret and its commitment.
type Material struct {
	Secret     string        `json:"secret"`
	Commitment id.Commitment `json:"commitment"`
}

// Mint draws a random secret and derives its commitment.
func Mint() (Material, error) {
	secret := make([]byte, SecretLen)
	if _, err := rand.Read(secret); err != nil {
		return Material{}, fmt.Errorf("failed to draw registration secret: %w", err)
	}
	sum := blake2b.Sum256(secret)
	return Material{
		Secret:     hex.EncodeToString(secret),
		Commitment: id.Commitment(hex.EncodeToString(sum[:])),
	}, nil
}

// Derive recomputes the commitment for a hex-encoded secret. Used to check
// material produced elsewhere before registering with it.
func Derive(secretHex string) (id.Commitment, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil || len(secret) != SecretLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret must be 32 bytes hex encoded")
	}
	sum := blake2b.Sum256(secret)
	return id.Commitment(hex.EncodeToString(sum[:])), nil
}
