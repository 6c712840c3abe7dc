// Package store defines the persistence interface of the ledger. Two
// implementations exist: an in-memory store for tests and single-node runs,
// and a PostgreSQL store for durable deployments. Both enforce write-once
// semantics at the storage layer and commit each compound write as one unit,
// so a failed operation never leaves partial state behind.
package store

import (
	"context"

	"credence/internal/ledger/models"
	id "credence/pkg/domain"
)

// Ledger is the persistence port of the reputation ledger.
//
// Absent records are reported as (nil, nil) from getters; sentinel.ErrNotFound
// is reserved for lookups the caller asserted must exist (identities).
// Write-once violations surface as sentinel.ErrConflict.
type Ledger interface {
	// GetIdentity returns the identity or sentinel.ErrNotFound.
	GetIdentity(ctx context.Context, identity id.IdentityID) (*models.Identity, error)

	// RegisterIdentity creates the identity record; when the identity was
	// admitted through bootstrap it also increments the bootstrap admission
	// count in the same unit. Returns sentinel.ErrConflict if the identity
	// already exists.
	RegisterIdentity(ctx context.Context, ident *models.Identity) error

	// BootstrapUsed returns how many bootstrap admissions have occurred.
	BootstrapUsed(ctx context.Context) (int, error)

	// Epoch returns the current epoch number and start timestamp.
	Epoch(ctx context.Context) (models.EpochState, error)

	// AdvanceEpoch replaces the epoch scalar. The caller supplies the epoch
	// number it read; the store returns sentinel.ErrStale when the stored
	// number differs, keeping the advance race-free on shared backends.
	AdvanceEpoch(ctx context.Context, current uint64, next models.EpochState) error

	// Tally returns the tally for (item, epoch), or nil when no votes exist.
	Tally(ctx context.Context, item id.ItemHash, epoch uint64) (*models.EpochTally, error)

	// Receipt returns the vote receipt for (item, epoch, identity), or nil.
	Receipt(ctx context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.VoteReceipt, error)

	// RecordVote writes the receipt and folds its weight into the matching
	// tally in one unit. Returns sentinel.ErrConflict when a receipt already
	// exists under the key, leaving the tally untouched.
	RecordVote(ctx context.Context, receipt *models.VoteReceipt) error

	// Resolution returns the resolution for (item, epoch), or nil.
	Resolution(ctx context.Context, item id.ItemHash, epoch uint64) (*models.Resolution, error)

	// PutResolution records the resolution. Returns sentinel.ErrConflict when
	// one already exists for the key; the stored value is never altered.
	PutResolution(ctx context.Context, res *models.Resolution) error

	// Claim returns the claim record for (item, epoch, identity), or nil.
	Claim(ctx context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.ClaimRecord, error)

	// ApplyClaim writes the claim record and the reputation changes it
	// entails (claimant, plus inviter when the cascade fires) in one unit.
	// Returns sentinel.ErrConflict when the claim already exists.
	ApplyClaim(ctx context.Context, claim *models.ClaimRecord, changes []models.ReputationChange) error

	// ApplyReputationChanges applies absolute reputation assignments in one
	// unit. Used by moderation actions outside the claim path.
	ApplyReputationChanges(ctx context.Context, changes []models.ReputationChange) error
}
