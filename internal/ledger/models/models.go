// Package models defines the persisted records of the reputation ledger.
// Every record except Identity reputation is write-once: receipts,
// resolutions, and claims are never edited after creation, and a tally is
// never touched once the epoch counter has advanced past its epoch.
package models

import (
	"time"

	id "credence/pkg/domain"
)

// Reputation bounds. Reputation is a bounded integer mutated only by the
// resolution engine and the slashing cascade.
const (
	MinReputation = 0
	MaxReputation = 100
)

// Params are the protocol constants. Reward, penalty, and stake amounts are
// fixed; bootstrap capacity and epoch duration are operator-tunable at
// deployment time and constant thereafter.
type Params struct {
	BootstrapSlots    int
	InitialTrust      int
	InviteStake       int
	RewardAmount      int
	PenaltyAmount     int
	MinVotesToResolve int
	EpochDuration     time.Duration
}

// DefaultParams returns the protocol defaults. An identity admitted with
// InitialTrust survives InitialTrust/PenaltyAmount consensus-losing rounds
// before decaying to zero and triggering the inviter slash.
func DefaultParams() Params {
	return Params{
		BootstrapSlots:    16,
		InitialTrust:      10,
		InviteStake:       5,
		RewardAmount:      2,
		PenaltyAmount:     5,
		MinVotesToResolve: 3,
		EpochDuration:     24 * time.Hour,
	}
}

// Identity is a registered participant. Created once, never deleted.
// Reputation is the only mutable field.
type Identity struct {
	ID         id.IdentityID
	Reputation int
	// Inviter back-references the admitting identity for slashing
	// propagation only; empty for bootstrap admissions.
	Inviter      id.IdentityID
	Commitment   id.Commitment
	Bootstrap    bool
	RegisteredAt time.Time
}

// EpochState is the single global scalar: current epoch number and when it
// began. It advances monotonically and only when the minimum duration has
// elapsed.
type EpochState struct {
	Number    uint64
	StartedAt time.Time
}

// EpochTally aggregates weighted votes for one item within one epoch.
// Weighted sums are in weight units (reputation square root times the weight
// scale); raw counts gate resolution eligibility.
type EpochTally struct {
	Item          id.ItemHash
	Epoch         uint64
	WeightedTrue  uint64
	WeightedFalse uint64
	TrueCount     int
	FalseCount    int
}

// VoteReceipt marks that an identity voted on an item in an epoch. Write-once:
// a second write under the same key fails, it never overwrites.
type VoteReceipt struct {
	Item     id.ItemHash
	Epoch    uint64
	Identity id.IdentityID
	Side     bool
	Weight   uint64
	// Nullifier is the uniqueness token derived from the voter's commitment,
	// the item, and the epoch. Uniqueness is enforced by the receipt key, not
	// by the token: the token is bound to the caller identity, a deliberate
	// trust-boundary choice over unverified caller-supplied tokens.
	Nullifier string
	CastAt    time.Time
}

// Resolution fixes the consensus outcome for (item, epoch). Written at most
// once and permanent thereafter. Consensus is true only on a strict weighted
// majority; ties resolve to false (disputed).
type Resolution struct {
	Item       id.ItemHash
	Epoch      uint64
	Consensus  bool
	ResolvedAt time.Time
}

// ClaimRecord marks that an identity collected its post-resolution delta for
// (item, epoch). Prevents double application of reward or penalty.
type ClaimRecord struct {
	Item      id.ItemHash
	Epoch     uint64
	Identity  id.IdentityID
	Rewarded  bool
	Delta     int
	ClaimedAt time.Time
}

// ReputationChange is an absolute reputation assignment computed by the
// service and applied by the store. Changes grouped in one slice commit
// atomically so a claim and its cascade are never observed half-applied.
type ReputationChange struct {
	Identity   id.IdentityID
	Reputation int
}

// Side labels for audit records and API payloads.
func SideLabel(side bool) string {
	if side {
		return "true"
	}
	return "false"
}
