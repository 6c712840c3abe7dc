// Package audit captures structured records of every state transition the
// ledger applies. Events are transport-agnostic so stores and sinks can fan
// out: tests use the in-memory store, production publishes to Kafka.
package audit

import (
	"context"
	"time"

	id "credence/pkg/domain"
)

// Action names a ledger state transition.
type Action string

const (
	ActionIdentityBootstrapped Action = "identity_bootstrapped"
	ActionIdentityInvited      Action = "identity_invited"
	ActionVoteCast             Action = "vote_cast"
	ActionEpochAdvanced        Action = "epoch_advanced"
	ActionItemResolved         Action = "item_resolved"
	ActionRewardClaimed        Action = "reward_claimed"
	ActionPenaltyApplied       Action = "penalty_applied"
	ActionInviterSlashed       Action = "inviter_slashed"
	ActionModerationApplied    Action = "moderation_applied"
)

// Event is emitted from domain logic to capture a state transition. Identity
// fields are pseudonymous identifiers; events never carry commitments,
// secrets, or content bodies.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	Identity  id.IdentityID `json:"identity,omitempty"`
	// Actor tracks who triggered the transition when different from Identity:
	// the inviter on invites, the moderator on moderation actions.
	Actor string      `json:"actor,omitempty"`
	Item  id.ItemHash `json:"item,omitempty"`
	Epoch uint64      `json:"epoch"`
	// Decision records the outcome where one exists ("true"/"false" for
	// resolutions, the chosen side for votes).
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Store persists audit events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}
