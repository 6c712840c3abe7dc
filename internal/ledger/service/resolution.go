package service

import (
	"context"
	"errors"

	"credence/internal/ledger/models"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
)

// Resolve fixes the consensus outcome for an item in the current epoch.
// Permissionless and idempotent-rejecting: gated only by the vote threshold,
// and a second call fails AlreadyResolved with the stored value unchanged.
// Consensus is true only on a strict weighted majority; ties are disputed.
func (s *Service) Resolve(ctx context.Context, item id.ItemHash) (*models.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Resolve")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	epoch, err := s.store.Epoch(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read epoch")
	}

	existing, err := s.store.Resolution(ctx, item, epoch.Number)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check resolution")
	}
	if existing != nil {
		return nil, dErrors.New(dErrors.CodeAlreadyResolved, "item already resolved in this epoch")
	}

	tally, err := s.store.Tally(ctx, item, epoch.Number)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read tally")
	}
	total := 0
	if tally != nil {
		total = tally.TrueCount + tally.FalseCount
	}
	if total < s.params.MinVotesToResolve {
		return nil, dErrors.Newf(dErrors.CodeNotEnoughVotes,
			"%d of %d required votes", total, s.params.MinVotesToResolve)
	}

	res := &models.Resolution{
		Item:       item,
		Epoch:      epoch.Number,
		Consensus:  tally.WeightedTrue > tally.WeightedFalse,
		ResolvedAt: s.now(),
	}
	if err := s.store.PutResolution(ctx, res); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyResolved, "item already resolved in this epoch")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record resolution")
	}

	if s.metrics != nil {
		s.metrics.ItemsResolved.Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   audit.ActionItemResolved,
		Item:     item,
		Epoch:    epoch.Number,
		Decision: models.SideLabel(res.Consensus),
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "item resolved",
			"item", item,
			"epoch", epoch.Number,
			"consensus", res.Consensus,
		)
	}
	return res, nil
}

// Claim settles the post-resolution reputation delta for one voter. Winners
// gain RewardAmount capped at the maximum; losers lose PenaltyAmount floored
// at zero, and a penalty that drives reputation to exactly zero additionally
// slashes the voter's inviter. The claim record and every reputation change
// commit as one unit.
func (s *Service) Claim(ctx context.Context, identity id.IdentityID, item id.ItemHash, epoch uint64) (*models.ClaimRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Claim")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.Resolution(ctx, item, epoch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read resolution")
	}
	if res == nil {
		return nil, dErrors.New(dErrors.CodeNotResolved, "item is not resolved for this epoch")
	}

	receipt, err := s.store.Receipt(ctx, item, epoch, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vote receipt")
	}
	if receipt == nil {
		return nil, dErrors.New(dErrors.CodeDidNotVote, "identity did not vote on this item in this epoch")
	}

	prior, err := s.store.Claim(ctx, item, epoch, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check claim record")
	}
	if prior != nil {
		return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "delta already collected")
	}

	ident, err := s.store.GetIdentity(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	rewarded := receipt.Side == res.Consensus
	var next int
	if rewarded {
		next = clampReputation(ident.Reputation + s.params.RewardAmount)
	} else {
		next = clampReputation(ident.Reputation - s.params.PenaltyAmount)
	}

	claim := &models.ClaimRecord{
		Item:      item,
		Epoch:     epoch,
		Identity:  identity,
		Rewarded:  rewarded,
		Delta:     next - ident.Reputation,
		ClaimedAt: s.now(),
	}
	changes := []models.ReputationChange{{Identity: identity, Reputation: next}}

	// Zero-crossing penalty fires the slashing cascade against the inviter.
	slashed, slashTarget := false, id.IdentityID("")
	if !rewarded && next == 0 && ident.Reputation > 0 && !ident.Inviter.IsZero() {
		inviter, err := s.store.GetIdentity(ctx, ident.Inviter)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up inviter")
		}
		if err == nil && inviter.Reputation >= s.params.InviteStake {
			changes = append(changes, models.ReputationChange{
				Identity:   inviter.ID,
				Reputation: clampReputation(inviter.Reputation - s.params.InviteStake),
			})
			slashed, slashTarget = true, inviter.ID
		}
	}

	if err := s.store.ApplyClaim(ctx, claim, changes); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "delta already collected")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply claim")
	}

	outcome := "penalty"
	action := audit.ActionPenaltyApplied
	if rewarded {
		outcome = "reward"
		action = audit.ActionRewardClaimed
	}
	if s.metrics != nil {
		s.metrics.ClaimsSettled.WithLabelValues(outcome).Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   action,
		Identity: identity,
		Item:     item,
		Epoch:    epoch,
		Decision: models.SideLabel(res.Consensus),
	})
	if slashed {
		if s.metrics != nil {
			s.metrics.SlashesApplied.Inc()
		}
		s.emit(ctx, audit.Event{
			Action:   audit.ActionInviterSlashed,
			Identity: slashTarget,
			Actor:    identity.String(),
			Item:     item,
			Epoch:    epoch,
			Reason:   "invitee reputation reached zero",
		})
	}
	return claim, nil
}

// Moderate applies an external moderation reduction to an identity. The same
// zero-crossing rule as penalties applies: driving reputation to exactly zero
// slashes the inviter. Requires moderator authentication at the transport
// layer; the ledger records who acted.
func (s *Service) Moderate(ctx context.Context, identity id.IdentityID, amount int, moderator string) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Moderate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "reduction amount must be positive")
	}

	ident, err := s.store.GetIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotRegistered, "identity is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	next := clampReputation(ident.Reputation - amount)
	changes := []models.ReputationChange{{Identity: identity, Reputation: next}}

	slashed, slashTarget := false, id.IdentityID("")
	if next == 0 && ident.Reputation > 0 && !ident.Inviter.IsZero() {
		inviter, err := s.store.GetIdentity(ctx, ident.Inviter)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up inviter")
		}
		if err == nil && inviter.Reputation >= s.params.InviteStake {
			changes = append(changes, models.ReputationChange{
				Identity:   inviter.ID,
				Reputation: clampReputation(inviter.Reputation - s.params.InviteStake),
			})
			slashed, slashTarget = true, inviter.ID
		}
	}

	if err := s.store.ApplyReputationChanges(ctx, changes); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply moderation")
	}

	s.emit(ctx, audit.Event{
		Action:   audit.ActionModerationApplied,
		Identity: identity,
		Actor:    moderator,
		Reason:   "external moderation action",
	})
	if slashed {
		if s.metrics != nil {
			s.metrics.SlashesApplied.Inc()
		}
		s.emit(ctx, audit.Event{
			Action:   audit.ActionInviterSlashed,
			Identity: slashTarget,
			Actor:    moderator,
			Reason:   "moderated identity reached zero",
		})
	}

	ident.Reputation = next
	return ident, nil
}

// ResolutionFor returns the resolution for (item, epoch), or CodeNotResolved.
func (s *Service) ResolutionFor(ctx context.Context, item id.ItemHash, epoch uint64) (*models.Resolution, error) {
	res, err := s.store.Resolution(ctx, item, epoch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read resolution")
	}
	if res == nil {
		return nil, dErrors.New(dErrors.CodeNotResolved, "item is not resolved for this epoch")
	}
	return res, nil
}

// Status reports an identity's vote and claim state for (item, epoch).
type Status struct {
	Voted   bool
	Side    bool
	Claimed bool
}

// StatusFor returns per-identity vote/claim status for (item, epoch).
func (s *Service) StatusFor(ctx context.Context, identity id.IdentityID, item id.ItemHash, epoch uint64) (Status, error) {
	receipt, err := s.store.Receipt(ctx, item, epoch, identity)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vote receipt")
	}
	claim, err := s.store.Claim(ctx, item, epoch, identity)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim record")
	}
	status := Status{Claimed: claim != nil}
	if receipt != nil {
		status.Voted = true
		status.Side = receipt.Side
	}
	return status, nil
}
