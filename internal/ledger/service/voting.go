package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"

	"credence/internal/ledger/models"
	"credence/internal/ledger/weight"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
)

// CastVote records one weighted vote for the calling identity on an item in
// the current epoch. The receipt write, side record, and tally update commit
// as one unit; a second vote under the same (item, epoch, identity) fails
// AlreadyVoted and changes nothing.
func (s *Service) CastVote(ctx context.Context, identity id.IdentityID, item id.ItemHash, side bool) (*models.VoteReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CastVote")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	ident, err := s.store.GetIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotRegistered, "identity is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	if ident.Reputation <= 0 {
		return nil, dErrors.New(dErrors.CodeZeroReputation, "identity has no reputation")
	}

	epoch, err := s.store.Epoch(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read epoch")
	}

	existing, err := s.store.Receipt(ctx, item, epoch.Number, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check vote receipt")
	}
	if existing != nil {
		return nil, dErrors.New(dErrors.CodeAlreadyVoted, "identity already voted on this item in this epoch")
	}

	w := weight.ForReputation(ident.Reputation)
	if w == 0 {
		return nil, dErrors.New(dErrors.CodeZeroWeight, "vote weight is zero")
	}

	receipt := &models.VoteReceipt{
		Item:      item,
		Epoch:     epoch.Number,
		Identity:  identity,
		Side:      side,
		Weight:    w,
		Nullifier: deriveNullifier(ident.Commitment, item, epoch.Number),
		CastAt:    s.now(),
	}
	if err := s.store.RecordVote(ctx, receipt); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyVoted, "identity already voted on this item in this epoch")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	if s.metrics != nil {
		s.metrics.VotesCast.WithLabelValues(models.SideLabel(side)).Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   audit.ActionVoteCast,
		Identity: identity,
		Item:     item,
		Epoch:    epoch.Number,
		Decision: models.SideLabel(side),
	})
	return receipt, nil
}

// deriveNullifier computes the uniqueness token over (commitment, item,
// epoch). Uniqueness is enforced by the receipt key bound to the caller
// identity, not by this token: the token makes the trust boundary explicit in
// the data model without pretending to be a zero-knowledge proof.
func deriveNullifier(commitment id.Commitment, item id.ItemHash, epoch uint64) string {
	var epochBytes [8]byte
	binary.BigEndian.PutUint64(epochBytes[:], epoch)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(commitment))
	h.Write([]byte(item))
	h.Write(epochBytes[:])
	return hex.EncodeToString(h.Sum(nil))
}

// AdvanceEpoch moves the global epoch counter forward once the minimum
// duration has elapsed. Permissionless: gated only by elapsed time, never by
// caller identity. Records under prior epochs remain readable and are never
// touched again.
func (s *Service) AdvanceEpoch(ctx context.Context) (models.EpochState, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.AdvanceEpoch")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	epoch, err := s.store.Epoch(ctx)
	if err != nil {
		return models.EpochState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read epoch")
	}

	now := s.now()
	if now.Sub(epoch.StartedAt) < s.params.EpochDuration {
		return models.EpochState{}, dErrors.Newf(dErrors.CodeEpochNotEnded,
			"epoch %d has %s remaining", epoch.Number, s.params.EpochDuration-now.Sub(epoch.StartedAt))
	}

	next := models.EpochState{Number: epoch.Number + 1, StartedAt: now}
	if err := s.store.AdvanceEpoch(ctx, epoch.Number, next); err != nil {
		return models.EpochState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance epoch")
	}

	if s.metrics != nil {
		s.metrics.EpochsAdvanced.Inc()
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionEpochAdvanced,
		Epoch:  next.Number,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "epoch advanced", "epoch", next.Number)
	}
	return next, nil
}

// EpochInfo reports the current epoch and the time remaining before it can be
// advanced.
func (s *Service) EpochInfo(ctx context.Context) (models.EpochState, time.Duration, error) {
	epoch, err := s.store.Epoch(ctx)
	if err != nil {
		return models.EpochState{}, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read epoch")
	}
	remaining := s.params.EpochDuration - s.now().Sub(epoch.StartedAt)
	if remaining < 0 {
		remaining = 0
	}
	return epoch, remaining, nil
}

// TallyFor returns the tally for (item, epoch); absent tallies read as zero.
func (s *Service) TallyFor(ctx context.Context, item id.ItemHash, epoch uint64) (*models.EpochTally, error) {
	tally, err := s.store.Tally(ctx, item, epoch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read tally")
	}
	if tally == nil {
		tally = &models.EpochTally{Item: item, Epoch: epoch}
	}
	return tally, nil
}
