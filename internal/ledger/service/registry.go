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

// Bootstrap admits an identity through the bounded bootstrap window. Initial
// reputation is InitialTrust and the identity has no inviter, so it can never
// be cascaded against.
func (s *Service) Bootstrap(ctx context.Context, identity id.IdentityID, commitment id.Commitment) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Bootstrap")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if commitment == "" {
		return nil, dErrors.New(dErrors.CodeInvalidCommitment, "commitment is required")
	}

	if _, err := s.store.GetIdentity(ctx, identity); err == nil {
		return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "identity already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	used, err := s.store.BootstrapUsed(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read bootstrap count")
	}
	if used >= s.params.BootstrapSlots {
		return nil, dErrors.New(dErrors.CodeBootstrapClosed, "bootstrap window is closed")
	}

	ident := &models.Identity{
		ID:           identity,
		Reputation:   s.params.InitialTrust,
		Commitment:   commitment,
		Bootstrap:    true,
		RegisteredAt: s.now(),
	}
	if err := s.store.RegisterIdentity(ctx, ident); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "identity already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
	}

	if s.metrics != nil {
		s.metrics.IdentitiesAdmitted.WithLabelValues("bootstrap").Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   audit.ActionIdentityBootstrapped,
		Identity: identity,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "identity bootstrapped",
			"identity", identity,
			"slots_used", used+1,
		)
	}
	return ident, nil
}

// Invite admits an identity on an existing member's vouching. The stake is
// lazy: nothing is deducted now, but the inviter must hold at least
// InviteStake reputation so the slash is collectible if the invitee later
// decays to zero.
func (s *Service) Invite(ctx context.Context, inviter, invitee id.IdentityID, commitment id.Commitment) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Invite")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if commitment == "" {
		return nil, dErrors.New(dErrors.CodeInvalidCommitment, "commitment is required")
	}
	if inviter == invitee {
		return nil, dErrors.New(dErrors.CodeSelfInvite, "identity cannot invite itself")
	}

	sponsor, err := s.store.GetIdentity(ctx, inviter)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotRegistered, "inviter is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up inviter")
	}
	if sponsor.Reputation < s.params.InviteStake {
		return nil, dErrors.Newf(dErrors.CodeInsufficientStake,
			"inviter reputation %d below stake %d", sponsor.Reputation, s.params.InviteStake)
	}

	if _, err := s.store.GetIdentity(ctx, invitee); err == nil {
		return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "invitee already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up invitee")
	}

	ident := &models.Identity{
		ID:           invitee,
		Reputation:   s.params.InitialTrust,
		Inviter:      inviter,
		Commitment:   commitment,
		RegisteredAt: s.now(),
	}
	if err := s.store.RegisterIdentity(ctx, ident); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "invitee already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register invitee")
	}

	if s.metrics != nil {
		s.metrics.IdentitiesAdmitted.WithLabelValues("invite").Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   audit.ActionIdentityInvited,
		Identity: invitee,
		Actor:    inviter.String(),
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "identity invited",
			"identity", invitee,
			"inviter", inviter,
		)
	}
	return ident, nil
}

// Identity returns the registered identity, or CodeNotRegistered.
func (s *Service) Identity(ctx context.Context, identity id.IdentityID) (*models.Identity, error) {
	ident, err := s.store.GetIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotRegistered, "identity is not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return ident, nil
}

// BootstrapRemaining reports how many bootstrap admissions are left.
func (s *Service) BootstrapRemaining(ctx context.Context) (int, error) {
	used, err := s.store.BootstrapUsed(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read bootstrap count")
	}
	remaining := s.params.BootstrapSlots - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
