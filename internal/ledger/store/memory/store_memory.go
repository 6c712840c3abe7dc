package memory

import (
	"context"
	"sync"
	"time"

	"credence/internal/ledger/models"
	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

type tallyKey struct {
	item  id.ItemHash
	epoch uint64
}

type receiptKey struct {
	item     id.ItemHash
	epoch    uint64
	identity id.IdentityID
}

// Store is the in-memory ledger store. All records live in maps guarded by a
// single RWMutex; compound writes mutate under one lock acquisition so they
// are atomic with respect to every other call.
type Store struct {
	mu            sync.RWMutex
	identities    map[id.IdentityID]*models.Identity
	bootstrapUsed int
	epoch         models.EpochState
	tallies       map[tallyKey]*models.EpochTally
	receipts      map[receiptKey]*models.VoteReceipt
	resolutions   map[tallyKey]*models.Resolution
	claims        map[receiptKey]*models.ClaimRecord
}

// New creates an empty store with the epoch clock starting now.
func New() *Store {
	return NewAt(time.Now())
}

// NewAt creates an empty store with epoch 0 starting at the given instant.
func NewAt(start time.Time) *Store {
	return &Store{
		identities:  make(map[id.IdentityID]*models.Identity),
		epoch:       models.EpochState{Number: 0, StartedAt: start},
		tallies:     make(map[tallyKey]*models.EpochTally),
		receipts:    make(map[receiptKey]*models.VoteReceipt),
		resolutions: make(map[tallyKey]*models.Resolution),
		claims:      make(map[receiptKey]*models.ClaimRecord),
	}
}

func (s *Store) GetIdentity(_ context.Context, identity id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (s *Store) RegisterIdentity(_ context.Context, ident *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.identities[ident.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *ident
	s.identities[ident.ID] = &cp
	if ident.Bootstrap {
		s.bootstrapUsed++
	}
	return nil
}

func (s *Store) BootstrapUsed(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapUsed, nil
}

func (s *Store) Epoch(_ context.Context) (models.EpochState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, nil
}

func (s *Store) AdvanceEpoch(_ context.Context, current uint64, next models.EpochState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.Number != current {
		return sentinel.ErrStale
	}
	s.epoch = next
	return nil
}

func (s *Store) Tally(_ context.Context, item id.ItemHash, epoch uint64) (*models.EpochTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally, ok := s.tallies[tallyKey{item, epoch}]
	if !ok {
		return nil, nil
	}
	cp := *tally
	return &cp, nil
}

func (s *Store) Receipt(_ context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.VoteReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[receiptKey{item, epoch, identity}]
	if !ok {
		return nil, nil
	}
	cp := *receipt
	return &cp, nil
}

func (s *Store) RecordVote(_ context.Context, receipt *models.VoteReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rk := receiptKey{receipt.Item, receipt.Epoch, receipt.Identity}
	if _, exists := s.receipts[rk]; exists {
		return sentinel.ErrConflict
	}

	cp := *receipt
	s.receipts[rk] = &cp

	tk := tallyKey{receipt.Item, receipt.Epoch}
	tally, ok := s.tallies[tk]
	if !ok {
		// Tallies are created lazily on first vote.
		tally = &models.EpochTally{Item: receipt.Item, Epoch: receipt.Epoch}
		s.tallies[tk] = tally
	}
	if receipt.Side {
		tally.WeightedTrue += receipt.Weight
		tally.TrueCount++
	} else {
		tally.WeightedFalse += receipt.Weight
		tally.FalseCount++
	}
	return nil
}

func (s *Store) Resolution(_ context.Context, item id.ItemHash, epoch uint64) (*models.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resolutions[tallyKey{item, epoch}]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (s *Store) PutResolution(_ context.Context, res *models.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := tallyKey{res.Item, res.Epoch}
	if _, exists := s.resolutions[tk]; exists {
		return sentinel.ErrConflict
	}
	cp := *res
	s.resolutions[tk] = &cp
	return nil
}

func (s *Store) Claim(_ context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[receiptKey{item, epoch, identity}]
	if !ok {
		return nil, nil
	}
	cp := *claim
	return &cp, nil
}

func (s *Store) ApplyClaim(_ context.Context, claim *models.ClaimRecord, changes []models.ReputationChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := receiptKey{claim.Item, claim.Epoch, claim.Identity}
	if _, exists := s.claims[ck]; exists {
		return sentinel.ErrConflict
	}
	for _, change := range changes {
		if _, ok := s.identities[change.Identity]; !ok {
			return sentinel.ErrNotFound
		}
	}

	cp := *claim
	s.claims[ck] = &cp
	for _, change := range changes {
		s.identities[change.Identity].Reputation = change.Reputation
	}
	return nil
}

func (s *Store) ApplyReputationChanges(_ context.Context, changes []models.ReputationChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, change := range changes {
		if _, ok := s.identities[change.Identity]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, change := range changes {
		s.identities[change.Identity].Reputation = change.Reputation
	}
	return nil
}
