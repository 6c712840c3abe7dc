// Package postgres implements the ledger store on PostgreSQL via pgx.
// Compound writes run inside a single transaction so the write-once and
// atomicity guarantees of the store contract hold under crashes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credence/internal/ledger/models"
	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// Store persists ledger state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and ensures the schema exists.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool; used by integration tests.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	// Seed the singleton epoch row; a concurrent seed loses harmlessly.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_epoch (singleton, number, started_at)
		VALUES (TRUE, 0, now())
		ON CONFLICT (singleton) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("seed epoch: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	identity      TEXT PRIMARY KEY,
	reputation    INT NOT NULL CHECK (reputation BETWEEN 0 AND 100),
	inviter       TEXT NOT NULL DEFAULT '',
	commitment    TEXT NOT NULL,
	bootstrap     BOOLEAN NOT NULL DEFAULT FALSE,
	registered_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_epoch (
	singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	number     BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS epoch_tallies (
	item           TEXT NOT NULL,
	epoch          BIGINT NOT NULL,
	weighted_true  BIGINT NOT NULL DEFAULT 0,
	weighted_false BIGINT NOT NULL DEFAULT 0,
	true_count     INT NOT NULL DEFAULT 0,
	false_count    INT NOT NULL DEFAULT 0,
	PRIMARY KEY (item, epoch)
);

CREATE TABLE IF NOT EXISTS vote_receipts (
	item      TEXT NOT NULL,
	epoch     BIGINT NOT NULL,
	identity  TEXT NOT NULL,
	side      BOOLEAN NOT NULL,
	weight    BIGINT NOT NULL,
	nullifier TEXT NOT NULL,
	cast_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item, epoch, identity)
);

CREATE TABLE IF NOT EXISTS resolutions (
	item        TEXT NOT NULL,
	epoch       BIGINT NOT NULL,
	consensus   BOOLEAN NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item, epoch)
);

CREATE TABLE IF NOT EXISTS claim_records (
	item       TEXT NOT NULL,
	epoch      BIGINT NOT NULL,
	identity   TEXT NOT NULL,
	rewarded   BOOLEAN NOT NULL,
	delta      INT NOT NULL,
	claimed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item, epoch, identity)
);
`

func (s *Store) GetIdentity(ctx context.Context, identity id.IdentityID) (*models.Identity, error) {
	var ident models.Identity
	var inviter string
	err := s.pool.QueryRow(ctx, `
		SELECT identity, reputation, inviter, commitment, bootstrap, registered_at
		FROM identities WHERE identity = $1`, string(identity)).
		Scan(&ident.ID, &ident.Reputation, &inviter, &ident.Commitment, &ident.Bootstrap, &ident.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	ident.Inviter = id.IdentityID(inviter)
	return &ident, nil
}

func (s *Store) RegisterIdentity(ctx context.Context, ident *models.Identity) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO identities (identity, reputation, inviter, commitment, bootstrap, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO NOTHING`,
		string(ident.ID), ident.Reputation, string(ident.Inviter),
		string(ident.Commitment), ident.Bootstrap, ident.RegisteredAt)
	if err != nil {
		return fmt.Errorf("register identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) BootstrapUsed(ctx context.Context) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM identities WHERE bootstrap`).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("count bootstrap admissions: %w", err)
	}
	return used, nil
}

func (s *Store) Epoch(ctx context.Context) (models.EpochState, error) {
	var state models.EpochState
	err := s.pool.QueryRow(ctx,
		`SELECT number, started_at FROM ledger_epoch WHERE singleton`).
		Scan(&state.Number, &state.StartedAt)
	if err != nil {
		return models.EpochState{}, fmt.Errorf("read epoch: %w", err)
	}
	return state, nil
}

func (s *Store) AdvanceEpoch(ctx context.Context, current uint64, next models.EpochState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledger_epoch SET number = $1, started_at = $2
		WHERE singleton AND number = $3`,
		next.Number, next.StartedAt, current)
	if err != nil {
		return fmt.Errorf("advance epoch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrStale
	}
	return nil
}

func (s *Store) Tally(ctx context.Context, item id.ItemHash, epoch uint64) (*models.EpochTally, error) {
	var tally models.EpochTally
	err := s.pool.QueryRow(ctx, `
		SELECT item, epoch, weighted_true, weighted_false, true_count, false_count
		FROM epoch_tallies WHERE item = $1 AND epoch = $2`, string(item), epoch).
		Scan(&tally.Item, &tally.Epoch, &tally.WeightedTrue, &tally.WeightedFalse,
			&tally.TrueCount, &tally.FalseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tally: %w", err)
	}
	return &tally, nil
}

func (s *Store) Receipt(ctx context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.VoteReceipt, error) {
	var receipt models.VoteReceipt
	err := s.pool.QueryRow(ctx, `
		SELECT item, epoch, identity, side, weight, nullifier, cast_at
		FROM vote_receipts WHERE item = $1 AND epoch = $2 AND identity = $3`,
		string(item), epoch, string(identity)).
		Scan(&receipt.Item, &receipt.Epoch, &receipt.Identity, &receipt.Side,
			&receipt.Weight, &receipt.Nullifier, &receipt.CastAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &receipt, nil
}

func (s *Store) RecordVote(ctx context.Context, receipt *models.VoteReceipt) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO vote_receipts (item, epoch, identity, side, weight, nullifier, cast_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (item, epoch, identity) DO NOTHING`,
			string(receipt.Item), receipt.Epoch, string(receipt.Identity),
			receipt.Side, receipt.Weight, receipt.Nullifier, receipt.CastAt)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrConflict
		}

		trueWeight, falseWeight, trueInc, falseInc := uint64(0), uint64(0), 0, 0
		if receipt.Side {
			trueWeight, trueInc = receipt.Weight, 1
		} else {
			falseWeight, falseInc = receipt.Weight, 1
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO epoch_tallies (item, epoch, weighted_true, weighted_false, true_count, false_count)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (item, epoch) DO UPDATE SET
				weighted_true  = epoch_tallies.weighted_true  + EXCLUDED.weighted_true,
				weighted_false = epoch_tallies.weighted_false + EXCLUDED.weighted_false,
				true_count     = epoch_tallies.true_count     + EXCLUDED.true_count,
				false_count    = epoch_tallies.false_count    + EXCLUDED.false_count`,
			string(receipt.Item), receipt.Epoch, trueWeight, falseWeight, trueInc, falseInc)
		if err != nil {
			return fmt.Errorf("fold tally: %w", err)
		}
		return nil
	})
}

func (s *Store) Resolution(ctx context.Context, item id.ItemHash, epoch uint64) (*models.Resolution, error) {
	var res models.Resolution
	err := s.pool.QueryRow(ctx, `
		SELECT item, epoch, consensus, resolved_at
		FROM resolutions WHERE item = $1 AND epoch = $2`, string(item), epoch).
		Scan(&res.Item, &res.Epoch, &res.Consensus, &res.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resolution: %w", err)
	}
	return &res, nil
}

func (s *Store) PutResolution(ctx context.Context, res *models.Resolution) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO resolutions (item, epoch, consensus, resolved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item, epoch) DO NOTHING`,
		string(res.Item), res.Epoch, res.Consensus, res.ResolvedAt)
	if err != nil {
		return fmt.Errorf("put resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) Claim(ctx context.Context, item id.ItemHash, epoch uint64, identity id.IdentityID) (*models.ClaimRecord, error) {
	var claim models.ClaimRecord
	err := s.pool.QueryRow(ctx, `
		SELECT item, epoch, identity, rewarded, delta, claimed_at
		FROM claim_records WHERE item = $1 AND epoch = $2 AND identity = $3`,
		string(item), epoch, string(identity)).
		Scan(&claim.Item, &claim.Epoch, &claim.Identity, &claim.Rewarded,
			&claim.Delta, &claim.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return &claim, nil
}

func (s *Store) ApplyClaim(ctx context.Context, claim *models.ClaimRecord, changes []models.ReputationChange) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO claim_records (item, epoch, identity, rewarded, delta, claimed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (item, epoch, identity) DO NOTHING`,
			string(claim.Item), claim.Epoch, string(claim.Identity),
			claim.Rewarded, claim.Delta, claim.ClaimedAt)
		if err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrConflict
		}
		return applyChanges(ctx, tx, changes)
	})
}

func (s *Store) ApplyReputationChanges(ctx context.Context, changes []models.ReputationChange) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return applyChanges(ctx, tx, changes)
	})
}

func applyChanges(ctx context.Context, tx pgx.Tx, changes []models.ReputationChange) error {
	for _, change := range changes {
		tag, err := tx.Exec(ctx,
			`UPDATE identities SET reputation = $1 WHERE identity = $2`,
			change.Reputation, string(change.Identity))
		if err != nil {
			return fmt.Errorf("apply reputation change: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Truncate clears all ledger tables and reseeds epoch 0. Test helper.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`TRUNCATE identities, epoch_tallies, vote_receipts, resolutions, claim_records`); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE ledger_epoch SET number = 0, started_at = $1 WHERE singleton`, time.Now())
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
