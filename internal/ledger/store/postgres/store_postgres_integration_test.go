//go:build integration

package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/ledger/models"
	"credence/internal/ledger/store/postgres"
	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/testutil/containers"
)

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pg := containers.StartPostgres(t)
	st, err := postgres.New(context.Background(), pg.URL)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func itemOf(seed string) id.ItemHash {
	return id.ItemHash(seed + strings.Repeat("0", 64-len(seed)))
}

func TestPostgresIdentities(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	ident := &models.Identity{
		ID:           "pg-alice",
		Reputation:   10,
		Commitment:   id.Commitment(strings.Repeat("ab", 32)),
		Bootstrap:    true,
		RegisteredAt: time.Now(),
	}
	require.NoError(t, st.RegisterIdentity(ctx, ident))

	t.Run("round trip", func(t *testing.T) {
		got, err := st.GetIdentity(ctx, "pg-alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 10, got.Reputation)
		assert.True(t, got.Bootstrap)
		assert.True(t, got.Inviter.IsZero())
	})

	t.Run("absent returns nil", func(t *testing.T) {
		got, err := st.GetIdentity(ctx, "pg-nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate register conflicts", func(t *testing.T) {
		err := st.RegisterIdentity(ctx, ident)
		require.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("bootstrap used counts only bootstrap rows", func(t *testing.T) {
		invited := &models.Identity{
			ID:           "pg-bob",
			Reputation:   10,
			Inviter:      "pg-alice",
			Commitment:   id.Commitment(strings.Repeat("cd", 32)),
			RegisteredAt: time.Now(),
		}
		require.NoError(t, st.RegisterIdentity(ctx, invited))

		used, err := st.BootstrapUsed(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, used)
	})
}

func TestPostgresEpochAdvance(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	epoch, err := st.Epoch(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), epoch.Number)

	next := models.EpochState{Number: 1, StartedAt: time.Now()}
	require.NoError(t, st.AdvanceEpoch(ctx, 0, next))

	t.Run("number advanced", func(t *testing.T) {
		got, err := st.Epoch(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Number)
	})

	t.Run("stale advance rejected", func(t *testing.T) {
		err := st.AdvanceEpoch(ctx, 0, models.EpochState{Number: 1, StartedAt: time.Now()})
		require.ErrorIs(t, err, sentinel.ErrStale)
	})
}

func TestPostgresVotes(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	item := itemOf("beef")

	receipt := &models.VoteReceipt{
		Item:      item,
		Epoch:     0,
		Identity:  "pg-voter",
		Side:      true,
		Weight:    3162,
		Nullifier: strings.Repeat("11", 32),
		CastAt:    time.Now(),
	}
	require.NoError(t, st.RecordVote(ctx, receipt))

	t.Run("tally reflects the vote", func(t *testing.T) {
		tally, err := st.Tally(ctx, item, 0)
		require.NoError(t, err)
		require.NotNil(t, tally)
		assert.Equal(t, uint64(3162), tally.WeightedTrue)
		assert.Equal(t, 1, tally.TrueCount)
		assert.Zero(t, tally.FalseCount)
	})

	t.Run("double vote conflicts and leaves tally intact", func(t *testing.T) {
		err := st.RecordVote(ctx, receipt)
		require.ErrorIs(t, err, sentinel.ErrConflict)

		tally, err := st.Tally(ctx, item, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, tally.TrueCount)
	})

	t.Run("receipt round trip", func(t *testing.T) {
		got, err := st.Receipt(ctx, item, 0, "pg-voter")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Side)
		assert.Equal(t, receipt.Nullifier, got.Nullifier)
	})

	t.Run("same identity different epoch is allowed", func(t *testing.T) {
		again := *receipt
		again.Epoch = 1
		require.NoError(t, st.RecordVote(ctx, &again))
	})
}

func TestPostgresResolutionAndClaim(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	item := itemOf("cafe")

	for _, ident := range []string{"pg-winner", "pg-loser", "pg-inviter"} {
		require.NoError(t, st.RegisterIdentity(ctx, &models.Identity{
			ID:           id.IdentityID(ident),
			Reputation:   10,
			Commitment:   id.Commitment(strings.Repeat("ef", 32)),
			RegisteredAt: time.Now(),
		}))
	}

	res := &models.Resolution{Item: item, Epoch: 0, Consensus: true, ResolvedAt: time.Now()}
	require.NoError(t, st.PutResolution(ctx, res))

	t.Run("resolution is write-once", func(t *testing.T) {
		err := st.PutResolution(ctx, &models.Resolution{Item: item, Epoch: 0, Consensus: false, ResolvedAt: time.Now()})
		require.ErrorIs(t, err, sentinel.ErrConflict)

		got, err := st.Resolution(ctx, item, 0)
		require.NoError(t, err)
		assert.True(t, got.Consensus)
	})

	claim := &models.ClaimRecord{
		Item: item, Epoch: 0, Identity: "pg-winner",
		Rewarded: true, Delta: 2, ClaimedAt: time.Now(),
	}
	changes := []models.ReputationChange{{Identity: "pg-winner", Reputation: 12}}

	t.Run("claim applies reputation atomically", func(t *testing.T) {
		require.NoError(t, st.ApplyClaim(ctx, claim, changes))

		got, err := st.GetIdentity(ctx, "pg-winner")
		require.NoError(t, err)
		assert.Equal(t, 12, got.Reputation)

		rec, err := st.Claim(ctx, item, 0, "pg-winner")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.Rewarded)
	})

	t.Run("double claim conflicts without touching reputation", func(t *testing.T) {
		err := st.ApplyClaim(ctx, claim, []models.ReputationChange{{Identity: "pg-winner", Reputation: 50}})
		require.ErrorIs(t, err, sentinel.ErrConflict)

		got, err := st.GetIdentity(ctx, "pg-winner")
		require.NoError(t, err)
		assert.Equal(t, 12, got.Reputation)
	})

	t.Run("cascade changes commit together", func(t *testing.T) {
		loserClaim := &models.ClaimRecord{
			Item: item, Epoch: 0, Identity: "pg-loser",
			Rewarded: false, Delta: -5, ClaimedAt: time.Now(),
		}
		err := st.ApplyClaim(ctx, loserClaim, []models.ReputationChange{
			{Identity: "pg-loser", Reputation: 5},
			{Identity: "pg-inviter", Reputation: 5},
		})
		require.NoError(t, err)

		loser, err := st.GetIdentity(ctx, "pg-loser")
		require.NoError(t, err)
		assert.Equal(t, 5, loser.Reputation)
		inviter, err := st.GetIdentity(ctx, "pg-inviter")
		require.NoError(t, err)
		assert.Equal(t, 5, inviter.Reputation)
	})
}
