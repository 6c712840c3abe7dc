//go:build integration

package feed_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/feed"
	"credence/internal/ledger/models"
	"credence/internal/ledger/service"
	"credence/internal/ledger/store/memory"
	platformredis "credence/internal/platform/redis"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/testutil/containers"
)

const testCommitment = "4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b"

func TestFeedWithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.StartRedis(t)
	ctx := context.Background()

	ledger, err := service.New(memory.New(), models.DefaultParams())
	require.NoError(t, err)
	svc, err := feed.New(platformredis.Wrap(rc.Client), ledger, time.Minute, 10)
	require.NoError(t, err)

	voter := id.IdentityID("feed-voter")
	commitment, err := id.ParseCommitment(testCommitment)
	require.NoError(t, err)
	_, err = ledger.Bootstrap(ctx, voter, commitment)
	require.NoError(t, err)

	first := feed.ContentItem{
		Hash:       feed.HashContent("first claim"),
		Text:       "first claim",
		ObservedAt: time.Now(),
	}
	second := feed.ContentItem{
		Hash:       feed.HashContent("second claim"),
		Text:       "second claim",
		ObservedAt: time.Now(),
	}
	require.NoError(t, svc.Ingest(ctx, first))
	require.NoError(t, svc.Ingest(ctx, second))

	_, err = ledger.CastVote(ctx, voter, second.Hash, true)
	require.NoError(t, err)

	t.Run("item lookup", func(t *testing.T) {
		got, err := svc.Item(ctx, first.Hash)
		require.NoError(t, err)
		assert.Equal(t, "first claim", got.Text)

		_, err = svc.Item(ctx, feed.HashContent("never ingested"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("recent joins tallies", func(t *testing.T) {
		entries, err := svc.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		// Most recent first.
		assert.Equal(t, second.Hash, entries[0].Hash)
		assert.Equal(t, 1, entries[0].TrueCount)
		assert.NotZero(t, entries[0].WeightedTrue)

		assert.Equal(t, first.Hash, entries[1].Hash)
		assert.Zero(t, entries[1].TrueCount)
		assert.Zero(t, entries[1].WeightedTrue)
	})

	t.Run("re-ingest dedupes in feed", func(t *testing.T) {
		require.NoError(t, svc.Ingest(ctx, first))
		entries, err := svc.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.Hash, entries[0].Hash)
	})

	t.Run("expired item drops out", func(t *testing.T) {
		rc.Flush(t)

		short := feed.ContentItem{Hash: feed.HashContent("ephemeral"), Text: "ephemeral"}
		blink, err := feed.New(platformredis.Wrap(rc.Client), ledger, 50*time.Millisecond, 10)
		require.NoError(t, err)
		require.NoError(t, blink.Ingest(ctx, short))

		time.Sleep(100 * time.Millisecond)
		entries, err := blink.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestIngestLongContent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.StartRedis(t)
	ctx := context.Background()

	ledger, err := service.New(memory.New(), models.DefaultParams())
	require.NoError(t, err)
	svc, err := feed.New(platformredis.Wrap(rc.Client), ledger, time.Minute, 5)
	require.NoError(t, err)

	text := strings.Repeat("long form content ", 512)
	item := feed.ContentItem{Hash: feed.HashContent(text), Text: text}
	require.NoError(t, svc.Ingest(ctx, item))

	got, err := svc.Item(ctx, item.Hash)
	require.NoError(t, err)
	assert.Equal(t, text, got.Text)
}
