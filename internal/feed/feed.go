// Package feed is the boundary to the content dissemination layer. It accepts
// (content_hash, raw_text, timestamp) triples, verifies the hash, and caches
// display text in Redis with a TTL. The ledger core never sees raw text; the
// feed joins cached entries with ledger tallies for the read API.
package feed

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"credence/internal/ledger/models"
	platformredis "credence/internal/platform/redis"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	pstrings "credence/pkg/platform/strings"
)

const (
	itemKeyPrefix = "feed:item:"
	recentKey     = "feed:recent"
)

// ContentItem is one triple from the dissemination layer.
type ContentItem struct {
	Hash       id.ItemHash `json:"hash"`
	Text       string      `json:"text"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Entry is a feed item joined with its current-epoch tally.
type Entry struct {
	ContentItem
	Epoch         uint64 `json:"epoch"`
	WeightedTrue  uint64 `json:"weighted_true"`
	WeightedFalse uint64 `json:"weighted_false"`
	TrueCount     int    `json:"true_count"`
	FalseCount    int    `json:"false_count"`
}

// TallyReader is the slice of the ledger the feed consults for joins.
type TallyReader interface {
	EpochInfo(ctx context.Context) (models.EpochState, time.Duration, error)
	TallyFor(ctx context.Context, item id.ItemHash, epoch uint64) (*models.EpochTally, error)
}

// Service caches disseminated content and serves the joined feed.
type Service struct {
	cache      *platformredis.Client
	ledger     TallyReader
	ttl        time.Duration
	recentSize int
	logger     *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates the feed service. The cache is required; the dissemination
// layer is fire-and-forget and entries expire after the TTL.
func New(cache *platformredis.Client, ledger TallyReader, ttl time.Duration, recentSize int, opts ...Option) (*Service, error) {
	if cache == nil {
		return nil, fmt.Errorf("feed cache is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger reader is required")
	}
	svc := &Service{
		cache:      cache,
		ledger:     ledger,
		ttl:        ttl,
		recentSize: recentSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// HashContent derives the content hash the ledger keys items by.
func HashContent(text string) id.ItemHash {
	sum := blake2b.Sum256([]byte(text))
	return id.ItemHash(hex.EncodeToString(sum[:]))
}

// Ingest validates and caches one triple. The supplied hash must match the
// text: the dissemination layer is untrusted and a mismatched hash would let
// content masquerade under another item's tally.
func (s *Service) Ingest(ctx context.Context, item ContentItem) error {
	if item.Text == "" {
		return dErrors.New(dErrors.CodeBadRequest, "content text is required")
	}
	if item.Hash != HashContent(item.Text) {
		return dErrors.New(dErrors.CodeBadRequest, "content hash does not match text")
	}
	if item.ObservedAt.IsZero() {
		item.ObservedAt = time.Now()
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode content item")
	}

	key := itemKeyPrefix + item.Hash.String()
	pipe := s.cache.TxPipeline()
	pipe.Set(ctx, key, payload, s.ttl)
	pipe.LPush(ctx, recentKey, item.Hash.String())
	pipe.LTrim(ctx, recentKey, 0, int64(s.recentSize-1))
	pipe.Expire(ctx, recentKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cache content item")
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "content ingested", "item", item.Hash)
	}
	return nil
}

// Item returns the cached triple for a hash, or CodeNotFound after expiry.
func (s *Service) Item(ctx context.Context, hash id.ItemHash) (*ContentItem, error) {
	raw, err := s.cache.Get(ctx, itemKeyPrefix+hash.String()).Bytes()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "content not cached")
	}
	var item ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode cached item")
	}
	return &item, nil
}

// Recent returns the most recent entries joined with current-epoch tallies.
// Expired items are skipped silently; their ledger records remain intact.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.recentSize {
		limit = s.recentSize
	}
	hashes, err := s.cache.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read recent list")
	}

	epoch, _, err := s.ledger.EpochInfo(ctx)
	if err != nil {
		return nil, err
	}

	hashes = pstrings.DedupeAndTrim(hashes)
	entries := make([]Entry, 0, len(hashes))
	for _, hash := range hashes {
		item, err := s.Item(ctx, id.ItemHash(hash))
		if err != nil {
			continue
		}
		tally, err := s.ledger.TallyFor(ctx, item.Hash, epoch.Number)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			ContentItem:   *item,
			Epoch:         epoch.Number,
			WeightedTrue:  tally.WeightedTrue,
			WeightedFalse: tally.WeightedFalse,
			TrueCount:     tally.TrueCount,
			FalseCount:    tally.FalseCount,
		})
	}
	return entries, nil
}
