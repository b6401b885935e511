package perspective

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheEntry is the stored cache payload. The stored bridgingScore is kept
// for observability only; reads always recompute the composite from the four
// raw attributes, so a formula change takes effect without a cache flush.
type cacheEntry struct {
	PersonalStory float64 `json:"personalStory"`
	Reasoning     float64 `json:"reasoning"`
	Curiosity     float64 `json:"curiosity"`
	Toxicity      float64 `json:"toxicity"`
	BridgingScore float64 `json:"bridgingScore"`
}

// ScoreCache is a content-addressed cache of classifier responses,
// namespaced by deployment environment so development traffic cannot poison
// production entries.
type ScoreCache struct {
	rdb       *redis.Client
	envPrefix string
	ttl       time.Duration
}

// NewScoreCache creates a score cache.
func NewScoreCache(rdb *redis.Client, envPrefix string, ttl time.Duration) *ScoreCache {
	return &ScoreCache{rdb: rdb, envPrefix: envPrefix, ttl: ttl}
}

// Key derives the content address: lowercased, trimmed text → SHA-256 hex,
// prefixed with the environment token.
func (c *ScoreCache) Key(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s-perspective:%s", c.envPrefix, hex.EncodeToString(sum[:]))
}

// Get returns the cached attribute scores for the text, or false on a miss.
// A malformed entry is treated as a miss.
func (c *ScoreCache) Get(ctx context.Context, text string) (AttributeScores, bool) {
	data, err := c.rdb.Get(ctx, c.Key(text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Score cache read failed", "error", err)
		}
		return AttributeScores{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("Score cache entry malformed, treating as miss", "error", err)
		return AttributeScores{}, false
	}
	return AttributeScores{
		PersonalStory: entry.PersonalStory,
		Reasoning:     entry.Reasoning,
		Curiosity:     entry.Curiosity,
		Toxicity:      entry.Toxicity,
	}, true
}

// Put stores the scores. Best-effort: failures are logged and swallowed; a
// lost write costs at most one redundant classifier call.
func (c *ScoreCache) Put(ctx context.Context, text string, scores AttributeScores) {
	entry := cacheEntry{
		PersonalStory: scores.PersonalStory,
		Reasoning:     scores.Reasoning,
		Curiosity:     scores.Curiosity,
		Toxicity:      scores.Toxicity,
		BridgingScore: scores.BridgingScore(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("Score cache marshal failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.Key(text), data, c.ttl).Err(); err != nil {
		slog.Warn("Score cache write failed", "error", err)
	}
}
