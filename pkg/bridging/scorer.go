// Package bridging scores report claims and quotes with the external
// classifier and attaches the bridging composite to each. Scoring is
// best-effort: the pipeline result is already persisted when it runs, and
// per-item failures degrade the report rather than fail it.
package bridging

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/perspective"
	"github.com/civitas-labs/agora/pkg/ratelimit"
)

// Breaker thresholds: trip after 10 observed calls with >10% failures.
const (
	breakerMinRequests  = 10
	breakerFailureRatio = 0.10
)

// ItemKind identifies which of a claim's two texts a score covers.
type ItemKind string

// Scored item kinds.
const (
	ItemClaim ItemKind = "claim"
	ItemQuote ItemKind = "quote"
)

// Score is one scored item: either a claim's text or its source quote.
type Score struct {
	CommentID     string                      `json:"commentId"`
	Kind          ItemKind                    `json:"kind"`
	TopicName     string                      `json:"topicName"`
	SubtopicName  string                      `json:"subtopicName"`
	Speaker       string                      `json:"speaker"`
	Attributes    perspective.AttributeScores `json:"attributes"`
	BridgingScore float64                     `json:"bridgingScore"`
}

// Result aggregates a scoring pass over one report tree.
type Result struct {
	Scores []Score `json:"scores"`

	// Cached counts items served from the score cache (no classifier call).
	Cached int `json:"cached"`

	// Failed counts items that could not be scored and were omitted.
	Failed int `json:"failed"`

	// BreakerOpen reports that the circuit breaker opened during the pass,
	// so the result is partial.
	BreakerOpen bool `json:"breakerOpen"`
}

// Scorer walks a sorted tree and scores every claim text and quote, merged
// duplicates included. Cache hits bypass the rate limiter entirely; misses
// pass through the global admission gate and the circuit breaker.
type Scorer struct {
	analyzer perspective.Analyzer
	cache    *perspective.ScoreCache
	limiter  *ratelimit.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// NewScorer creates a scorer around the classifier, cache, and limiter.
func NewScorer(analyzer perspective.Analyzer, cache *perspective.ScoreCache, limiter *ratelimit.Limiter) *Scorer {
	return &Scorer{
		analyzer: analyzer,
		cache:    cache,
		limiter:  limiter,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "perspective",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= breakerMinRequests &&
					float64(counts.TotalFailures)/float64(counts.Requests) > breakerFailureRatio
			},
		}),
	}
}

// ScoreTree scores every claim text and quote in the tree. Individual failures
// are skipped and counted; only context cancellation returns an error. An open
// breaker aborts the walk and returns what was gathered.
func (s *Scorer) ScoreTree(ctx context.Context, tree models.SortedTree) (*Result, error) {
	result := &Result{}
	// Identical texts within one pass resolve to one classifier call.
	memo := make(map[string]perspective.AttributeScores)

walk:
	for _, topic := range tree.Topics {
		for _, sub := range topic.Subtopics {
			for _, claim := range sub.Claims {
				if err := s.scoreClaim(ctx, claim, memo, result); err != nil {
					return nil, err
				}
				if result.BreakerOpen {
					break walk
				}
				for _, dup := range claim.Duplicates {
					if err := s.scoreClaim(ctx, dup, memo, result); err != nil {
						return nil, err
					}
					if result.BreakerOpen {
						break walk
					}
				}
			}
		}
	}

	slog.Info("Bridging scoring pass finished",
		"scored", len(result.Scores),
		"cached", result.Cached,
		"failed", result.Failed,
		"breaker_open", result.BreakerOpen,
	)
	return result, nil
}

// scoreClaim scores one claim's two texts and appends to the result.
func (s *Scorer) scoreClaim(ctx context.Context, claim models.Claim, memo map[string]perspective.AttributeScores, result *Result) error {
	if err := s.scoreItem(ctx, claim, ItemClaim, claim.Text, memo, result); err != nil {
		return err
	}
	if result.BreakerOpen {
		return nil
	}
	return s.scoreItem(ctx, claim, ItemQuote, claim.Quote, memo, result)
}

// scoreItem scores one text and appends a record for it.
func (s *Scorer) scoreItem(ctx context.Context, claim models.Claim, kind ItemKind, text string, memo map[string]perspective.AttributeScores, result *Result) error {
	if strings.TrimSpace(text) == "" {
		result.Failed++
		slog.Warn("Skipping blank text",
			"comment_id", claim.SourceCommentID, "kind", kind)
		return nil
	}
	scores, cached, err := s.lookup(ctx, text, memo)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result.Failed++
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result.BreakerOpen = true
			return nil
		}
		slog.Warn("Failed to score text",
			"comment_id", claim.SourceCommentID, "kind", kind, "error", err)
		return nil
	}
	if cached {
		result.Cached++
	}
	result.Scores = append(result.Scores, Score{
		CommentID:     claim.SourceCommentID,
		Kind:          kind,
		TopicName:     claim.TopicName,
		SubtopicName:  claim.SubtopicName,
		Speaker:       claim.Speaker,
		Attributes:    scores,
		BridgingScore: scores.BridgingScore(),
	})
	return nil
}

// lookup resolves scores for a text: in-pass memo, then cache, then the
// classifier behind the rate limiter and breaker. A cache hit consumes no
// rate-limit slot.
func (s *Scorer) lookup(ctx context.Context, text string, memo map[string]perspective.AttributeScores) (perspective.AttributeScores, bool, error) {
	if scores, ok := memo[text]; ok {
		return scores, true, nil
	}
	if scores, ok := s.cache.Get(ctx, text); ok {
		memo[text] = scores
		return scores, true, nil
	}

	res, err := s.breaker.Execute(func() (interface{}, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return s.analyzer.Analyze(ctx, text)
	})
	if err != nil {
		return perspective.AttributeScores{}, false, err
	}
	scores := res.(perspective.AttributeScores)
	s.cache.Put(ctx, text, scores)
	memo[text] = scores
	return scores, false, nil
}
