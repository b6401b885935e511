package stages

import (
	"context"
	"fmt"
	"sort"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// SortDedupInput carries the inputs for the sort+deduplicate stage.
type SortDedupInput struct {
	Taxonomy models.Taxonomy
	Claims   models.ClaimsTree
	Strategy models.SortStrategy
	Config   LLMConfig
}

// SortDedup merges near-duplicate claims within each subtopic under a single
// primary claim and orders the tree by the chosen strategy. The LLM proposes
// merge groups; applying them (and all ordering) is deterministic.
type SortDedup struct {
	LLM llm.Client
}

// NewSortDedup creates the sort+deduplicate executor.
func NewSortDedup(client llm.Client) *SortDedup {
	return &SortDedup{LLM: client}
}

// dedupGroup is the wire shape of one proposed merge: indices into the
// numbered claim list sent in the prompt.
type dedupGroup struct {
	Primary    int   `json:"primary"`
	Duplicates []int `json:"duplicates"`
}

type dedupResponse struct {
	Groups []dedupGroup `json:"groups"`
}

// Run produces the ordered, deduplicated report tree. Taxonomy order defines
// which subtopics exist; subtopics without claims are kept (empty) so the
// report skeleton stays complete.
func (s *SortDedup) Run(ctx context.Context, in SortDedupInput) (*Outcome[models.SortedTree], error) {
	if !in.Strategy.Valid() {
		return nil, fmt.Errorf("unknown sort strategy %q", in.Strategy)
	}

	outcome := &Outcome[models.SortedTree]{}
	for _, topic := range in.Taxonomy.Topics {
		treeTopic := models.TreeTopic{
			Name:             topic.Name,
			ShortDescription: topic.ShortDescription,
		}
		topicClaims := in.Claims[topic.Name]
		for _, sub := range topic.Subtopics {
			claims := topicClaims.Subtopics[sub.Name].Claims
			merged, err := s.mergeDuplicates(ctx, claims, in.Config, &outcome.Usage, &outcome.Cost)
			if err != nil {
				return nil, fmt.Errorf("deduplicating %s/%s: %w", topic.Name, sub.Name, err)
			}
			treeTopic.Subtopics = append(treeTopic.Subtopics, models.TreeSubtopic{
				Name:             sub.Name,
				ShortDescription: sub.ShortDescription,
				Claims:           merged,
			})
		}
		sortSubtopics(treeTopic.Subtopics, in.Strategy)
		outcome.Data.Topics = append(outcome.Data.Topics, treeTopic)
	}
	sortTopics(outcome.Data.Topics, in.Strategy)
	return outcome, nil
}

// mergeDuplicates asks the LLM for merge groups over one subtopic's claims
// and applies them. Groups with out-of-range, overlapping, or self-referring
// indices are discarded; the claims involved stay unmerged.
func (s *SortDedup) mergeDuplicates(ctx context.Context, claims []models.Claim, cfg LLMConfig, usage *models.Usage, cost *float64) ([]models.Claim, error) {
	if len(claims) < 2 {
		return claims, nil
	}

	userPrompt := fmt.Sprintf(
		"The numbered claims below belong to one subtopic. Identify groups of near-duplicate claims. "+
			"For each group pick the clearest claim as primary. "+
			"Return {\"groups\": [{\"primary\": <index>, \"duplicates\": [<index>, ...]}]}. "+
			"Claims that have no duplicates must not appear in any group.\n\nClaims:\n%s",
		formatClaims(claims),
	)

	var resp dedupResponse
	if err := completeJSON(ctx, s.LLM, cfg, userPrompt, &resp, usage, cost); err != nil {
		return nil, err
	}

	return applyMergeGroups(claims, resp.Groups), nil
}

// applyMergeGroups deterministically applies validated merge groups. Merged
// claims become Duplicated copies under their primary; the final duplicates
// set is flat (no recursion).
func applyMergeGroups(claims []models.Claim, groups []dedupGroup) []models.Claim {
	claimed := make(map[int]bool, len(claims))
	primaries := make(map[int][]int, len(groups))

	for _, g := range groups {
		if g.Primary < 0 || g.Primary >= len(claims) || claimed[g.Primary] {
			continue
		}
		valid := make([]int, 0, len(g.Duplicates))
		for _, d := range g.Duplicates {
			if d < 0 || d >= len(claims) || d == g.Primary || claimed[d] {
				continue
			}
			valid = append(valid, d)
		}
		if len(valid) == 0 {
			continue
		}
		claimed[g.Primary] = true
		for _, d := range valid {
			claimed[d] = true
		}
		primaries[g.Primary] = valid
	}

	merged := make([]models.Claim, 0, len(claims))
	for i, claim := range claims {
		dups, isPrimary := primaries[i]
		if !isPrimary && claimed[i] {
			continue // merged into some primary
		}
		out := claim
		if isPrimary {
			out.Duplicates = make([]models.Claim, 0, len(dups))
			for _, d := range dups {
				dup := claims[d]
				dup.Duplicated = true
				dup.Duplicates = nil
				out.Duplicates = append(out.Duplicates, dup)
			}
		}
		merged = append(merged, out)
	}
	return merged
}

// subtopicSpeakerCount counts distinct speakers contributing claims to the
// subtopic, merged duplicates included.
func subtopicSpeakerCount(sub models.TreeSubtopic) int {
	speakers := make(map[string]bool)
	for _, claim := range sub.Claims {
		speakers[claim.Speaker] = true
		for _, dup := range claim.Duplicates {
			speakers[dup.Speaker] = true
		}
	}
	return len(speakers)
}

// subtopicClaimCount counts total claims in the subtopic, merged duplicates
// included.
func subtopicClaimCount(sub models.TreeSubtopic) int {
	total := 0
	for _, claim := range sub.Claims {
		total += 1 + len(claim.Duplicates)
	}
	return total
}

// topicSpeakerCount counts distinct speakers across the topic's subtopics.
func topicSpeakerCount(topic models.TreeTopic) int {
	speakers := make(map[string]bool)
	for _, sub := range topic.Subtopics {
		for _, claim := range sub.Claims {
			speakers[claim.Speaker] = true
			for _, dup := range claim.Duplicates {
				speakers[dup.Speaker] = true
			}
		}
	}
	return len(speakers)
}

// topicClaimCount counts total claims across the topic's subtopics.
func topicClaimCount(topic models.TreeTopic) int {
	total := 0
	for _, sub := range topic.Subtopics {
		total += subtopicClaimCount(sub)
	}
	return total
}

// sortSubtopics orders subtopics within a topic: descending by the strategy
// metric, ties broken by name ascending.
func sortSubtopics(subs []models.TreeSubtopic, strategy models.SortStrategy) {
	metric := subtopicClaimCount
	if strategy == models.SortByNumPeople {
		metric = subtopicSpeakerCount
	}
	sort.SliceStable(subs, func(i, j int) bool {
		mi, mj := metric(subs[i]), metric(subs[j])
		if mi != mj {
			return mi > mj
		}
		return subs[i].Name < subs[j].Name
	})
}

// sortTopics orders topics: descending by the strategy metric, ties broken
// by name ascending.
func sortTopics(topics []models.TreeTopic, strategy models.SortStrategy) {
	metric := topicClaimCount
	if strategy == models.SortByNumPeople {
		metric = topicSpeakerCount
	}
	sort.SliceStable(topics, func(i, j int) bool {
		mi, mj := metric(topics[i]), metric(topics[j])
		if mi != mj {
			return mi > mj
		}
		return topics[i].Name < topics[j].Name
	})
}
