package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/agora/pkg/models"
)

func TestApplyMergeGroups(t *testing.T) {
	claims := []models.Claim{
		claim("a", "qa", "s1", "T", "S", "c1"),
		claim("b", "qb", "s2", "T", "S", "c2"),
		claim("c", "qc", "s3", "T", "S", "c3"),
		claim("d", "qd", "s4", "T", "S", "c4"),
	}

	t.Run("merges duplicates flat under primary", func(t *testing.T) {
		merged := applyMergeGroups(claims, []dedupGroup{
			{Primary: 0, Duplicates: []int{2, 3}},
		})
		require.Len(t, merged, 2)
		assert.Equal(t, "a", merged[0].Text)
		require.Len(t, merged[0].Duplicates, 2)
		assert.Equal(t, "c", merged[0].Duplicates[0].Text)
		assert.True(t, merged[0].Duplicates[0].Duplicated)
		assert.Nil(t, merged[0].Duplicates[0].Duplicates)
		assert.False(t, merged[0].Duplicated)
		assert.Equal(t, "b", merged[1].Text)
		assert.Empty(t, merged[1].Duplicates)
	})

	t.Run("out of range and self references are discarded", func(t *testing.T) {
		merged := applyMergeGroups(claims, []dedupGroup{
			{Primary: 9, Duplicates: []int{1}},
			{Primary: 0, Duplicates: []int{0, -1, 7}},
		})
		require.Len(t, merged, 4)
		for _, c := range merged {
			assert.Empty(t, c.Duplicates)
		}
	})

	t.Run("overlapping groups keep first claim", func(t *testing.T) {
		merged := applyMergeGroups(claims, []dedupGroup{
			{Primary: 0, Duplicates: []int{1}},
			{Primary: 2, Duplicates: []int{1, 3}},
		})
		require.Len(t, merged, 2)
		assert.Equal(t, "a", merged[0].Text)
		require.Len(t, merged[0].Duplicates, 1)
		assert.Equal(t, "b", merged[0].Duplicates[0].Text)
		assert.Equal(t, "c", merged[1].Text)
		require.Len(t, merged[1].Duplicates, 1)
		assert.Equal(t, "d", merged[1].Duplicates[0].Text)
	})

	t.Run("no groups leaves claims untouched", func(t *testing.T) {
		merged := applyMergeGroups(claims, nil)
		assert.Equal(t, claims, merged)
	})
}

func TestSortSubtopics(t *testing.T) {
	subs := []models.TreeSubtopic{
		{Name: "beta", Claims: []models.Claim{
			claim("x", "q", "s1", "T", "beta", "c1"),
		}},
		{Name: "alpha", Claims: []models.Claim{
			claim("y", "q", "s1", "T", "alpha", "c2"),
		}},
		{Name: "gamma", Claims: []models.Claim{
			{Text: "z", Quote: "q", Speaker: "s1", Duplicates: []models.Claim{
				{Text: "z2", Quote: "q2", Speaker: "s2", Duplicated: true},
			}},
		}},
	}

	t.Run("numClaims counts merged duplicates", func(t *testing.T) {
		ordered := append([]models.TreeSubtopic(nil), subs...)
		sortSubtopics(ordered, models.SortByNumClaims)
		assert.Equal(t, "gamma", ordered[0].Name)
		assert.Equal(t, "alpha", ordered[1].Name)
		assert.Equal(t, "beta", ordered[2].Name)
	})

	t.Run("numPeople counts distinct speakers", func(t *testing.T) {
		ordered := append([]models.TreeSubtopic(nil), subs...)
		sortSubtopics(ordered, models.SortByNumPeople)
		assert.Equal(t, "gamma", ordered[0].Name)
	})

	t.Run("ties break by name ascending", func(t *testing.T) {
		ordered := append([]models.TreeSubtopic(nil), subs[:2]...)
		sortSubtopics(ordered, models.SortByNumClaims)
		assert.Equal(t, "alpha", ordered[0].Name)
		assert.Equal(t, "beta", ordered[1].Name)
	})
}

func TestSortDedupRun(t *testing.T) {
	taxonomy := models.Taxonomy{Topics: []models.TaxonomyTopic{
		{Name: "Transit", Subtopics: []models.TaxonomySubtopic{
			{Name: "Buses"}, {Name: "Bikes"},
		}},
	}}
	claims := models.ClaimsTree{
		"Transit": models.TopicClaims{
			Total: 3,
			Subtopics: map[string]models.SubtopicClaims{
				"Buses": {Total: 3, Claims: []models.Claim{
					claim("More buses", "need buses", "Alice", "Transit", "Buses", "c1"),
					claim("Add bus lines", "more lines", "Bob", "Transit", "Buses", "c2"),
					claim("Cheaper fares", "fares too high", "Carol", "Transit", "Buses", "c3"),
				}},
			},
		},
	}

	t.Run("applies model merge groups and keeps empty subtopics", func(t *testing.T) {
		fake := &fakeLLM{responses: []string{
			`{"groups": [{"primary": 0, "duplicates": [1]}]}`,
		}}
		s := NewSortDedup(fake)
		outcome, err := s.Run(context.Background(), SortDedupInput{
			Taxonomy: taxonomy,
			Claims:   claims,
			Strategy: models.SortByNumClaims,
			Config:   testLLMConfig(),
		})
		require.NoError(t, err)
		require.Len(t, outcome.Data.Topics, 1)
		topic := outcome.Data.Topics[0]
		require.Len(t, topic.Subtopics, 2)

		// Buses has 3 claims (one merged), Bikes is empty but present.
		assert.Equal(t, "Buses", topic.Subtopics[0].Name)
		require.Len(t, topic.Subtopics[0].Claims, 2)
		assert.Len(t, topic.Subtopics[0].Claims[0].Duplicates, 1)
		assert.Equal(t, "Bikes", topic.Subtopics[1].Name)
		assert.Empty(t, topic.Subtopics[1].Claims)

		// Only the multi-claim subtopic consumed an LLM call.
		assert.Len(t, fake.requests, 1)
		assert.Equal(t, models.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, outcome.Usage)
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		s := NewSortDedup(&fakeLLM{responses: []string{`{}`}})
		_, err := s.Run(context.Background(), SortDedupInput{
			Taxonomy: taxonomy,
			Claims:   claims,
			Strategy: "alphabetical",
			Config:   testLLMConfig(),
		})
		assert.ErrorContains(t, err, "unknown sort strategy")
	})
}
