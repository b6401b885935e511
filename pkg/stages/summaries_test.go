package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/agora/pkg/models"
)

func summariesTree() models.SortedTree {
	return models.SortedTree{Topics: []models.TreeTopic{
		{Name: "Transit", Subtopics: []models.TreeSubtopic{
			{Name: "Buses", Claims: []models.Claim{
				claim("More buses", "need buses", "Alice", "Transit", "Buses", "c1"),
			}},
		}},
		{Name: "Housing"},
	}}
}

func TestSummariesRun(t *testing.T) {
	t.Run("one summary per topic in tree order", func(t *testing.T) {
		fake := &fakeLLM{responses: []string{
			`{"summaries": [
				{"topicName": "Housing", "summary": "Housing summary."},
				{"topicName": "Transit", "summary": "Transit summary."}
			]}`,
		}}
		outcome, err := NewSummaries(fake).Run(context.Background(), SummariesInput{
			Tree:   summariesTree(),
			Config: testLLMConfig(),
		})
		require.NoError(t, err)
		require.Len(t, outcome.Data, 2)
		assert.Equal(t, "Transit", outcome.Data[0].TopicName)
		assert.Equal(t, "Transit summary.", outcome.Data[0].Text)
		assert.Equal(t, "Housing", outcome.Data[1].TopicName)
	})

	t.Run("missing topic summary is a stage failure", func(t *testing.T) {
		fake := &fakeLLM{responses: []string{
			`{"summaries": [{"topicName": "Transit", "summary": "Only one."}]}`,
		}}
		_, err := NewSummaries(fake).Run(context.Background(), SummariesInput{
			Tree:   summariesTree(),
			Config: testLLMConfig(),
		})
		assert.ErrorContains(t, err, "no summary for topic")
	})

	t.Run("overlong summaries are truncated", func(t *testing.T) {
		long := strings.Repeat("word ", maxSummaryWords+20)
		fake := &fakeLLM{responses: []string{
			`{"summaries": [
				{"topicName": "Transit", "summary": "` + strings.TrimSpace(long) + `"},
				{"topicName": "Housing", "summary": "Short."}
			]}`,
		}}
		outcome, err := NewSummaries(fake).Run(context.Background(), SummariesInput{
			Tree:   summariesTree(),
			Config: testLLMConfig(),
		})
		require.NoError(t, err)
		assert.Len(t, strings.Fields(outcome.Data[0].Text), maxSummaryWords)
	})

	t.Run("empty tree is rejected", func(t *testing.T) {
		_, err := NewSummaries(&fakeLLM{responses: []string{`{}`}}).Run(context.Background(), SummariesInput{Config: testLLMConfig()})
		assert.Error(t, err)
	})
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b", truncateWords("a b", 5))
	assert.Equal(t, "a b c", truncateWords("a b c d e", 3))
	assert.Equal(t, "", truncateWords("", 3))
}
