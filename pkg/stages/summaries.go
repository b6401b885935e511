package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// maxSummaryWords bounds each topic summary.
const maxSummaryWords = 140

// SummariesInput carries the inputs for the summaries stage.
type SummariesInput struct {
	Tree   models.SortedTree
	Config LLMConfig
}

// Summaries produces one narrative summary per topic, referencing the claims
// under that topic.
type Summaries struct {
	LLM llm.Client
}

// NewSummaries creates the summaries executor.
func NewSummaries(client llm.Client) *Summaries {
	return &Summaries{LLM: client}
}

type summariesResponse struct {
	Summaries []struct {
		TopicName string `json:"topicName"`
		Summary   string `json:"summary"`
	} `json:"summaries"`
}

// Run generates all topic summaries in a single call. A summary longer than
// the word bound is truncated; a topic the model skipped is a stage failure.
func (s *Summaries) Run(ctx context.Context, in SummariesInput) (*Outcome[[]models.TopicSummary], error) {
	if len(in.Tree.Topics) == 0 {
		return nil, fmt.Errorf("summaries require a non-empty tree")
	}

	userPrompt := fmt.Sprintf(
		"Write a narrative summary for each topic below, grounded in its claims. "+
			"Each summary must be at most %d words. "+
			"Return {\"summaries\": [{\"topicName\", \"summary\"}]}.\n\n%s",
		maxSummaryWords,
		formatTreeDigest(in.Tree),
	)

	outcome := &Outcome[[]models.TopicSummary]{}
	var resp summariesResponse
	if err := completeJSON(ctx, s.LLM, in.Config, userPrompt, &resp, &outcome.Usage, &outcome.Cost); err != nil {
		return nil, err
	}

	byTopic := make(map[string]string, len(resp.Summaries))
	for _, entry := range resp.Summaries {
		if text := strings.TrimSpace(entry.Summary); text != "" {
			byTopic[entry.TopicName] = text
		}
	}

	for _, topic := range in.Tree.Topics {
		text, ok := byTopic[topic.Name]
		if !ok {
			return nil, fmt.Errorf("model returned no summary for topic %q", topic.Name)
		}
		outcome.Data = append(outcome.Data, models.TopicSummary{
			TopicName: topic.Name,
			Text:      truncateWords(text, maxSummaryWords),
		})
	}
	return outcome, nil
}

// truncateWords limits text to at most n words.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}
