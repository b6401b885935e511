package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// ClusteringInput carries the inputs for the clustering stage.
type ClusteringInput struct {
	Comments []models.Comment
	Config   LLMConfig
}

// Clustering derives the topic/subtopic taxonomy from the raw comments.
// No claims are attached yet.
type Clustering struct {
	LLM llm.Client
}

// NewClustering creates the clustering executor.
func NewClustering(client llm.Client) *Clustering {
	return &Clustering{LLM: client}
}

// Run produces the taxonomy. Topic names must be unique in the run and
// subtopic names unique within their topic; violations are stage failures.
func (s *Clustering) Run(ctx context.Context, in ClusteringInput) (*Outcome[models.Taxonomy], error) {
	if len(in.Comments) == 0 {
		return nil, fmt.Errorf("clustering requires at least one comment")
	}

	userPrompt := fmt.Sprintf(
		"Identify the topics and subtopics discussed in the following comments. "+
			"Return {\"topics\": [{\"name\", \"shortDescription\", \"subtopics\": [{\"name\", \"shortDescription\"}]}]}.\n\nComments:\n%s",
		formatComments(in.Comments),
	)

	outcome := &Outcome[models.Taxonomy]{}
	if err := completeJSON(ctx, s.LLM, in.Config, userPrompt, &outcome.Data, &outcome.Usage, &outcome.Cost); err != nil {
		return nil, err
	}
	if err := ValidateTaxonomy(outcome.Data); err != nil {
		return nil, err
	}
	return outcome, nil
}

// ValidateTaxonomy checks the structural invariants of a taxonomy. Also used
// by the runner to revalidate cached clustering results on resume.
func ValidateTaxonomy(taxonomy models.Taxonomy) error {
	if len(taxonomy.Topics) == 0 {
		return fmt.Errorf("taxonomy has no topics")
	}
	topicNames := make(map[string]bool, len(taxonomy.Topics))
	for _, topic := range taxonomy.Topics {
		name := strings.TrimSpace(topic.Name)
		if name == "" {
			return fmt.Errorf("taxonomy contains a topic with an empty name")
		}
		if topicNames[name] {
			return fmt.Errorf("duplicate topic name %q", name)
		}
		topicNames[name] = true

		subNames := make(map[string]bool, len(topic.Subtopics))
		for _, sub := range topic.Subtopics {
			subName := strings.TrimSpace(sub.Name)
			if subName == "" {
				return fmt.Errorf("topic %q contains a subtopic with an empty name", name)
			}
			if subNames[subName] {
				return fmt.Errorf("topic %q has duplicate subtopic name %q", name, subName)
			}
			subNames[subName] = true
		}
	}
	return nil
}
