package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// minCruxSpeakers is the qualification bar: a subtopic needs claims from at
// least this many distinct speakers before a crux is synthesized.
const minCruxSpeakers = 2

// CruxesInput carries the inputs for the cruxes stage.
type CruxesInput struct {
	Tree   models.SortedTree
	Config LLMConfig
}

// Cruxes synthesizes, for each qualifying subtopic, a statement that
// partitions the subtopic's speakers into agree / disagree / no-clear-position
// groups. The model's set membership is advisory only: reconciliation makes
// the final assignment deterministic.
type Cruxes struct {
	LLM llm.Client
}

// NewCruxes creates the cruxes executor.
func NewCruxes(client llm.Client) *Cruxes {
	return &Cruxes{LLM: client}
}

type cruxResponse struct {
	CruxClaim       string   `json:"cruxClaim"`
	Agree           []string `json:"agree"`
	Disagree        []string `json:"disagree"`
	NoClearPosition []string `json:"noClearPosition"`
	Explanation     string   `json:"explanation"`
}

// Run walks the tree and synthesizes one crux per qualifying subtopic.
func (s *Cruxes) Run(ctx context.Context, in CruxesInput) (*Outcome[[]models.SubtopicCrux], error) {
	outcome := &Outcome[[]models.SubtopicCrux]{Data: []models.SubtopicCrux{}}

	for _, topic := range in.Tree.Topics {
		for _, sub := range topic.Subtopics {
			groups, order := speakerGroups(sub)
			if len(order) < minCruxSpeakers {
				continue
			}

			userPrompt := fmt.Sprintf(
				"The claims below come from subtopic %q (topic %q), grouped by speaker. "+
					"Formulate the single statement that most sharply divides these speakers (the crux), "+
					"then assign every speaker to exactly one of agree, disagree, or noClearPosition, "+
					"using the \"id:name\" identifiers exactly as given. "+
					"Return {\"cruxClaim\", \"agree\": [..], \"disagree\": [..], \"noClearPosition\": [..], \"explanation\"}.\n\n%s",
				sub.Name, topic.Name,
				formatSpeakerGroups(groups, order),
			)

			var resp cruxResponse
			if err := completeJSON(ctx, s.LLM, in.Config, userPrompt, &resp, &outcome.Usage, &outcome.Cost); err != nil {
				return nil, fmt.Errorf("synthesizing crux for %s/%s: %w", topic.Name, sub.Name, err)
			}
			if strings.TrimSpace(resp.CruxClaim) == "" {
				return nil, fmt.Errorf("model returned empty crux claim for %s/%s", topic.Name, sub.Name)
			}

			agree, disagree, noClear := ReconcileSpeakers(resp.Agree, resp.Disagree, resp.NoClearPosition)
			outcome.Data = append(outcome.Data, models.SubtopicCrux{
				TopicName:       topic.Name,
				SubtopicName:    sub.Name,
				CruxClaim:       strings.TrimSpace(resp.CruxClaim),
				Agree:           agree,
				Disagree:        disagree,
				NoClearPosition: noClear,
				Explanation:     strings.TrimSpace(resp.Explanation),
			})
		}
	}
	return outcome, nil
}

// speakerGroups collects each speaker's claims in the subtopic (merged
// duplicates included) and the first-appearance speaker order.
func speakerGroups(sub models.TreeSubtopic) (map[string][]models.Claim, []string) {
	groups := make(map[string][]models.Claim)
	var order []string
	add := func(claim models.Claim) {
		if _, seen := groups[claim.Speaker]; !seen {
			order = append(order, claim.Speaker)
		}
		groups[claim.Speaker] = append(groups[claim.Speaker], claim)
	}
	for _, claim := range sub.Claims {
		add(claim)
		for _, dup := range claim.Duplicates {
			add(dup)
		}
	}
	return groups, order
}
