package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// extractionBatchSize bounds the comments per LLM call so large corpora stay
// within context limits.
const extractionBatchSize = 50

// ExtractionInput carries the inputs for the extraction stage.
type ExtractionInput struct {
	Comments []models.Comment
	Taxonomy models.Taxonomy
	Config   LLMConfig
}

// Extraction pulls claims with supporting quotes out of the comments and
// assigns each to a taxonomy subtopic.
type Extraction struct {
	LLM llm.Client
}

// NewExtraction creates the extraction executor.
func NewExtraction(client llm.Client) *Extraction {
	return &Extraction{LLM: client}
}

// extractedClaim is the wire shape of one claim in the model output.
type extractedClaim struct {
	Claim        string `json:"claim"`
	Quote        string `json:"quote"`
	TopicName    string `json:"topicName"`
	SubtopicName string `json:"subtopicName"`
	CommentID    string `json:"commentId"`
}

type extractionResponse struct {
	Claims []extractedClaim `json:"claims"`
}

// Run extracts claims in batches and assembles the claims tree. Claims whose
// assigned topic/subtopic does not exist in the taxonomy, or whose source
// comment is unknown, are dropped.
func (s *Extraction) Run(ctx context.Context, in ExtractionInput) (*Outcome[models.ClaimsTree], error) {
	if len(in.Comments) == 0 {
		return nil, fmt.Errorf("extraction requires at least one comment")
	}

	byID := make(map[string]models.Comment, len(in.Comments))
	for _, c := range in.Comments {
		byID[c.ID] = c
	}

	outcome := &Outcome[models.ClaimsTree]{Data: make(models.ClaimsTree)}
	var claims []models.Claim

	for start := 0; start < len(in.Comments); start += extractionBatchSize {
		end := min(start+extractionBatchSize, len(in.Comments))
		batch := in.Comments[start:end]

		userPrompt := fmt.Sprintf(
			"Extract the distinct claims made in the following comments, each with a short supporting "+
				"quote taken verbatim from its comment. Assign every claim to one topic and subtopic from "+
				"the taxonomy below. Return {\"claims\": [{\"claim\", \"quote\", \"topicName\", \"subtopicName\", \"commentId\"}]}.\n\n"+
				"Taxonomy:\n%s\nComments:\n%s",
			formatTaxonomy(in.Taxonomy),
			formatComments(batch),
		)

		var resp extractionResponse
		if err := completeJSON(ctx, s.LLM, in.Config, userPrompt, &resp, &outcome.Usage, &outcome.Cost); err != nil {
			return nil, err
		}

		for _, ec := range resp.Claims {
			claim, ok := s.resolveClaim(ec, in.Taxonomy, byID)
			if !ok {
				continue
			}
			claims = append(claims, claim)
		}
	}

	for _, claim := range claims {
		topic := outcome.Data[claim.TopicName]
		if topic.Subtopics == nil {
			topic.Subtopics = make(map[string]models.SubtopicClaims)
		}
		sub := topic.Subtopics[claim.SubtopicName]
		sub.Claims = append(sub.Claims, claim)
		sub.Total = len(sub.Claims)
		topic.Subtopics[claim.SubtopicName] = sub
		topic.Total++
		outcome.Data[claim.TopicName] = topic
	}

	return outcome, nil
}

// resolveClaim validates one extracted claim and attaches speaker attribution
// from its source comment.
func (s *Extraction) resolveClaim(ec extractedClaim, taxonomy models.Taxonomy, byID map[string]models.Comment) (models.Claim, bool) {
	text := strings.TrimSpace(ec.Claim)
	quote := strings.TrimSpace(ec.Quote)
	if text == "" || quote == "" {
		return models.Claim{}, false
	}
	if !taxonomy.HasSubtopic(ec.TopicName, ec.SubtopicName) {
		slog.Debug("Dropping claim assigned outside the taxonomy",
			"topic", ec.TopicName, "subtopic", ec.SubtopicName)
		return models.Claim{}, false
	}
	comment, ok := byID[ec.CommentID]
	if !ok {
		slog.Debug("Dropping claim with unknown source comment", "comment_id", ec.CommentID)
		return models.Claim{}, false
	}
	return models.Claim{
		Text:            text,
		Quote:           quote,
		Speaker:         comment.Speaker,
		TopicName:       ec.TopicName,
		SubtopicName:    ec.SubtopicName,
		SourceCommentID: comment.ID,
	}, true
}
