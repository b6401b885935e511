package stages

import (
	"fmt"
	"strings"

	"github.com/civitas-labs/agora/pkg/models"
)

// systemPrompt combines the run-wide system instructions with the stage
// instructions and the output-language directive.
func systemPrompt(cfg LLMConfig) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(cfg.SystemInstructions))
	if stage := strings.TrimSpace(cfg.StageInstructions); stage != "" {
		sb.WriteString("\n\n")
		sb.WriteString(stage)
	}
	if lang := strings.TrimSpace(cfg.OutputLanguage); lang != "" {
		fmt.Fprintf(&sb, "\n\nWrite all generated text in %s.", lang)
	}
	sb.WriteString("\n\nRespond with a single JSON object and nothing else.")
	return sb.String()
}

// formatComments renders comments one per line for prompt inclusion.
func formatComments(comments []models.Comment) string {
	var sb strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", c.ID, c.Speaker, c.Text)
	}
	return sb.String()
}

// formatTaxonomy renders the topic/subtopic skeleton for prompt inclusion.
func formatTaxonomy(taxonomy models.Taxonomy) string {
	var sb strings.Builder
	for _, topic := range taxonomy.Topics {
		fmt.Fprintf(&sb, "- %s: %s\n", topic.Name, topic.ShortDescription)
		for _, sub := range topic.Subtopics {
			fmt.Fprintf(&sb, "  - %s: %s\n", sub.Name, sub.ShortDescription)
		}
	}
	return sb.String()
}

// formatClaims renders a numbered claim list for the dedup prompt.
func formatClaims(claims []models.Claim) string {
	var sb strings.Builder
	for i, c := range claims {
		fmt.Fprintf(&sb, "%d. %s (quote: %q)\n", i, c.Text, c.Quote)
	}
	return sb.String()
}

// formatTreeDigest renders the sorted tree with its claims for the summaries
// prompt.
func formatTreeDigest(tree models.SortedTree) string {
	var sb strings.Builder
	for _, topic := range tree.Topics {
		fmt.Fprintf(&sb, "Topic: %s (%s)\n", topic.Name, topic.ShortDescription)
		for _, sub := range topic.Subtopics {
			fmt.Fprintf(&sb, "  Subtopic: %s\n", sub.Name)
			for _, claim := range sub.Claims {
				fmt.Fprintf(&sb, "    - %s (%d supporting statements)\n", claim.Text, 1+len(claim.Duplicates))
			}
		}
	}
	return sb.String()
}

// formatSpeakerGroups renders per-speaker claim groupings for the crux prompt.
// Speaker identities use the "id:name" convention consumed by reconciliation.
func formatSpeakerGroups(groups map[string][]models.Claim, order []string) string {
	var sb strings.Builder
	for _, speaker := range order {
		fmt.Fprintf(&sb, "Speaker %s:%s\n", speaker, speaker)
		for _, claim := range groups[speaker] {
			fmt.Fprintf(&sb, "  - %s\n", claim.Text)
		}
	}
	return sb.String()
}
