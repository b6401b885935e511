package stages

import (
	"fmt"
	"strings"

	"github.com/civitas-labs/agora/pkg/models"
)

// Revalidation of cached stage outputs. Stored payloads survive process
// restarts and schema drift, so a result loaded on resume is checked against
// the same structural invariants the executor enforces on fresh output.

// ValidateClaimsTree checks the structural invariants of an extraction result
// against the taxonomy it was built from.
func ValidateClaimsTree(tree models.ClaimsTree, taxonomy models.Taxonomy) error {
	for topicName, topic := range tree {
		if taxonomy.Topic(topicName) == nil {
			return fmt.Errorf("claims reference unknown topic %q", topicName)
		}
		total := 0
		for subName, sub := range topic.Subtopics {
			if !taxonomy.HasSubtopic(topicName, subName) {
				return fmt.Errorf("claims reference unknown subtopic %q/%q", topicName, subName)
			}
			if sub.Total != len(sub.Claims) {
				return fmt.Errorf("subtopic %q/%q: total %d does not match %d claims", topicName, subName, sub.Total, len(sub.Claims))
			}
			for _, claim := range sub.Claims {
				if err := validateClaim(claim, topicName, subName); err != nil {
					return err
				}
			}
			total += sub.Total
		}
		if topic.Total != total {
			return fmt.Errorf("topic %q: total %d does not match %d subtopic claims", topicName, topic.Total, total)
		}
	}
	return nil
}

// ValidateSortedTree checks the structural invariants of a sort+deduplicate
// result: known topic/subtopic assignments, non-empty claim payloads, and the
// flat one-level duplicate structure.
func ValidateSortedTree(tree models.SortedTree, taxonomy models.Taxonomy) error {
	if len(tree.Topics) == 0 {
		return fmt.Errorf("sorted tree has no topics")
	}
	for _, topic := range tree.Topics {
		if taxonomy.Topic(topic.Name) == nil {
			return fmt.Errorf("sorted tree references unknown topic %q", topic.Name)
		}
		for _, sub := range topic.Subtopics {
			if !taxonomy.HasSubtopic(topic.Name, sub.Name) {
				return fmt.Errorf("sorted tree references unknown subtopic %q/%q", topic.Name, sub.Name)
			}
			for _, claim := range sub.Claims {
				if err := validateClaim(claim, topic.Name, sub.Name); err != nil {
					return err
				}
				if claim.Duplicated {
					return fmt.Errorf("subtopic %q/%q: primary claim marked as duplicated", topic.Name, sub.Name)
				}
				for _, dup := range claim.Duplicates {
					if err := validateClaim(dup, topic.Name, sub.Name); err != nil {
						return err
					}
					if !dup.Duplicated {
						return fmt.Errorf("subtopic %q/%q: merged claim missing duplicated marker", topic.Name, sub.Name)
					}
					if len(dup.Duplicates) > 0 {
						return fmt.Errorf("subtopic %q/%q: nested duplicates", topic.Name, sub.Name)
					}
				}
			}
		}
	}
	return nil
}

// ValidateSummaries checks that every topic in the tree has exactly one
// non-empty summary.
func ValidateSummaries(summaries []models.TopicSummary, tree models.SortedTree) error {
	byTopic := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("empty summary for topic %q", s.TopicName)
		}
		if byTopic[s.TopicName] {
			return fmt.Errorf("duplicate summary for topic %q", s.TopicName)
		}
		byTopic[s.TopicName] = true
	}
	for _, topic := range tree.Topics {
		if !byTopic[topic.Name] {
			return fmt.Errorf("missing summary for topic %q", topic.Name)
		}
	}
	return nil
}

// ValidateCruxes checks crux payloads and speaker-list disjointness.
func ValidateCruxes(cruxes []models.SubtopicCrux) error {
	for _, crux := range cruxes {
		if strings.TrimSpace(crux.CruxClaim) == "" {
			return fmt.Errorf("empty crux claim for %s/%s", crux.TopicName, crux.SubtopicName)
		}
		seen := make(map[string]string)
		for listName, list := range map[string][]string{
			"agree":           crux.Agree,
			"disagree":        crux.Disagree,
			"noClearPosition": crux.NoClearPosition,
		} {
			for _, entry := range list {
				id := SpeakerID(entry)
				if id == "" {
					return fmt.Errorf("crux %s/%s: entry %q has no speaker id", crux.TopicName, crux.SubtopicName, entry)
				}
				if other, dup := seen[id]; dup && other != listName {
					return fmt.Errorf("crux %s/%s: speaker %q in both %s and %s", crux.TopicName, crux.SubtopicName, id, other, listName)
				}
				if _, dup := seen[id]; dup {
					return fmt.Errorf("crux %s/%s: speaker %q listed twice", crux.TopicName, crux.SubtopicName, id)
				}
				seen[id] = listName
			}
		}
	}
	return nil
}

// validateClaim checks one claim's payload and assignment.
func validateClaim(claim models.Claim, topicName, subName string) error {
	if strings.TrimSpace(claim.Text) == "" || strings.TrimSpace(claim.Quote) == "" {
		return fmt.Errorf("subtopic %q/%q: claim with empty text or quote", topicName, subName)
	}
	if claim.TopicName != topicName || claim.SubtopicName != subName {
		return fmt.Errorf("subtopic %q/%q: claim assigned to %q/%q", topicName, subName, claim.TopicName, claim.SubtopicName)
	}
	return nil
}
