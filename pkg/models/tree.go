package models

// TaxonomySubtopic is a subtopic skeleton entry produced by clustering.
type TaxonomySubtopic struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
}

// TaxonomyTopic is a topic skeleton entry produced by clustering.
// Subtopic names are unique within the topic.
type TaxonomyTopic struct {
	Name             string             `json:"name"`
	ShortDescription string             `json:"shortDescription"`
	Subtopics        []TaxonomySubtopic `json:"subtopics"`
}

// Taxonomy is the ordered topic/subtopic skeleton produced by the clustering
// stage, before any claims are attached. Topic names are unique within a run.
type Taxonomy struct {
	Topics []TaxonomyTopic `json:"topics"`
}

// Topic returns the topic with the given name, or nil.
func (t *Taxonomy) Topic(name string) *TaxonomyTopic {
	for i := range t.Topics {
		if t.Topics[i].Name == name {
			return &t.Topics[i]
		}
	}
	return nil
}

// HasSubtopic reports whether the taxonomy contains the topic/subtopic pair.
func (t *Taxonomy) HasSubtopic(topicName, subtopicName string) bool {
	topic := t.Topic(topicName)
	if topic == nil {
		return false
	}
	for _, sub := range topic.Subtopics {
		if sub.Name == subtopicName {
			return true
		}
	}
	return false
}

// Claim is a single debatable assertion extracted from a comment, carrying a
// supporting quote and speaker attribution. Text, Quote, and TopicName are
// non-empty. Duplicates is a flat set of claims merged into this one;
// Duplicated=true marks a merged copy rather than a primary claim.
type Claim struct {
	Text            string  `json:"text"`
	Quote           string  `json:"quote"`
	Speaker         string  `json:"speaker"`
	TopicName       string  `json:"topicName"`
	SubtopicName    string  `json:"subtopicName"`
	SourceCommentID string  `json:"sourceCommentId"`
	Duplicates      []Claim `json:"duplicates,omitempty"`
	Duplicated      bool    `json:"duplicated,omitempty"`
}

// SubtopicClaims groups the claims extracted for one subtopic.
type SubtopicClaims struct {
	Total  int     `json:"total"`
	Claims []Claim `json:"claims"`
}

// TopicClaims groups per-subtopic claims under one topic.
type TopicClaims struct {
	Total     int                       `json:"total"`
	Subtopics map[string]SubtopicClaims `json:"subtopics"`
}

// ClaimsTree is the extraction stage output: topicName → per-subtopic claims.
type ClaimsTree map[string]TopicClaims

// TreeSubtopic is a subtopic in the sorted, deduplicated report tree.
type TreeSubtopic struct {
	Name             string  `json:"name"`
	ShortDescription string  `json:"shortDescription"`
	Claims           []Claim `json:"claims"`
}

// TreeTopic is a topic in the sorted, deduplicated report tree.
type TreeTopic struct {
	Name             string         `json:"name"`
	ShortDescription string         `json:"shortDescription"`
	Subtopics        []TreeSubtopic `json:"subtopics"`
}

// SortedTree is the sort+deduplicate stage output: an ordered tree where each
// subtopic's near-duplicate claims are merged under a single primary claim.
type SortedTree struct {
	Topics []TreeTopic `json:"topics"`
}

// TopicSummary is a per-topic narrative summary (at most 140 words).
type TopicSummary struct {
	TopicName string `json:"topicName"`
	Text      string `json:"text"`
}

// SubtopicCrux is a synthesized statement that partitions a subtopic's
// speakers into agree / disagree / no-clear-position groups.
type SubtopicCrux struct {
	TopicName       string   `json:"topicName"`
	SubtopicName    string   `json:"subtopicName"`
	CruxClaim       string   `json:"cruxClaim"`
	Agree           []string `json:"agree"`
	Disagree        []string `json:"disagree"`
	NoClearPosition []string `json:"noClearPosition"`
	Explanation     string   `json:"explanation"`
}
