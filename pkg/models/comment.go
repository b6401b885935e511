// Package models defines the core data types shared across the pipeline:
// comments, the topic/subtopic/claim tree, durable run state, and crux results.
package models

// AnonymousSpeaker is the canonical speaker used when a comment carries no
// attribution. Absence is mapped to this constant once, at the ingress
// boundary, so downstream code never branches on empty strings.
const AnonymousSpeaker = "Anonymous"

// Comment is a single immutable input contribution.
// ID and Text are non-empty (enforced at ingress by descriptor validation).
type Comment struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Speaker  string            `json:"speaker"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
