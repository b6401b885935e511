// Package perspective integrates the external comment classifier: the HTTP
// client, the content-addressed score cache, and the bridging composite.
package perspective

// AttributeScores holds the four raw classifier attributes, each in [0, 1].
type AttributeScores struct {
	PersonalStory float64 `json:"personalStory"`
	Reasoning     float64 `json:"reasoning"`
	Curiosity     float64 `json:"curiosity"`
	Toxicity      float64 `json:"toxicity"`
}

// BridgingScore computes the composite in [0, 3]:
// (personalStory + reasoning + curiosity) × (1 − toxicity).
// Toxicity = 1 completely zeroes the result. The composite is always derived
// from the raw attributes so a formula change never needs a cache flush.
func (s AttributeScores) BridgingScore() float64 {
	return (s.PersonalStory + s.Reasoning + s.Curiosity) * (1 - s.Toxicity)
}
