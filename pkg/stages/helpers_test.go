package stages

import (
	"context"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// fakeLLM replays canned JSON responses in order, recording every request.
// The last response repeats if more calls arrive than responses were given.
type fakeLLM struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.Request) (*llm.Result, error) {
	f.requests = append(f.requests, *req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llm.Result{
		Content: f.responses[idx],
		Usage:   models.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Cost:    0.001,
	}, nil
}

func testLLMConfig() LLMConfig {
	return LLMConfig{
		Model:              "gpt-4o-mini",
		SystemInstructions: "You analyze public consultation comments.",
		StageInstructions:  "Stage instructions.",
	}
}

func claim(text, quote, speaker, topic, sub, commentID string) models.Claim {
	return models.Claim{
		Text:            text,
		Quote:           quote,
		Speaker:         speaker,
		TopicName:       topic,
		SubtopicName:    sub,
		SourceCommentID: commentID,
	}
}
