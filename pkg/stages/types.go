// Package stages implements the five pipeline stage executors. Executors are
// pure with respect to the state store and lock manager: they receive
// by-value inputs, call the LLM, and return typed outcomes. Persistence is
// the runner's job.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
)

// LLMConfig selects the model and prompt fragments for one stage call.
type LLMConfig struct {
	Model              string
	SystemInstructions string
	StageInstructions  string
	OutputLanguage     string
}

// Outcome is the uniform stage result shape: typed data plus the token usage
// and cost accumulated across the stage's LLM calls.
type Outcome[T any] struct {
	Data  T
	Usage models.Usage
	Cost  float64
}

// completeJSON issues one LLM call and decodes the JSON-object response into
// out, accumulating usage and cost into the outcome totals.
func completeJSON(ctx context.Context, client llm.Client, cfg LLMConfig, userPrompt string, out any, usage *models.Usage, cost *float64) error {
	result, err := client.Complete(ctx, &llm.Request{
		Model:        cfg.Model,
		SystemPrompt: systemPrompt(cfg),
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return err
	}
	usage.Add(result.Usage)
	*cost += result.Cost
	if err := json.Unmarshal([]byte(result.Content), out); err != nil {
		return fmt.Errorf("malformed model output: %w", err)
	}
	return nil
}
