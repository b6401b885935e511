package llm

import (
	"strings"

	"github.com/civitas-labs/agora/pkg/models"
)

// modelPricing holds USD prices per million tokens.
type modelPricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// pricingTable maps model-name prefixes to prices. Longest matching prefix
// wins. Unknown models fall back to defaultPricing so cost accounting never
// silently drops to zero.
var pricingTable = map[string]modelPricing{
	"gpt-4o-mini": {inputPerMillion: 0.15, outputPerMillion: 0.60},
	"gpt-4o":      {inputPerMillion: 2.50, outputPerMillion: 10.00},
	"gpt-4.1":     {inputPerMillion: 2.00, outputPerMillion: 8.00},
	"o3-mini":     {inputPerMillion: 1.10, outputPerMillion: 4.40},
}

var defaultPricing = modelPricing{inputPerMillion: 2.50, outputPerMillion: 10.00}

// Cost computes the USD cost of one call.
func Cost(model string, usage models.Usage) float64 {
	pricing := defaultPricing
	bestLen := 0
	for prefix, p := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			pricing = p
			bestLen = len(prefix)
		}
	}
	return float64(usage.InputTokens)*pricing.inputPerMillion/1e6 +
		float64(usage.OutputTokens)*pricing.outputPerMillion/1e6
}
