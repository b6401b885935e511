package pipeline

import (
	"context"

	"github.com/civitas-labs/agora/pkg/config"
	"github.com/civitas-labs/agora/pkg/llm"
	"github.com/civitas-labs/agora/pkg/models"
	"github.com/civitas-labs/agora/pkg/stages"
)

// Per-stage executor interfaces. The runner depends on these rather than the
// concrete executors so tests can assert which stages actually run (resume
// must not re-invoke completed stages).

// ClusteringExecutor produces the taxonomy.
type ClusteringExecutor interface {
	Run(ctx context.Context, in stages.ClusteringInput) (*stages.Outcome[models.Taxonomy], error)
}

// ExtractionExecutor produces the claims tree.
type ExtractionExecutor interface {
	Run(ctx context.Context, in stages.ExtractionInput) (*stages.Outcome[models.ClaimsTree], error)
}

// SortDedupExecutor produces the ordered, deduplicated tree.
type SortDedupExecutor interface {
	Run(ctx context.Context, in stages.SortDedupInput) (*stages.Outcome[models.SortedTree], error)
}

// SummariesExecutor produces the per-topic summaries.
type SummariesExecutor interface {
	Run(ctx context.Context, in stages.SummariesInput) (*stages.Outcome[[]models.TopicSummary], error)
}

// CruxesExecutor produces the per-subtopic cruxes.
type CruxesExecutor interface {
	Run(ctx context.Context, in stages.CruxesInput) (*stages.Outcome[[]models.SubtopicCrux], error)
}

// Executors bundles the five stage executors.
type Executors struct {
	Clustering ClusteringExecutor
	Extraction ExtractionExecutor
	SortDedup  SortDedupExecutor
	Summaries  SummariesExecutor
	Cruxes     CruxesExecutor
}

// ExecutorFactory builds the executor set for one job. LLM credentials are
// per-job (the descriptor carries its own API key), so executors cannot be
// process-wide singletons.
type ExecutorFactory func(desc *config.JobDescriptor) Executors

// DefaultExecutors wires the production stage executors onto one LLM client.
func DefaultExecutors(client llm.Client) Executors {
	return Executors{
		Clustering: stages.NewClustering(client),
		Extraction: stages.NewExtraction(client),
		SortDedup:  stages.NewSortDedup(client),
		Summaries:  stages.NewSummaries(client),
		Cruxes:     stages.NewCruxes(client),
	}
}

// OpenAIExecutorFactory builds per-job executors around an OpenAI-compatible
// client authenticated with the job's own key. baseURL may be empty.
func OpenAIExecutorFactory(baseURL string) ExecutorFactory {
	return func(desc *config.JobDescriptor) Executors {
		return DefaultExecutors(llm.NewOpenAIClient(desc.Config.Env.OpenAIAPIKey, baseURL))
	}
}
