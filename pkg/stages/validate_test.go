package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civitas-labs/agora/pkg/models"
)

func validateTaxonomy() models.Taxonomy {
	return models.Taxonomy{Topics: []models.TaxonomyTopic{
		{Name: "Transit", Subtopics: []models.TaxonomySubtopic{{Name: "Buses"}}},
	}}
}

func TestValidateClaimsTree(t *testing.T) {
	good := models.ClaimsTree{
		"Transit": {Total: 1, Subtopics: map[string]models.SubtopicClaims{
			"Buses": {Total: 1, Claims: []models.Claim{
				claim("More buses", "q", "Alice", "Transit", "Buses", "c1"),
			}},
		}},
	}
	assert.NoError(t, ValidateClaimsTree(good, validateTaxonomy()))

	t.Run("unknown topic", func(t *testing.T) {
		bad := models.ClaimsTree{"Housing": {}}
		assert.ErrorContains(t, ValidateClaimsTree(bad, validateTaxonomy()), "unknown topic")
	})

	t.Run("total mismatch", func(t *testing.T) {
		bad := models.ClaimsTree{
			"Transit": {Total: 5, Subtopics: map[string]models.SubtopicClaims{
				"Buses": {Total: 1, Claims: []models.Claim{
					claim("More buses", "q", "Alice", "Transit", "Buses", "c1"),
				}},
			}},
		}
		assert.ErrorContains(t, ValidateClaimsTree(bad, validateTaxonomy()), "does not match")
	})

	t.Run("misassigned claim", func(t *testing.T) {
		bad := models.ClaimsTree{
			"Transit": {Total: 1, Subtopics: map[string]models.SubtopicClaims{
				"Buses": {Total: 1, Claims: []models.Claim{
					claim("x", "q", "Alice", "Housing", "Rent", "c1"),
				}},
			}},
		}
		assert.ErrorContains(t, ValidateClaimsTree(bad, validateTaxonomy()), "assigned to")
	})
}

func TestValidateSortedTree(t *testing.T) {
	primary := claim("More buses", "q", "Alice", "Transit", "Buses", "c1")
	dup := claim("Add buses", "q2", "Bob", "Transit", "Buses", "c2")
	dup.Duplicated = true
	primary.Duplicates = []models.Claim{dup}

	good := models.SortedTree{Topics: []models.TreeTopic{
		{Name: "Transit", Subtopics: []models.TreeSubtopic{
			{Name: "Buses", Claims: []models.Claim{primary}},
		}},
	}}
	assert.NoError(t, ValidateSortedTree(good, validateTaxonomy()))

	t.Run("empty tree", func(t *testing.T) {
		assert.ErrorContains(t, ValidateSortedTree(models.SortedTree{}, validateTaxonomy()), "no topics")
	})

	t.Run("primary marked duplicated", func(t *testing.T) {
		bad := claim("x", "q", "A", "Transit", "Buses", "c1")
		bad.Duplicated = true
		tree := models.SortedTree{Topics: []models.TreeTopic{
			{Name: "Transit", Subtopics: []models.TreeSubtopic{
				{Name: "Buses", Claims: []models.Claim{bad}},
			}},
		}}
		assert.ErrorContains(t, ValidateSortedTree(tree, validateTaxonomy()), "marked as duplicated")
	})

	t.Run("merged claim missing marker", func(t *testing.T) {
		p := claim("x", "q", "A", "Transit", "Buses", "c1")
		p.Duplicates = []models.Claim{claim("y", "q2", "B", "Transit", "Buses", "c2")}
		tree := models.SortedTree{Topics: []models.TreeTopic{
			{Name: "Transit", Subtopics: []models.TreeSubtopic{
				{Name: "Buses", Claims: []models.Claim{p}},
			}},
		}}
		assert.ErrorContains(t, ValidateSortedTree(tree, validateTaxonomy()), "missing duplicated marker")
	})

	t.Run("nested duplicates", func(t *testing.T) {
		inner := claim("z", "q3", "C", "Transit", "Buses", "c3")
		inner.Duplicated = true
		d := claim("y", "q2", "B", "Transit", "Buses", "c2")
		d.Duplicated = true
		d.Duplicates = []models.Claim{inner}
		p := claim("x", "q", "A", "Transit", "Buses", "c1")
		p.Duplicates = []models.Claim{d}
		tree := models.SortedTree{Topics: []models.TreeTopic{
			{Name: "Transit", Subtopics: []models.TreeSubtopic{
				{Name: "Buses", Claims: []models.Claim{p}},
			}},
		}}
		assert.ErrorContains(t, ValidateSortedTree(tree, validateTaxonomy()), "nested duplicates")
	})
}

func TestValidateSummaries(t *testing.T) {
	tree := models.SortedTree{Topics: []models.TreeTopic{{Name: "Transit"}}}

	assert.NoError(t, ValidateSummaries([]models.TopicSummary{
		{TopicName: "Transit", Text: "Summary."},
	}, tree))

	assert.ErrorContains(t, ValidateSummaries([]models.TopicSummary{
		{TopicName: "Transit", Text: "  "},
	}, tree), "empty summary")

	assert.ErrorContains(t, ValidateSummaries([]models.TopicSummary{
		{TopicName: "Transit", Text: "a"},
		{TopicName: "Transit", Text: "b"},
	}, tree), "duplicate summary")

	assert.ErrorContains(t, ValidateSummaries(nil, tree), "missing summary")
}

func TestValidateCruxes(t *testing.T) {
	good := []models.SubtopicCrux{{
		TopicName: "Transit", SubtopicName: "Buses",
		CruxClaim: "Bus service should expand.",
		Agree:     []string{"1:Alice"},
		Disagree:  []string{"2:Bob"},
	}}
	assert.NoError(t, ValidateCruxes(good))

	t.Run("empty crux claim", func(t *testing.T) {
		bad := []models.SubtopicCrux{{TopicName: "T", SubtopicName: "S", CruxClaim: " "}}
		assert.ErrorContains(t, ValidateCruxes(bad), "empty crux claim")
	})

	t.Run("entry without speaker id", func(t *testing.T) {
		bad := []models.SubtopicCrux{{
			TopicName: "T", SubtopicName: "S", CruxClaim: "c",
			Agree: []string{"  :Alice"},
		}}
		assert.ErrorContains(t, ValidateCruxes(bad), "no speaker id")
	})

	t.Run("speaker in two lists", func(t *testing.T) {
		bad := []models.SubtopicCrux{{
			TopicName: "T", SubtopicName: "S", CruxClaim: "c",
			Agree:    []string{"1:Alice"},
			Disagree: []string{"1:Alice"},
		}}
		assert.ErrorContains(t, ValidateCruxes(bad), "in both")
	})

	t.Run("speaker listed twice in one list", func(t *testing.T) {
		bad := []models.SubtopicCrux{{
			TopicName: "T", SubtopicName: "S", CruxClaim: "c",
			Agree: []string{"1:Alice", "1:Al"},
		}}
		assert.ErrorContains(t, ValidateCruxes(bad), "listed twice")
	})
}
