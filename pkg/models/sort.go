package models

// SortStrategy selects how topics and subtopics are ordered in the report tree.
type SortStrategy string

// Sort strategies.
const (
	// SortByNumPeople orders nodes descending by the count of distinct
	// speakers contributing claims to the node.
	SortByNumPeople SortStrategy = "numPeople"

	// SortByNumClaims orders nodes descending by total claim count in the
	// node, including merged duplicates.
	SortByNumClaims SortStrategy = "numClaims"
)

// Valid reports whether the strategy is one of the known values.
func (s SortStrategy) Valid() bool {
	return s == SortByNumPeople || s == SortByNumClaims
}
