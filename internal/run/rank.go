package run

import (
	"slices"

	"github.com/metalagman/quorum/internal/pipeline"
)

// Rank orders candidates by passed first, then by score, both descending.
// Equal candidates keep their input order.
func Rank(candidates []pipeline.Candidate) []pipeline.Candidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b pipeline.Candidate) int {
		if a.Passed != b.Passed {
			if a.Passed {
				return -1
			}
			return 1
		}
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return ranked
}

// Select returns the ids of the first top ranked candidates.
func Select(ranked []pipeline.Candidate, top int) []string {
	n := max(0, min(top, len(ranked)))
	ids := make([]string, n)
	for i := range n {
		ids[i] = ranked[i].ID
	}
	return ids
}
