package analysis

import (
	"math"
	"sort"
)

// tieTolerance treats betweenness values this close as equal
const tieTolerance = 1e-12

// hubFlags thresholds betweenness at percentile p of the non-zero values.
// With the N non-zero values sorted ascending the threshold is the value at
// index floor(p*N), clamped to N-1; a node is a hub iff its betweenness is
// non-zero and at or above it. Ties at the threshold are all flagged.
func hubFlags(bet []float64, p float64) (float64, []bool) {
	hubs := make([]bool, len(bet))

	nonzero := make([]float64, 0, len(bet))
	for _, b := range bet {
		if b > 0 {
			nonzero = append(nonzero, b)
		}
	}
	if len(nonzero) == 0 {
		return 0, hubs
	}
	sort.Float64s(nonzero)

	idx := int(math.Floor(p*float64(len(nonzero)) + 1e-9))
	if idx > len(nonzero)-1 {
		idx = len(nonzero) - 1
	}
	threshold := nonzero[idx]

	for i, b := range bet {
		hubs[i] = b > 0 && b >= threshold-tieTolerance
	}
	return threshold, hubs
}
