package pileq

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// median returns the middle value of an unsorted slice without mutating
// the caller's backing array.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

// percentile returns the p-th percentile (0-100) of an unsorted slice
// using gonum's nearest-rank quantile, matching the reference pipeline's
// np.percentile usage for floor-flatness and grid-cell height scoring.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p/100.0, stat.Empirical, sorted, nil)
}
