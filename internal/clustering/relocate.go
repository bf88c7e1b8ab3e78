package clustering

import (
	"math"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/distance"
)

// DefaultMaxIterations caps Lloyd relocation when no limit is configured
const DefaultMaxIterations = 10

// Relocation is the outcome of Lloyd's algorithm over an index subset
type Relocation[T descriptor.Element] struct {
	// Centers are the final cluster representatives
	Centers [][]T

	// Assignment[i] is the center of indices[i]
	Assignment []int

	// Iterations performed (center recomputations)
	Iterations int

	// Converged is true when assignments stopped changing before the cap
	Converged bool
}

// Clusters groups the relocated indices by center. Empty clusters yield
// empty slices.
func (r *Relocation[T]) Clusters(indices []int) [][]int {
	clusters := make([][]int, len(r.Centers))
	for i, c := range r.Assignment {
		clusters[c] = append(clusters[c], indices[i])
	}
	return clusters
}

// Relocate runs Lloyd's algorithm over indices starting from the rows named
// by initial: assign every point to its nearest center, recompute each
// center from its points, and repeat until no assignment changes or
// maxIterations recomputations have been done. A center whose cluster is
// empty keeps its previous value.
func Relocate[T descriptor.Element](data descriptor.Dataset[T], indices, initial []int, metric distance.Metric[T], maxIterations int) *Relocation[T] {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	dim := data.Cols()
	centers := make([][]T, len(initial))
	for c, idx := range initial {
		centers[c] = make([]T, dim)
		copy(centers[c], data.Row(idx))
	}

	result := &Relocation[T]{
		Centers:    centers,
		Assignment: make([]int, len(indices)),
	}
	for i, idx := range indices {
		result.Assignment[i] = Nearest(metric, centers, data.Row(idx))
	}

	members := make([][][]T, len(centers))
	for iter := 0; iter < maxIterations; iter++ {
		for c := range members {
			members[c] = members[c][:0]
		}
		for i, idx := range indices {
			c := result.Assignment[i]
			members[c] = append(members[c], data.Row(idx))
		}

		for c := range centers {
			if len(members[c]) == 0 {
				continue
			}
			metric.Centroid(centers[c], members[c])
		}
		result.Iterations++

		changed := false
		for i, idx := range indices {
			nearest := Nearest(metric, centers, data.Row(idx))
			if nearest != result.Assignment[i] {
				result.Assignment[i] = nearest
				changed = true
			}
		}

		if !changed {
			result.Converged = true
			break
		}
	}

	return result
}

// Nearest returns the index of the center closest to row; ties go to the
// lowest index
func Nearest[T descriptor.Element](metric distance.Metric[T], centers [][]T, row []T) int {
	best := 0
	bestDist := math.Inf(1)
	for c, center := range centers {
		if d := metric.Distance(row, center); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}
