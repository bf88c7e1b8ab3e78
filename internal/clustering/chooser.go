// Package clustering implements the k-means building blocks of the
// vocabulary tree: initial center selection and Lloyd relocation.
package clustering

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/distance"
)

// duplicateThreshold is the distance under which two candidate centers are
// considered the same point
const duplicateThreshold = 1e-16

// ChooserType selects a center initialization strategy
type ChooserType int

const (
	// RandomChooser picks distinct points uniformly at random
	RandomChooser ChooserType = iota

	// GonzalezChooser picks farthest points greedily
	GonzalezChooser

	// KMeansPPChooser samples proportionally to squared distance
	KMeansPPChooser
)

// String returns the string representation of a chooser type
func (c ChooserType) String() string {
	switch c {
	case RandomChooser:
		return "random"
	case GonzalezChooser:
		return "gonzalez"
	case KMeansPPChooser:
		return "kmeanspp"
	default:
		return "unknown"
	}
}

// ErrUnknownChooser is returned for an unrecognised chooser type
var ErrUnknownChooser = errors.New("unknown algorithm for choosing initial centers")

// ParseChooserType parses a chooser name
func ParseChooserType(s string) (ChooserType, error) {
	switch strings.ToLower(s) {
	case "random":
		return RandomChooser, nil
	case "gonzalez", "gonzales":
		return GonzalezChooser, nil
	case "kmeanspp", "kmeans++", "k-means++":
		return KMeansPPChooser, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownChooser, s)
	}
}

// CentersChooser selects up to k initial centers among indices.
// The returned slice holds dataset row indices and may be shorter than k
// when the subset cannot supply k distinct points.
type CentersChooser[T descriptor.Element] interface {
	ChooseCenters(k int, indices []int, data descriptor.Dataset[T]) []int
}

// NewChooser creates the chooser for the given type
func NewChooser[T descriptor.Element](kind ChooserType, metric distance.Metric[T], rng *rand.Rand) (CentersChooser[T], error) {
	switch kind {
	case RandomChooser:
		return &RandomCenters[T]{metric: metric, rng: rng}, nil
	case GonzalezChooser:
		return &GonzalezCenters[T]{metric: metric, rng: rng}, nil
	case KMeansPPChooser:
		return &KMeansPPCenters[T]{metric: metric, rng: rng}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownChooser, int(kind))
	}
}

// RandomCenters draws indices without replacement, skipping draws that
// duplicate an already accepted center
type RandomCenters[T descriptor.Element] struct {
	metric distance.Metric[T]
	rng    *rand.Rand
}

func (c *RandomCenters[T]) ChooseCenters(k int, indices []int, data descriptor.Dataset[T]) []int {
	centers := make([]int, 0, k)
	order := c.rng.Perm(len(indices))

	next := 0
	for len(centers) < k {
		accepted := false
		for !accepted {
			if next >= len(order) {
				// pool exhausted
				return centers
			}
			candidate := indices[order[next]]
			next++

			accepted = true
			for _, center := range centers {
				if c.metric.Distance(data.Row(candidate), data.Row(center)) < duplicateThreshold {
					accepted = false
					break
				}
			}
			if accepted {
				centers = append(centers, candidate)
			}
		}
	}

	return centers
}

// GonzalezCenters picks the first center at random, then repeatedly the point
// farthest from all centers chosen so far
type GonzalezCenters[T descriptor.Element] struct {
	metric distance.Metric[T]
	rng    *rand.Rand
}

func (c *GonzalezCenters[T]) ChooseCenters(k int, indices []int, data descriptor.Dataset[T]) []int {
	n := len(indices)
	if n == 0 || k <= 0 {
		return nil
	}

	centers := make([]int, 1, k)
	centers[0] = indices[c.rng.Intn(n)]

	// minDist[j] is the distance from indices[j] to its closest center
	minDist := make([]float64, n)
	for j, idx := range indices {
		minDist[j] = c.metric.Distance(data.Row(centers[0]), data.Row(idx))
	}

	for len(centers) < k {
		bestIndex := -1
		bestVal := 0.0
		for j, d := range minDist {
			if d > bestVal {
				bestVal = d
				bestIndex = j
			}
		}
		if bestIndex == -1 {
			break
		}

		center := indices[bestIndex]
		centers = append(centers, center)
		for j, idx := range indices {
			if d := c.metric.Distance(data.Row(center), data.Row(idx)); d < minDist[j] {
				minDist[j] = d
			}
		}
	}

	return centers
}

// KMeansPPCenters implements k-means++ seeding with a single trial per
// center
type KMeansPPCenters[T descriptor.Element] struct {
	metric distance.Metric[T]
	rng    *rand.Rand
}

func (c *KMeansPPCenters[T]) ChooseCenters(k int, indices []int, data descriptor.Dataset[T]) []int {
	n := len(indices)
	if n == 0 || k <= 0 {
		return nil
	}

	first := c.rng.Intn(n)
	centers := make([]int, 1, k)
	centers[0] = indices[first]

	// closestDistSq[i] is the squared distance from indices[i] to its
	// nearest center; currentPot is their sum
	closestDistSq := make([]float64, n)
	var currentPot float64
	for i, idx := range indices {
		d := c.metric.Distance(data.Row(idx), data.Row(centers[0]))
		closestDistSq[i] = d * d
		currentPot += closestDistSq[i]
	}

	for len(centers) < k {
		if currentPot <= 0 {
			// every remaining point coincides with a center
			break
		}

		// Walk the cumulative distribution; only points with a positive
		// distance can be picked so a chosen center is never a duplicate
		randVal := c.rng.Float64() * currentPot
		chosen := -1
		for i, d := range closestDistSq {
			if d <= 0 {
				continue
			}
			chosen = i
			if randVal <= d {
				break
			}
			randVal -= d
		}
		if chosen == -1 {
			break
		}

		center := indices[chosen]
		centers = append(centers, center)

		currentPot = 0
		for i, idx := range indices {
			d := c.metric.Distance(data.Row(idx), data.Row(center))
			if sq := d * d; sq < closestDistSq[i] {
				closestDistSq[i] = sq
			}
			currentPot += closestDistSq[i]
		}
	}

	return centers
}
