// Package distance provides the pairwise metrics the vocabulary tree is
// generic over: Hamming distance for bit-packed binary descriptors and
// Euclidean (L2) distance for real-valued descriptors.
package distance

import (
	"math/bits"

	"gonum.org/v1/gonum/floats"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// Metric is a distance over fixed-dimension rows of element type T, plus the
// centroid rule used by k-means relocation in that space.
type Metric[T descriptor.Element] interface {
	// Kind returns the descriptor kind this metric applies to
	Kind() descriptor.Kind

	// Distance returns the distance between a and b (lower = closer)
	Distance(a, b []T) float64

	// Centroid writes into dst the representative of rows:
	// the mean for real rows, the per-bit majority for binary rows
	Centroid(dst []T, rows [][]T)
}

// Hamming counts differing bits between bit-packed byte rows
type Hamming struct{}

func (Hamming) Kind() descriptor.Kind { return descriptor.BinaryKind }

// Distance returns the number of differing bits
// Formula: Σ popcount(a[i] XOR b[i])
func (Hamming) Distance(a, b []byte) float64 {
	if len(a) != len(b) {
		panic("descriptors must have the same dimension")
	}

	var n int
	for i := range a {
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return float64(n)
}

// Centroid sets every bit of dst to the majority value across rows.
// Ties resolve to 0.
func (Hamming) Centroid(dst []byte, rows [][]byte) {
	for i := range dst {
		dst[i] = 0
	}
	if len(rows) == 0 {
		return
	}

	counts := make([]int, len(dst)*8)
	for _, row := range rows {
		for i, b := range row {
			for bit := 0; bit < 8; bit++ {
				if b&(1<<uint(bit)) != 0 {
					counts[i*8+bit]++
				}
			}
		}
	}

	half := len(rows) / 2
	for i := range dst {
		var b byte
		for bit := 0; bit < 8; bit++ {
			if counts[i*8+bit] > half {
				b |= 1 << uint(bit)
			}
		}
		dst[i] = b
	}
}

// L2 is the Euclidean distance between real rows
type L2 struct{}

func (L2) Kind() descriptor.Kind { return descriptor.RealKind }

// Distance returns sqrt(Σ(a[i] - b[i])²)
func (L2) Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("descriptors must have the same dimension")
	}
	return floats.Distance(a, b, 2)
}

// Centroid sets dst to the arithmetic mean of rows
func (L2) Centroid(dst []float64, rows [][]float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(rows) == 0 {
		return
	}

	for _, row := range rows {
		floats.Add(dst, row)
	}
	floats.Scale(1/float64(len(rows)), dst)
}
