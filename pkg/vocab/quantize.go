package vocab

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// Quantize returns the word id of a single descriptor
func (t *Tree[T]) Quantize(row []T) (int, error) {
	if !t.Built() {
		return -1, ErrTreeNotBuilt
	}
	if len(row) != t.dim {
		return -1, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, t.dim, len(row))
	}
	return t.quantize(row), nil
}

// quantize descends from the root to the leaf nearest to row
func (t *Tree[T]) quantize(row []T) int {
	n := &t.nodes[0]
	for !n.isLeaf() {
		c := clustering.Nearest(t.metric, n.Centers, row)
		n = &t.nodes[n.Children[c]]
	}
	return n.Word
}

// QuantizeAll returns one word id per row of m, in row order. Kind and
// dimension are validated before any descriptor is quantized.
func (t *Tree[T]) QuantizeAll(m descriptor.Matrix) ([]int, error) {
	if !t.Built() {
		return nil, ErrTreeNotBuilt
	}

	data, err := t.dataset(m)
	if err != nil {
		return nil, err
	}

	words := make([]int, data.Rows())
	for i := range words {
		words[i] = t.quantize(data.Row(i))
	}
	return words, nil
}
