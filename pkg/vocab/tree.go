// Package vocab implements the hierarchical k-means vocabulary tree.
//
// The tree recursively clusters a descriptor sample: every internal node
// holds up to k centers and one child per center, every leaf is a visual
// word. Nodes live in an arena addressed by index with the root at 0.
// Word ids are assigned in one depth-first pass after construction (child
// order = center order), so ids are dense, reproducible for a fixed seed,
// and survive save/load.
//
// Quantizing a descriptor descends to the nearest center at every level,
// costing O(depth × k) distance evaluations instead of a scan of every
// word.
package vocab

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/distance"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// Options holds tree construction parameters
type Options struct {
	Branching     int                    // Centers per internal node, k (>= 2)
	Depth         int                    // Maximum number of levels below the root (>= 1)
	Chooser       clustering.ChooserType // Initial center strategy
	MaxIterations int                    // Lloyd iteration cap (default: 10)
	Seed          int64                  // Random seed for center selection
	Logger        *observability.Logger  // Optional progress logger
}

// DefaultOptions returns the options used by the command line tools
func DefaultOptions() Options {
	return Options{
		Branching:     10,
		Depth:         6,
		Chooser:       clustering.KMeansPPChooser,
		MaxIterations: clustering.DefaultMaxIterations,
		Seed:          42,
	}
}

// Validate checks the configuration errors that must fail fast
func (o Options) Validate() error {
	if o.Branching < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidBranching, o.Branching)
	}
	if o.Depth < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidDepth, o.Depth)
	}
	switch o.Chooser {
	case clustering.RandomChooser, clustering.GonzalezChooser, clustering.KMeansPPChooser:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownChooser, int(o.Chooser))
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be >= 0, got %d", o.MaxIterations)
	}
	return nil
}

// node is an arena entry. Internal nodes have Word == -1 and
// len(Centers) == len(Children); leaves have no centers.
type node[T descriptor.Element] struct {
	Centers  [][]T
	Children []int
	Word     int
}

func (n *node[T]) isLeaf() bool {
	return len(n.Children) == 0
}

// Tree is a vocabulary tree over descriptors of element type T
type Tree[T descriptor.Element] struct {
	metric    distance.Metric[T]
	branching int
	depth     int
	dim       int
	nodes     []node[T]
	words     int
}

// New creates an empty tree using metric
func New[T descriptor.Element](metric distance.Metric[T]) *Tree[T] {
	return &Tree[T]{metric: metric}
}

// Kind returns the descriptor kind accepted by the tree
func (t *Tree[T]) Kind() descriptor.Kind { return t.metric.Kind() }

// Dim returns the descriptor dimension, 0 before build/load
func (t *Tree[T]) Dim() int { return t.dim }

// Branching returns the branching factor
func (t *Tree[T]) Branching() int { return t.branching }

// Depth returns the maximum depth
func (t *Tree[T]) Depth() int { return t.depth }

// Size returns the number of words (leaves)
func (t *Tree[T]) Size() int { return t.words }

// Nodes returns the number of nodes in the arena
func (t *Tree[T]) Nodes() int { return len(t.nodes) }

// Built reports whether the tree was built or loaded
func (t *Tree[T]) Built() bool { return len(t.nodes) > 0 }

// Build clusters samples into a new tree, replacing any previous content
func (t *Tree[T]) Build(samples descriptor.Matrix, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	// a rebuild may change the dimension
	data, err := t.datasetOf(samples, 0)
	if err != nil {
		return err
	}
	if data.Rows() == 0 {
		return ErrEmptySample
	}
	if data.Cols() == 0 {
		return fmt.Errorf("%w: descriptors have no columns", ErrEmptySample)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	chooser, err := clustering.NewChooser[T](opts.Chooser, t.metric, rng)
	if err != nil {
		return err
	}

	start := time.Now()
	b := &builder[T]{
		data:          data,
		metric:        t.metric,
		chooser:       chooser,
		branching:     opts.Branching,
		depth:         opts.Depth,
		maxIterations: opts.MaxIterations,
	}

	indices := make([]int, data.Rows())
	for i := range indices {
		indices[i] = i
	}
	b.build(indices, 0)

	t.branching = opts.Branching
	t.depth = opts.Depth
	t.dim = data.Cols()
	t.nodes = b.nodes
	t.words = assignWords(t.nodes)

	if opts.Logger != nil {
		opts.Logger.Info("Vocabulary tree built", map[string]interface{}{
			"descriptors": data.Rows(),
			"branching":   t.branching,
			"depth":       t.depth,
			"chooser":     opts.Chooser.String(),
			"nodes":       len(t.nodes),
			"words":       t.words,
			"duration":    time.Since(start),
		})
	}

	return nil
}

// dataset checks m against the tree's kind (and dimension once known) and
// returns its typed row view
func (t *Tree[T]) dataset(m descriptor.Matrix) (descriptor.Dataset[T], error) {
	return t.datasetOf(m, t.dim)
}

func (t *Tree[T]) datasetOf(m descriptor.Matrix, dim int) (descriptor.Dataset[T], error) {
	if err := descriptor.Check(m, t.metric.Kind(), dim); err != nil {
		switch err.(type) {
		case *descriptor.KindError:
			return nil, fmt.Errorf("%w: %v", ErrKindMismatch, err)
		case *descriptor.DimensionError:
			return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		default:
			return nil, err
		}
	}

	data, ok := m.(descriptor.Dataset[T])
	if !ok {
		return nil, fmt.Errorf("%w: container %T does not expose %s rows", ErrKindMismatch, m, t.metric.Kind())
	}
	return data, nil
}

// builder carries the state of one recursive construction
type builder[T descriptor.Element] struct {
	data          descriptor.Dataset[T]
	metric        distance.Metric[T]
	chooser       clustering.CentersChooser[T]
	branching     int
	depth         int
	maxIterations int
	nodes         []node[T]
}

// build appends the subtree over indices to the arena and returns its root
func (b *builder[T]) build(indices []int, level int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node[T]{Word: -1})

	if len(indices) <= b.branching || level >= b.depth {
		return id
	}

	initial := b.chooser.ChooseCenters(b.branching, indices, b.data)
	if len(initial) < b.branching {
		// not enough distinct points to split
		return id
	}

	reloc := clustering.Relocate[T](b.data, indices, initial, b.metric, b.maxIterations)
	clusters := reloc.Clusters(indices)

	nonEmpty := 0
	for _, cluster := range clusters {
		if len(cluster) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return id
	}

	centers := make([][]T, 0, nonEmpty)
	children := make([]int, 0, nonEmpty)
	for c, cluster := range clusters {
		if len(cluster) == 0 {
			continue
		}
		centers = append(centers, reloc.Centers[c])
		children = append(children, b.build(cluster, level+1))
	}

	// b.nodes may have been reallocated by the recursion
	b.nodes[id].Centers = centers
	b.nodes[id].Children = children
	return id
}

// assignWords numbers the leaves depth-first in child order and returns
// the number of words
func assignWords[T descriptor.Element](nodes []node[T]) int {
	if len(nodes) == 0 {
		return 0
	}

	next := 0
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &nodes[id]
		if n.isLeaf() {
			n.Word = next
			next++
			continue
		}
		n.Word = -1
		// push in reverse so the first child is visited first
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return next
}
