package vocab

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// treeDoc is the persisted form of a tree
type treeDoc struct {
	Kind      string    `yaml:"kind"`
	Branching int       `yaml:"branching"`
	Depth     int       `yaml:"depth"`
	Dim       int       `yaml:"dim"`
	Words     int       `yaml:"words"`
	Nodes     []nodeDoc `yaml:"nodes"`
}

// nodeDoc stores a node; Word is -1 for internal nodes
type nodeDoc struct {
	Word     int         `yaml:"word"`
	Children []int       `yaml:"children,flow,omitempty"`
	Centers  [][]float64 `yaml:"centers,flow,omitempty"`
}

// Save writes the tree to path as gzip-compressed YAML
func (t *Tree[T]) Save(path string) error {
	if !t.Built() {
		return ErrTreeNotBuilt
	}
	return yamlgz.WriteFile(path, t.toDoc())
}

func (t *Tree[T]) toDoc() *treeDoc {
	doc := &treeDoc{
		Kind:      t.metric.Kind().String(),
		Branching: t.branching,
		Depth:     t.depth,
		Dim:       t.dim,
		Words:     t.words,
		Nodes:     make([]nodeDoc, len(t.nodes)),
	}

	for i, n := range t.nodes {
		nd := nodeDoc{Word: n.Word}
		if !n.isLeaf() {
			nd.Children = append([]int(nil), n.Children...)
			nd.Centers = make([][]float64, len(n.Centers))
			for c, center := range n.Centers {
				values := make([]float64, len(center))
				for j, v := range center {
					values[j] = float64(v)
				}
				nd.Centers[c] = values
			}
		}
		doc.Nodes[i] = nd
	}
	return doc
}

// Load replaces the tree with the one stored at path. The tree is left
// untouched when the file cannot be read or fails validation.
func (t *Tree[T]) Load(path string) error {
	var doc treeDoc
	if err := yamlgz.ReadFile(path, &doc); err != nil {
		return err
	}

	return t.load(path, &doc)
}

func (t *Tree[T]) load(path string, doc *treeDoc) error {
	nodes, err := t.fromDoc(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	t.branching = doc.Branching
	t.depth = doc.Depth
	t.dim = doc.Dim
	t.nodes = nodes
	t.words = doc.Words
	return nil
}

func (t *Tree[T]) fromDoc(doc *treeDoc) ([]node[T], error) {
	kind, err := descriptor.ParseKind(doc.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if kind != t.metric.Kind() {
		return nil, fmt.Errorf("%w: file holds a %s tree, expected %s", ErrKindMismatch, kind, t.metric.Kind())
	}
	if doc.Branching < 2 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, ErrInvalidBranching)
	}
	if doc.Depth < 1 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, ErrInvalidDepth)
	}
	if doc.Dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrMalformedTree, doc.Dim)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrMalformedTree)
	}

	nodes := make([]node[T], len(doc.Nodes))
	for i, nd := range doc.Nodes {
		if len(nd.Children) != len(nd.Centers) {
			return nil, fmt.Errorf("%w: node %d has %d children and %d centers",
				ErrMalformedTree, i, len(nd.Children), len(nd.Centers))
		}
		if len(nd.Children) > doc.Branching {
			return nil, fmt.Errorf("%w: node %d has %d children, branching is %d",
				ErrMalformedTree, i, len(nd.Children), doc.Branching)
		}

		n := node[T]{Word: nd.Word}
		for _, child := range nd.Children {
			// children always follow their parent in the arena
			if child <= i || child >= len(doc.Nodes) {
				return nil, fmt.Errorf("%w: node %d has invalid child %d", ErrMalformedTree, i, child)
			}
		}
		n.Children = append([]int(nil), nd.Children...)

		for c, values := range nd.Centers {
			center, err := t.centerFrom(values, doc.Dim)
			if err != nil {
				return nil, fmt.Errorf("%w: node %d center %d: %v", ErrMalformedTree, i, c, err)
			}
			n.Centers = append(n.Centers, center)
		}
		nodes[i] = n
	}

	// Recompute the depth-first numbering; it must match what was stored
	// and reach every node exactly once
	stored := make([]int, len(nodes))
	for i := range nodes {
		stored[i] = nodes[i].Word
	}
	if err := checkReachable(nodes); err != nil {
		return nil, err
	}
	words := assignWords(nodes)
	if words != doc.Words {
		return nil, fmt.Errorf("%w: %d leaves but %d words declared", ErrMalformedTree, words, doc.Words)
	}
	for i := range nodes {
		if nodes[i].Word != stored[i] {
			return nil, fmt.Errorf("%w: node %d has word %d, expected %d",
				ErrMalformedTree, i, stored[i], nodes[i].Word)
		}
	}

	return nodes, nil
}

// centerFrom converts persisted values to a center of element type T
func (t *Tree[T]) centerFrom(values []float64, dim int) ([]T, error) {
	if len(values) != dim {
		return nil, fmt.Errorf("length %d, expected %d", len(values), dim)
	}

	center := make([]T, dim)
	for j, v := range values {
		if t.metric.Kind() == descriptor.BinaryKind && (v < 0 || v > 255 || v != float64(int(v))) {
			return nil, fmt.Errorf("value %v is not a byte", v)
		}
		center[j] = T(v)
	}
	return center, nil
}

// checkReachable verifies every node has exactly one parent except the root
func checkReachable[T descriptor.Element](nodes []node[T]) error {
	parents := make([]int, len(nodes))
	for i := range nodes {
		for _, child := range nodes[i].Children {
			parents[child]++
		}
	}
	if parents[0] != 0 {
		return fmt.Errorf("%w: root has a parent", ErrMalformedTree)
	}
	for i := 1; i < len(parents); i++ {
		if parents[i] != 1 {
			return fmt.Errorf("%w: node %d has %d parents", ErrMalformedTree, i, parents[i])
		}
	}
	return nil
}
