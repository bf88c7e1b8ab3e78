package vocab

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/distance"
)

// Vocabulary is the kind-erased view of a Tree used by the database and the
// command line tools
type Vocabulary interface {
	Kind() descriptor.Kind
	Dim() int
	Branching() int
	Depth() int
	Size() int
	Nodes() int
	Built() bool
	Build(samples descriptor.Matrix, opts Options) error
	QuantizeAll(m descriptor.Matrix) ([]int, error)
	Save(path string) error
	Load(path string) error
}

var (
	_ Vocabulary = (*Tree[byte])(nil)
	_ Vocabulary = (*Tree[float64])(nil)
)

// NewVocabulary returns an empty tree for descriptors of the given kind:
// Hamming over bytes for binary, Euclidean over float64 for real
func NewVocabulary(kind descriptor.Kind) (Vocabulary, error) {
	switch kind {
	case descriptor.BinaryKind:
		return New[byte](distance.Hamming{}), nil
	case descriptor.RealKind:
		return New[float64](distance.L2{}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrKindMismatch, kind)
	}
}

// Build creates a tree matching the kind of samples and builds it
func Build(samples descriptor.Matrix, opts Options) (Vocabulary, error) {
	if samples == nil {
		return nil, ErrEmptySample
	}
	v, err := NewVocabulary(samples.Kind())
	if err != nil {
		return nil, err
	}
	if err := v.Build(samples, opts); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads a tree of whichever kind is stored at path
func Load(path string) (Vocabulary, error) {
	var doc treeDoc
	if err := yamlgz.ReadFile(path, &doc); err != nil {
		return nil, err
	}

	kind, err := descriptor.ParseKind(doc.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedTree, err)
	}

	switch kind {
	case descriptor.BinaryKind:
		t := New[byte](distance.Hamming{})
		if err := t.load(path, &doc); err != nil {
			return nil, err
		}
		return t, nil
	default:
		t := New[float64](distance.L2{})
		if err := t.load(path, &doc); err != nil {
			return nil, err
		}
		return t, nil
	}
}
