package bow

import (
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// WeightingScheme selects how word weights are computed
type WeightingScheme int

const (
	// BinaryWeighting gives every word weight 1
	BinaryWeighting WeightingScheme = iota

	// TFIDFWeighting gives word w weight ln(N/n_w), or 0 when no image
	// holds w
	TFIDFWeighting
)

// String returns the string representation of a scheme
func (s WeightingScheme) String() string {
	switch s {
	case BinaryWeighting:
		return "binary"
	case TFIDFWeighting:
		return "tfidf"
	default:
		return "unknown"
	}
}

// ParseWeightingScheme parses "binary" or "tfidf"
func ParseWeightingScheme(s string) (WeightingScheme, error) {
	switch strings.ToLower(s) {
	case "binary":
		return BinaryWeighting, nil
	case "tfidf", "tf-idf":
		return TFIDFWeighting, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
	}
}

// NormType selects the vector norm used for normalization and scoring
type NormType int

const (
	// L1Norm is the sum of absolute values
	L1Norm NormType = iota

	// L2Norm is the Euclidean norm
	L2Norm
)

// String returns the string representation of a norm
func (n NormType) String() string {
	switch n {
	case L1Norm:
		return "l1"
	case L2Norm:
		return "l2"
	default:
		return "unknown"
	}
}

// ParseNormType parses "l1" or "l2"
func ParseNormType(s string) (NormType, error) {
	switch strings.ToLower(s) {
	case "l1":
		return L1Norm, nil
	case "l2":
		return L2Norm, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownNorm, s)
	}
}

func (n NormType) valid() bool {
	return n == L1Norm || n == L2Norm
}

// Phase is the lifecycle stage of a database
type Phase int

const (
	// Empty holds no images
	Empty Phase = iota

	// Populated holds raw per-image word counts
	Populated

	// Weighted holds counts multiplied by word weights
	Weighted

	// Normalized holds weighted values divided by each image's norm
	Normalized
)

// String returns the string representation of a phase
func (p Phase) String() string {
	switch p {
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	case Weighted:
		return "weighted"
	case Normalized:
		return "normalized"
	default:
		return "unknown"
	}
}

// ParsePhase parses a phase name
func ParsePhase(s string) (Phase, error) {
	for _, p := range []Phase{Empty, Populated, Weighted, Normalized} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown database phase %q", s)
}

// Posting is one image's value for a word in the inverted index
type Posting struct {
	ImageID int
	Value   float64
}

// DirectEntry maps one descriptor of an image to its word
type DirectEntry struct {
	Word       int
	Descriptor int
}

// Score is the distance between a query and one database image. Lower is
// better.
type Score struct {
	ImageID  int
	Distance float64
}

// Image is one entry of a batch insertion
type Image struct {
	ID          int
	Descriptors descriptor.Matrix
}
