package vocab

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
)

var (
	// ErrTreeNotBuilt is returned when quantizing with a tree that was
	// neither built nor loaded
	ErrTreeNotBuilt = errors.New("vocabulary tree is not built or loaded")

	// ErrInvalidBranching is returned for a branching factor below 2
	ErrInvalidBranching = errors.New("branching factor must be at least 2")

	// ErrInvalidDepth is returned for a depth below 1
	ErrInvalidDepth = errors.New("depth must be at least 1")

	// ErrEmptySample is returned when building from no descriptors
	ErrEmptySample = errors.New("no training descriptors provided")

	// ErrKindMismatch is returned when descriptors are binary and the tree is
	// real-valued or vice versa
	ErrKindMismatch = errors.New("descriptor kind mismatch")

	// ErrDimensionMismatch is returned when descriptor length differs from
	// the tree's
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

	// ErrMalformedTree is returned when a persisted tree fails validation
	ErrMalformedTree = errors.New("malformed vocabulary tree")

	// ErrUnknownChooser aliases the clustering sentinel so callers only need
	// this package
	ErrUnknownChooser = clustering.ErrUnknownChooser
)
