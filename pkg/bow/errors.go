package bow

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

var (
	// ErrTreeNotBuilt is returned when the database's tree was neither
	// built nor loaded
	ErrTreeNotBuilt = vocab.ErrTreeNotBuilt

	// ErrKindMismatch is returned when descriptors do not match the tree kind
	ErrKindMismatch = vocab.ErrKindMismatch

	// ErrDimensionMismatch is returned when descriptor length differs from
	// the tree's
	ErrDimensionMismatch = vocab.ErrDimensionMismatch

	// ErrDuplicateImage is returned when an image id is inserted twice
	ErrDuplicateImage = errors.New("image already in database")

	// ErrEmptyDatabase is returned when scoring against a database without
	// images
	ErrEmptyDatabase = errors.New("database has no images")

	// ErrInvalidPhase is returned when an operation is called out of order
	ErrInvalidPhase = errors.New("operation not allowed in current database phase")

	// ErrWeightsNotComputed is returned by CreateDatabase before
	// ComputeWordsWeights
	ErrWeightsNotComputed = errors.New("word weights not computed")

	// ErrUnknownNorm is returned for an unsupported norm type
	ErrUnknownNorm = errors.New("unknown norm type")

	// ErrUnknownScheme is returned for an unsupported weighting scheme
	ErrUnknownScheme = errors.New("unknown weighting scheme")

	// ErrUnknownImage is returned when a direct index references an image
	// the inverted index does not hold
	ErrUnknownImage = errors.New("unknown image")

	// ErrMalformedIndex is returned when a persisted index fails validation
	ErrMalformedIndex = errors.New("malformed index")
)
