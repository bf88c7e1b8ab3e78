// Package descriptor holds the row-major descriptor containers consumed by
// the vocabulary tree and the bag-of-words database.
//
// A descriptor set is N rows (one per keypoint) by D columns. Binary
// descriptors store D bytes per row (8·D bits, compared with Hamming
// distance); real descriptors store D float64 values per row (compared with
// Euclidean distance) backed by a gonum dense matrix.
package descriptor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Kind identifies the element type of a descriptor set
type Kind int

const (
	// BinaryKind is bit-packed bytes compared with Hamming distance
	BinaryKind Kind = iota

	// RealKind is float64 values compared with Euclidean distance
	RealKind
)

// String returns the string representation of a kind
func (k Kind) String() string {
	switch k {
	case BinaryKind:
		return "binary"
	case RealKind:
		return "real"
	default:
		return "unknown"
	}
}

// ParseKind parses "binary" or "real"
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "binary", "uint8", "u8":
		return BinaryKind, nil
	case "real", "float", "float32", "float64":
		return RealKind, nil
	default:
		return 0, fmt.Errorf("unknown descriptor kind %q", s)
	}
}

// KindFromBinaryFlag maps the CLI style "binary=true|false" switch to a kind
func KindFromBinaryFlag(binary bool) Kind {
	if binary {
		return BinaryKind
	}
	return RealKind
}

// Element is the set of row element types
type Element interface {
	~uint8 | ~float64
}

// Matrix is the opaque 2D container handed to the core
type Matrix interface {
	// Rows returns the number of descriptors
	Rows() int

	// Cols returns the descriptor dimension (bytes for binary, values for real)
	Cols() int

	// Kind returns the element kind
	Kind() Kind
}

// Dataset is a Matrix whose rows can be read as []T without copying
type Dataset[T Element] interface {
	Matrix
	Row(i int) []T
}

// Binary is a bit-packed descriptor set
type Binary struct {
	rows int
	cols int
	data []byte
}

// ErrInvalidShape is returned for a negative shape, a shape whose element
// count overflows int, or rows without columns
var ErrInvalidShape = errors.New("invalid descriptor matrix shape")

// CheckShape validates a rows x cols shape before any allocation
func CheckShape(rows, cols int) error {
	if rows < 0 || cols < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidShape, rows, cols)
	}
	if rows > 0 && cols == 0 {
		return fmt.Errorf("%w: %d rows with no columns", ErrInvalidShape, rows)
	}
	if cols != 0 && rows > math.MaxInt/cols {
		return fmt.Errorf("%w: %dx%d overflows", ErrInvalidShape, rows, cols)
	}
	return nil
}

// NewBinary creates a binary descriptor set. data is row-major and is not
// copied; a nil data allocates a zeroed matrix.
func NewBinary(rows, cols int, data []byte) (*Binary, error) {
	if err := CheckShape(rows, cols); err != nil {
		return nil, err
	}
	if data == nil {
		data = make([]byte, rows*cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("binary matrix data length %d does not match shape %dx%d", len(data), rows, cols)
	}
	return &Binary{rows: rows, cols: cols, data: data}, nil
}

// BinaryFromRows builds a binary set from equal-length rows
func BinaryFromRows(rows [][]byte) (*Binary, error) {
	if len(rows) == 0 {
		return &Binary{}, nil
	}
	cols := len(rows[0])
	if err := CheckShape(len(rows), cols); err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d bytes, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return &Binary{rows: len(rows), cols: cols, data: data}, nil
}

func (b *Binary) Rows() int  { return b.rows }
func (b *Binary) Cols() int  { return b.cols }
func (b *Binary) Kind() Kind { return BinaryKind }

// Row returns a view of row i
func (b *Binary) Row(i int) []byte {
	return b.data[i*b.cols : (i+1)*b.cols : (i+1)*b.cols]
}

// Data returns the row-major backing slice
func (b *Binary) Data() []byte {
	return b.data
}

// Real is a real-valued descriptor set
type Real struct {
	dense *mat.Dense
}

// NewReal creates a real descriptor set. data is row-major and is not copied.
func NewReal(rows, cols int, data []float64) (*Real, error) {
	if err := CheckShape(rows, cols); err != nil {
		return nil, err
	}
	if data != nil && len(data) != rows*cols {
		return nil, fmt.Errorf("real matrix data length %d does not match shape %dx%d", len(data), rows, cols)
	}
	if rows == 0 || cols == 0 {
		// gonum refuses zero-sized dense matrices
		return &Real{}, nil
	}
	return &Real{dense: mat.NewDense(rows, cols, data)}, nil
}

// RealFromRows builds a real set from equal-length rows
func RealFromRows(rows [][]float64) (*Real, error) {
	if len(rows) == 0 {
		return &Real{}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return NewReal(len(rows), cols, data)
}

// RealFromDense wraps an existing gonum matrix
func RealFromDense(d *mat.Dense) *Real {
	return &Real{dense: d}
}

func (r *Real) Rows() int {
	if r.dense == nil {
		return 0
	}
	rows, _ := r.dense.Dims()
	return rows
}

func (r *Real) Cols() int {
	if r.dense == nil {
		return 0
	}
	_, cols := r.dense.Dims()
	return cols
}

func (r *Real) Kind() Kind { return RealKind }

// Row returns a view of row i
func (r *Real) Row(i int) []float64 {
	return r.dense.RawRowView(i)
}

// Dense returns the underlying gonum matrix, nil when empty
func (r *Real) Dense() *mat.Dense {
	return r.dense
}

// Check verifies that m has the expected kind and, when dim > 0, dimension
func Check(m Matrix, kind Kind, dim int) error {
	if m == nil {
		return fmt.Errorf("nil descriptor matrix")
	}
	if m.Kind() != kind {
		return &KindError{Expected: kind, Got: m.Kind()}
	}
	if dim > 0 && m.Rows() > 0 && m.Cols() != dim {
		return &DimensionError{Expected: dim, Got: m.Cols()}
	}
	return nil
}

// KindError reports a binary/real mismatch
type KindError struct {
	Expected Kind
	Got      Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("descriptor type doesn't coincide, expected [%s] but got [%s]", e.Expected, e.Got)
}

// DimensionError reports a descriptor length mismatch
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("descriptor dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
