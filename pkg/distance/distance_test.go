package distance

import (
	"math"
	"testing"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestHamming_Distance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []byte
		expected float64
	}{
		{"identical", []byte{0xAA, 0x0F}, []byte{0xAA, 0x0F}, 0},
		{"all bits", []byte{0x00}, []byte{0xFF}, 8},
		{"mixed", []byte{0x01, 0x80}, []byte{0x03, 0x00}, 2},
	}

	var h Hamming
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Distance(tt.a, tt.b); got != tt.expected {
				t.Errorf("Distance() = %v, expected %v", got, tt.expected)
			}
		})
	}

	if h.Kind() != descriptor.BinaryKind {
		t.Error("Hamming should apply to binary descriptors")
	}
}

func TestHamming_DimensionMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for mismatched dimensions")
		}
	}()
	Hamming{}.Distance([]byte{1}, []byte{1, 2})
}

func TestHamming_Centroid(t *testing.T) {
	rows := [][]byte{
		{0b1100_0001},
		{0b1000_0001},
		{0b0100_0000},
	}
	dst := make([]byte, 1)
	Hamming{}.Centroid(dst, rows)

	// bit 7: 2/3, bit 6: 2/3, bit 0: 2/3
	if dst[0] != 0b1100_0001 {
		t.Errorf("Expected majority 0b11000001, got %08b", dst[0])
	}

	// A 1-1 tie resolves to zero
	Hamming{}.Centroid(dst, [][]byte{{0xFF}, {0x00}})
	if dst[0] != 0 {
		t.Errorf("Expected tie to resolve to 0, got %08b", dst[0])
	}
}

func TestL2_Distance(t *testing.T) {
	var l2 L2
	if got := l2.Distance([]float64{0, 0}, []float64{3, 4}); !almostEqual(got, 5) {
		t.Errorf("Expected 5, got %v", got)
	}
	if got := l2.Distance([]float64{1, 2, 3}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
	if l2.Kind() != descriptor.RealKind {
		t.Error("L2 should apply to real descriptors")
	}
}

func TestL2_Centroid(t *testing.T) {
	dst := []float64{9, 9}
	L2{}.Centroid(dst, [][]float64{{0, 2}, {2, 4}, {4, 0}})
	if !almostEqual(dst[0], 2) || !almostEqual(dst[1], 2) {
		t.Errorf("Expected [2 2], got %v", dst)
	}

	L2{}.Centroid(dst, nil)
	if dst[0] != 0 || dst[1] != 0 {
		t.Errorf("Expected zeroed centroid for no rows, got %v", dst)
	}
}
