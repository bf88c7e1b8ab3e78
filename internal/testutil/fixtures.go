// Package testutil builds small prepared databases for transport tests
package testutil

import (
	"math/rand"
	"testing"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

// ClusteredImage returns n two-dimensional descriptors in [offset, offset+1)
func ClusteredImage(seed int64, n int, offset float64) *descriptor.Real {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{offset + rng.Float64(), offset + rng.Float64()}
	}
	m, _ := descriptor.RealFromRows(rows)
	return m
}

// Database builds a TF-IDF weighted, L1 normalized database of four images
// lying in well separated regions. Image i is returned at index i.
func Database(t testing.TB) (*bow.Database, []*descriptor.Real) {
	t.Helper()

	images := []*descriptor.Real{
		ClusteredImage(1, 10, 0),
		ClusteredImage(2, 10, 100),
		ClusteredImage(3, 10, 200),
		ClusteredImage(4, 10, 300),
	}

	var rows [][]float64
	for _, img := range images {
		for i := 0; i < img.Rows(); i++ {
			rows = append(rows, img.Row(i))
		}
	}
	sample, err := descriptor.RealFromRows(rows)
	if err != nil {
		t.Fatalf("RealFromRows failed: %v", err)
	}

	opts := vocab.DefaultOptions()
	opts.Branching = 4
	opts.Depth = 2
	tree, err := vocab.Build(sample, opts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	db := bow.New(tree)
	for id, img := range images {
		if err := db.AddImageToDatabase(id, img); err != nil {
			t.Fatalf("AddImageToDatabase failed: %v", err)
		}
	}
	if err := db.ComputeWordsWeights(bow.TFIDFWeighting); err != nil {
		t.Fatalf("ComputeWordsWeights failed: %v", err)
	}
	if err := db.CreateDatabase(); err != nil {
		t.Fatalf("CreateDatabase failed: %v", err)
	}
	if err := db.NormalizeDatabase(bow.L1Norm); err != nil {
		t.Fatalf("NormalizeDatabase failed: %v", err)
	}
	return db, images
}
