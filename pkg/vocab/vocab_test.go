package vocab

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/distance"
)

func generateReal(n, dim int, seed int64) *descriptor.Real {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dim)
		for j := range rows[i] {
			rows[i][j] = rng.Float64()
		}
	}
	m, _ := descriptor.RealFromRows(rows)
	return m
}

func generateBinary(n, dim int, seed int64) *descriptor.Binary {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, n*dim)
	rng.Read(data)
	m, _ := descriptor.NewBinary(n, dim, data)
	return m
}

// separatedGroups returns groups of 2D points around far apart centers
func separatedGroups(groups, perGroup int, seed int64) *descriptor.Real {
	rng := rand.New(rand.NewSource(seed))
	var rows [][]float64
	for g := 0; g < groups; g++ {
		for i := 0; i < perGroup; i++ {
			rows = append(rows, []float64{float64(g)*1000 + rng.Float64(), rng.Float64()})
		}
	}
	m, _ := descriptor.RealFromRows(rows)
	return m
}

func testOptions(k, depth int) Options {
	opts := DefaultOptions()
	opts.Branching = k
	opts.Depth = depth
	return opts
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"branching", Options{Branching: 1, Depth: 3}, ErrInvalidBranching},
		{"depth", Options{Branching: 4, Depth: 0}, ErrInvalidDepth},
		{"chooser", Options{Branching: 4, Depth: 2, Chooser: clustering.ChooserType(99)}, ErrUnknownChooser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("Default options should be valid: %v", err)
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	tree := New[float64](distance.L2{})

	if err := tree.Build(generateReal(10, 4, 1), testOptions(1, 2)); !errors.Is(err, ErrInvalidBranching) {
		t.Errorf("Expected ErrInvalidBranching, got %v", err)
	}

	empty, _ := descriptor.NewReal(0, 4, nil)
	if err := tree.Build(empty, testOptions(2, 2)); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}

	if err := tree.Build(generateBinary(10, 4, 1), testOptions(2, 2)); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Expected ErrKindMismatch, got %v", err)
	}

	if tree.Built() {
		t.Error("Tree should not be built after failed builds")
	}
}

// zeroWidth is a binary set of rows holding no bytes
type zeroWidth struct{ rows int }

func (z zeroWidth) Rows() int             { return z.rows }
func (z zeroWidth) Cols() int             { return 0 }
func (z zeroWidth) Kind() descriptor.Kind { return descriptor.BinaryKind }
func (z zeroWidth) Row(i int) []byte      { return nil }

func TestBuild_ZeroColumns(t *testing.T) {
	tree := New[byte](distance.Hamming{})
	if err := tree.Build(zeroWidth{rows: 5}, testOptions(2, 2)); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}
	if tree.Built() {
		t.Error("Tree should not be built from zero width descriptors")
	}
}

func TestBuild_NilSamples(t *testing.T) {
	if _, err := Build(nil, DefaultOptions()); !errors.Is(err, ErrEmptySample) {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}
}

func TestQuantize_NotBuilt(t *testing.T) {
	tree := New[byte](distance.Hamming{})

	if _, err := tree.Quantize(make([]byte, 32)); !errors.Is(err, ErrTreeNotBuilt) {
		t.Errorf("Expected ErrTreeNotBuilt, got %v", err)
	}
	if _, err := tree.QuantizeAll(generateBinary(3, 32, 1)); !errors.Is(err, ErrTreeNotBuilt) {
		t.Errorf("Expected ErrTreeNotBuilt, got %v", err)
	}
	if err := tree.Save(filepath.Join(t.TempDir(), "tree.yaml.gz")); !errors.Is(err, ErrTreeNotBuilt) {
		t.Errorf("Expected ErrTreeNotBuilt, got %v", err)
	}
}

func TestBuild_SeparatedGroups(t *testing.T) {
	data := separatedGroups(3, 20, 42)
	tree := New[float64](distance.L2{})

	if err := tree.Build(data, testOptions(3, 1)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tree.Size() != 3 {
		t.Fatalf("Expected 3 words, got %d", tree.Size())
	}

	words, err := tree.QuantizeAll(data)
	if err != nil {
		t.Fatalf("QuantizeAll failed: %v", err)
	}

	seen := make(map[int]bool)
	for g := 0; g < 3; g++ {
		word := words[g*20]
		for i := 0; i < 20; i++ {
			if words[g*20+i] != word {
				t.Errorf("Group %d: descriptor %d mapped to %d, expected %d", g, i, words[g*20+i], word)
			}
		}
		if seen[word] {
			t.Errorf("Word %d shared between groups", word)
		}
		seen[word] = true
	}
}

func TestBuild_WordIDsInRange(t *testing.T) {
	tests := []struct {
		name string
		data descriptor.Matrix
	}{
		{"real", generateReal(500, 8, 3)},
		{"binary", generateBinary(500, 32, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Build(tt.data, testOptions(4, 3))
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if tree.Size() < 2 || tree.Size() > 64 {
				t.Fatalf("Expected between 2 and 64 words, got %d", tree.Size())
			}

			words, err := tree.QuantizeAll(tt.data)
			if err != nil {
				t.Fatalf("QuantizeAll failed: %v", err)
			}
			for i, w := range words {
				if w < 0 || w >= tree.Size() {
					t.Fatalf("Descriptor %d: word %d out of range [0, %d)", i, w, tree.Size())
				}
			}
		})
	}
}

func TestBuild_SmallSampleIsSingleLeaf(t *testing.T) {
	tree := New[float64](distance.L2{})
	if err := tree.Build(generateReal(3, 4, 1), testOptions(4, 3)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tree.Size() != 1 || tree.Nodes() != 1 {
		t.Errorf("Expected a single leaf, got %d words and %d nodes", tree.Size(), tree.Nodes())
	}

	word, err := tree.Quantize([]float64{0.5, 0.5, 0.5, 0.5})
	if err != nil || word != 0 {
		t.Errorf("Expected word 0, got %d (%v)", word, err)
	}
}

func TestBuild_IdenticalSamples(t *testing.T) {
	rows := make([][]byte, 50)
	for i := range rows {
		rows[i] = []byte{0xAA, 0x55}
	}
	data, _ := descriptor.BinaryFromRows(rows)

	tree := New[byte](distance.Hamming{})
	if err := tree.Build(data, testOptions(3, 4)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if tree.Size() != 1 {
		t.Errorf("Expected identical samples to form one word, got %d", tree.Size())
	}
}

func TestQuantize_Deterministic(t *testing.T) {
	for _, chooser := range []clustering.ChooserType{clustering.RandomChooser, clustering.GonzalezChooser, clustering.KMeansPPChooser} {
		t.Run(chooser.String(), func(t *testing.T) {
			data := generateReal(400, 6, 11)
			queries := generateReal(50, 6, 12)

			opts := testOptions(3, 3)
			opts.Chooser = chooser

			a, _ := Build(data, opts)
			b, _ := Build(data, opts)

			wa, _ := a.QuantizeAll(queries)
			wb, _ := b.QuantizeAll(queries)
			for i := range wa {
				if wa[i] != wb[i] {
					t.Fatalf("Query %d: expected identical words, got %d and %d", i, wa[i], wb[i])
				}
			}

			// quantizing twice gives the same answer
			again, _ := a.QuantizeAll(queries)
			for i := range wa {
				if wa[i] != again[i] {
					t.Fatalf("Query %d: repeated quantization changed from %d to %d", i, wa[i], again[i])
				}
			}
		})
	}
}

func TestQuantizeAll_Mismatch(t *testing.T) {
	tree, err := Build(generateReal(100, 4, 1), testOptions(2, 2))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := tree.QuantizeAll(generateReal(5, 5, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := tree.QuantizeAll(generateBinary(5, 4, 2)); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Expected ErrKindMismatch, got %v", err)
	}

	empty, _ := descriptor.NewReal(0, 4, nil)
	words, err := tree.QuantizeAll(empty)
	if err != nil || len(words) != 0 {
		t.Errorf("Expected no words for an empty set, got %v (%v)", words, err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		data    descriptor.Matrix
		queries descriptor.Matrix
	}{
		{"real", generateReal(300, 8, 5), generateReal(40, 8, 6)},
		{"binary", generateBinary(300, 32, 5), generateBinary(40, 32, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tree.yaml.gz")

			tree, err := Build(tt.data, testOptions(3, 3))
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if err := tree.Save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.Kind() != tree.Kind() || loaded.Size() != tree.Size() || loaded.Nodes() != tree.Nodes() {
				t.Fatalf("Expected kind=%s size=%d nodes=%d, got kind=%s size=%d nodes=%d",
					tree.Kind(), tree.Size(), tree.Nodes(), loaded.Kind(), loaded.Size(), loaded.Nodes())
			}
			if loaded.Branching() != 3 || loaded.Depth() != 3 || loaded.Dim() != tree.Dim() {
				t.Errorf("Parameters not restored: k=%d depth=%d dim=%d", loaded.Branching(), loaded.Depth(), loaded.Dim())
			}

			want, _ := tree.QuantizeAll(tt.queries)
			got, err := loaded.QuantizeAll(tt.queries)
			if err != nil {
				t.Fatalf("QuantizeAll failed: %v", err)
			}
			for i := range want {
				if want[i] != got[i] {
					t.Errorf("Query %d: expected word %d, got %d", i, want[i], got[i])
				}
			}
		})
	}
}

func TestLoad_KindMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.yaml.gz")
	tree, _ := Build(generateBinary(100, 16, 1), testOptions(2, 2))
	if err := tree.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other := New[float64](distance.L2{})
	if err := other.Load(path); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Expected ErrKindMismatch, got %v", err)
	}
	if other.Built() {
		t.Error("Failed load should leave the tree empty")
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		doc  treeDoc
	}{
		{"no nodes", treeDoc{Kind: "real", Branching: 2, Depth: 1, Dim: 1}},
		{"child out of range", treeDoc{Kind: "real", Branching: 2, Depth: 1, Dim: 1, Words: 2, Nodes: []nodeDoc{
			{Word: -1, Children: []int{1, 5}, Centers: [][]float64{{0}, {1}}},
			{Word: 0},
		}}},
		{"center length", treeDoc{Kind: "real", Branching: 2, Depth: 1, Dim: 2, Words: 2, Nodes: []nodeDoc{
			{Word: -1, Children: []int{1, 2}, Centers: [][]float64{{0, 0}, {1}}},
			{Word: 0},
			{Word: 1},
		}}},
		{"word order", treeDoc{Kind: "real", Branching: 2, Depth: 1, Dim: 1, Words: 2, Nodes: []nodeDoc{
			{Word: -1, Children: []int{1, 2}, Centers: [][]float64{{0}, {1}}},
			{Word: 1},
			{Word: 0},
		}}},
		{"binary value", treeDoc{Kind: "binary", Branching: 2, Depth: 1, Dim: 1, Words: 2, Nodes: []nodeDoc{
			{Word: -1, Children: []int{1, 2}, Centers: [][]float64{{0}, {300}}},
			{Word: 0},
			{Word: 1},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml.gz")
			if err := yamlgz.WriteFile(path, &tt.doc); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			if _, err := Load(path); !errors.Is(err, ErrMalformedTree) {
				t.Errorf("Expected ErrMalformedTree, got %v", err)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml.gz")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
