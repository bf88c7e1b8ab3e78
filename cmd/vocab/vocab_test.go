package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/testutil"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

// writeImages saves four clustered images and returns their paths
func writeImages(t *testing.T, dir string) []string {
	t.Helper()

	var paths []string
	for i, offset := range []float64{0, 100, 200, 300} {
		path := filepath.Join(dir, "img_"+string(rune('a'+i))+".yaml.gz")
		if err := descriptor.SaveDescriptors(path, testutil.ClusteredImage(int64(i+1), 10, offset)); err != nil {
			t.Fatalf("SaveDescriptors failed: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	logger := observability.NewNopLogger()
	images := writeImages(t, dir)

	list := filepath.Join(dir, "list.txt")
	writeFile(t, list, strings.Join(images, "\n")+"\n")

	opts := vocab.DefaultOptions()
	opts.Branching = 4
	opts.Depth = 2
	tree, err := buildTree(list, descriptor.RealKind, opts, logger)
	if err != nil {
		t.Fatalf("buildTree failed: %v", err)
	}
	treePath := filepath.Join(dir, "tree.yaml.gz")
	if err := tree.Save(treePath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	db, err := buildDatabase(context.Background(), buildDBOptions{
		List:      list,
		Tree:      treePath,
		Kind:      descriptor.RealKind,
		Scheme:    bow.TFIDFWeighting,
		Normalize: true,
		Workers:   2,
	}, logger)
	if err != nil {
		t.Fatalf("buildDatabase failed: %v", err)
	}
	if db.Len() != 4 {
		t.Errorf("Expected 4 images, got %d", db.Len())
	}
	if db.Phase() != bow.Normalized {
		t.Errorf("Expected normalized database, got %s", db.Phase())
	}

	inv := filepath.Join(dir, "inv.yaml.gz")
	if err := db.SaveInvertedIndex(inv); err != nil {
		t.Fatalf("SaveInvertedIndex failed: %v", err)
	}

	gt := filepath.Join(dir, "gt.txt")
	writeFile(t, gt, images[0]+" 0\n"+images[1]+" 0\n"+images[2]+" 1\n"+images[3]+" 1\n")

	mopts := matchOptions{
		Tree:       treePath,
		Inverted:   inv,
		GroundPath: gt,
		Queries:    list,
		RankedDir:  filepath.Join(dir, "ranked"),
		Top:        1,
		Kind:       descriptor.RealKind,
		Matches:    filepath.Join(dir, "matches.txt"),
		HTML:       filepath.Join(dir, "results.html"),
		Candidates: filepath.Join(dir, "candidates.txt"),
	}
	n, err := runMatch(mopts, logger)
	if err != nil {
		t.Fatalf("runMatch failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 matched queries, got %d", n)
	}

	matches, _ := os.ReadFile(mopts.Matches)
	if string(matches) != "0 0 1\n1 0 1\n2 1 1\n3 1 1\n" {
		t.Errorf("Unexpected matches file %q", string(matches))
	}

	ranked, err := os.ReadFile(filepath.Join(mopts.RankedDir, "query_2_ranked.txt"))
	if err != nil {
		t.Fatalf("Expected ranked list for query 2: %v", err)
	}
	if string(ranked) != "img_c\n" {
		t.Errorf("Expected img_c ranked first for query 2, got %q", string(ranked))
	}

	candidates, _ := os.ReadFile(mopts.Candidates)
	lines := strings.Split(strings.TrimSpace(string(candidates)), "\n")
	if len(lines) != 4 || lines[3] != images[3]+" "+images[3] {
		t.Errorf("Unexpected candidates file %q", string(candidates))
	}

	html, _ := os.ReadFile(mopts.HTML)
	if !strings.Contains(string(html), "</html>") {
		t.Error("Expected complete HTML report")
	}
}

func TestBuildTree_KindMismatch(t *testing.T) {
	dir := t.TempDir()
	images := writeImages(t, dir)
	list := filepath.Join(dir, "list.txt")
	writeFile(t, list, images[0]+"\n")

	_, err := buildTree(list, descriptor.BinaryKind, vocab.DefaultOptions(), observability.NewNopLogger())
	if err == nil {
		t.Error("Expected error building a binary tree from real descriptors")
	}
}

func TestStack(t *testing.T) {
	a, _ := descriptor.BinaryFromRows([][]byte{{1, 2}, {3, 4}})
	b, _ := descriptor.BinaryFromRows([][]byte{{5, 6}})

	m, err := stack(descriptor.BinaryKind, []descriptor.Matrix{a, b})
	if err != nil {
		t.Fatalf("stack failed: %v", err)
	}
	if m.Rows() != 3 || m.Cols() != 2 {
		t.Fatalf("Expected 3x2 matrix, got %dx%d", m.Rows(), m.Cols())
	}
	if row := m.(*descriptor.Binary).Row(2); row[0] != 5 || row[1] != 6 {
		t.Errorf("Expected last row [5 6], got %v", row)
	}

	if _, err := stack(descriptor.RealKind, nil); err != vocab.ErrEmptySample {
		t.Errorf("Expected ErrEmptySample, got %v", err)
	}
}
