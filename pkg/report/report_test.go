package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseList(t *testing.T) {
	input := "db/a.yaml.gz\n\n  db/b.yaml.gz  \n"
	files, err := ParseList(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	if files[0] != "db/a.yaml.gz" || files[1] != "db/b.yaml.gz" {
		t.Errorf("Expected trimmed names, got %v", files)
	}
}

func TestParseGroundTruth(t *testing.T) {
	input := "db/a.yaml.gz 0\ndb/b.yaml.gz 3\n"
	entries, err := ParseGroundTruth(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseGroundTruth failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].File != "db/b.yaml.gz" || entries[1].Landmark != 3 {
		t.Errorf("Expected db/b.yaml.gz 3, got %+v", entries[1])
	}
}

func TestParseGroundTruth_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing landmark", "db/a.yaml.gz\n"},
		{"extra field", "db/a.yaml.gz 1 2\n"},
		{"non integer", "db/a.yaml.gz one\n"},
		{"negative landmark", "db/a.yaml.gz -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGroundTruth(strings.NewReader(tt.input))
			if !errors.Is(err, ErrMalformedLine) {
				t.Errorf("Expected ErrMalformedLine, got %v", err)
			}
		})
	}
}

func TestReadList_ChecksFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.yaml.gz")
	bad := filepath.Join(dir, "a.txt")
	for _, p := range []string{good, bad} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
	}

	list := filepath.Join(dir, "list.txt")
	os.WriteFile(list, []byte(good+"\n"), 0644)
	files, err := ReadList(list)
	if err != nil {
		t.Fatalf("ReadList failed: %v", err)
	}
	if len(files) != 1 || files[0] != good {
		t.Errorf("Expected [%s], got %v", good, files)
	}

	os.WriteFile(list, []byte(bad+"\n"), 0644)
	if _, err := ReadList(list); err == nil {
		t.Error("Expected error for wrong extension")
	}

	os.WriteFile(list, []byte(filepath.Join(dir, "missing.yaml.gz")+"\n"), 0644)
	if _, err := ReadList(list); err == nil {
		t.Error("Expected error for missing file")
	}

	gt := filepath.Join(dir, "gt.txt")
	os.WriteFile(gt, []byte(good+" 2\n"), 0644)
	entries, err := ReadGroundTruth(gt)
	if err != nil {
		t.Fatalf("ReadGroundTruth failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Landmark != 2 {
		t.Errorf("Expected one entry with landmark 2, got %+v", entries)
	}
}

func TestRankedName(t *testing.T) {
	tests := map[string]string{
		"db/img_001.yaml.gz": "img_001",
		"img_002.xml.gz":     "img_002",
		"/abs/path/x.png":    "x.png",
	}
	for in, want := range tests {
		if got := RankedName(in); got != want {
			t.Errorf("RankedName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestWriteRankedList(t *testing.T) {
	dir := t.TempDir()
	path := RankedListPath(dir, 3)
	if filepath.Base(path) != "query_3_ranked.txt" {
		t.Errorf("Expected query_3_ranked.txt, got %s", filepath.Base(path))
	}

	ranked := []Candidate{{File: "db/b.yaml.gz", Distance: 0.1}, {File: "db/a.yaml.gz", Distance: 0.4}}
	if err := WriteRankedList(path, ranked); err != nil {
		t.Fatalf("WriteRankedList failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read ranked list: %v", err)
	}
	if string(data) != "b\na\n" {
		t.Errorf("Expected \"b\\na\\n\", got %q", string(data))
	}
}

func TestWriteCandidatesAndMatch(t *testing.T) {
	var buf bytes.Buffer
	ranked := []Candidate{{File: "db/b.yaml.gz"}, {File: "db/a.yaml.gz"}}

	if err := WriteCandidates(&buf, "q/0.yaml.gz", ranked); err != nil {
		t.Fatalf("WriteCandidates failed: %v", err)
	}
	if buf.String() != "q/0.yaml.gz db/b.yaml.gz db/a.yaml.gz\n" {
		t.Errorf("Unexpected candidates line %q", buf.String())
	}

	buf.Reset()
	if err := WriteMatch(&buf, 4, -1, 0); err != nil {
		t.Fatalf("WriteMatch failed: %v", err)
	}
	if buf.String() != "4 -1 0\n" {
		t.Errorf("Expected \"4 -1 0\\n\", got %q", buf.String())
	}
}

func TestHTMLWriter(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHTMLWriter(&buf, 2)
	if err != nil {
		t.Fatalf("NewHTMLWriter failed: %v", err)
	}

	ranked := []Candidate{
		{File: "db/<a>.yaml.gz", Distance: 0.5},
		{File: "db/b.yaml.gz", Distance: 1},
		{File: "db/c.yaml.gz", Distance: 2},
	}
	if err := h.WriteRow("q.yaml.gz", ranked); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Error("Expected page header")
	}
	if !strings.Contains(out, "<th>#2</th>") || strings.Contains(out, "<th>#3</th>") {
		t.Error("Expected exactly 2 candidate columns")
	}
	if !strings.Contains(out, "db/&lt;a&gt;.yaml.gz") {
		t.Error("Expected escaped file name")
	}
	if !strings.Contains(out, "0.500000") {
		t.Error("Expected formatted distance")
	}
	if strings.Contains(out, "db/c.yaml.gz") {
		t.Error("Expected row truncated to top candidates")
	}
	if !strings.HasSuffix(out, "</html>\n") {
		t.Error("Expected page footer")
	}

	if err := h.WriteRow("late", nil); err == nil {
		t.Error("Expected error writing after Close")
	}
	if err := h.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}
