package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Candidate is one ranked database image
type Candidate struct {
	File     string
	Distance float64
}

// RankedName strips the directory and the .yaml.gz or .xml.gz suffix from a
// database file name
func RankedName(file string) string {
	base := filepath.Base(file)
	for _, ext := range []string{".yaml.gz", ".xml.gz"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// RankedListPath returns the ranked list file of the query-th query in dir
func RankedListPath(dir string, query int) string {
	return filepath.Join(dir, fmt.Sprintf("query_%d_ranked.txt", query))
}

// WriteRankedList writes one ranked image name per line to path
func WriteRankedList(path string, ranked []Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ranked list %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, c := range ranked {
		fmt.Fprintln(w, RankedName(c.File))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write ranked list %s: %w", path, err)
	}
	return f.Close()
}

// WriteCandidates writes "<query> <db1> <db2> ..." as one line
func WriteCandidates(w io.Writer, query string, ranked []Candidate) error {
	var b strings.Builder
	b.WriteString(query)
	for _, c := range ranked {
		b.WriteByte(' ')
		b.WriteString(c.File)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMatch writes "<query index> <landmark> <votes>" as one line
func WriteMatch(w io.Writer, query, landmark, votes int) error {
	_, err := fmt.Fprintf(w, "%d %d %d\n", query, landmark, votes)
	return err
}
