package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/report"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/search"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

type matchOptions struct {
	Tree       string
	Inverted   string
	GroundPath string
	Queries    string
	RankedDir  string
	Top        int
	Kind       descriptor.Kind
	Matches    string
	HTML       string
	Candidates string
}

func handleMatch(args []string) error {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	var (
		treePath   = fs.String("tree", "", "vocabulary tree file (required)")
		inv        = fs.String("inv", "", "inverted index file (required)")
		gt         = fs.String("db-gt", "", "database ground truth list, <key.file> <landmark.id> per line (required)")
		queries    = fs.String("queries", "", "file listing query descriptor files (required)")
		rankedDir  = fs.String("ranked-dir", "", "folder receiving query_<i>_ranked.txt files (required)")
		top        = fs.Int("top", 10, "number of ranked candidates kept per query")
		binary     = fs.Bool("binary", true, "descriptors are binary")
		matches    = fs.String("matches", "matches.txt", "output matches file")
		html       = fs.String("html", "results.html", "output HTML report")
		candidates = fs.String("candidates", "candidates.txt", "output candidates file")
	)
	commonFlags(fs)
	fs.Parse(args)

	if *treePath == "" || *inv == "" || *gt == "" || *queries == "" || *rankedDir == "" {
		return fmt.Errorf("-tree, -inv, -db-gt, -queries and -ranked-dir are required")
	}
	if *top <= 0 {
		return fmt.Errorf("-top must be positive, got %d", *top)
	}

	logger := newLogger()
	defer logger.Sync()

	matched, err := runMatch(matchOptions{
		Tree:       *treePath,
		Inverted:   *inv,
		GroundPath: *gt,
		Queries:    *queries,
		RankedDir:  *rankedDir,
		Top:        *top,
		Kind:       descriptor.KindFromBinaryFlag(*binary),
		Matches:    *matches,
		HTML:       *html,
		Candidates: *candidates,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Matched %d queries, results in %s\n", matched, *matches)
	return nil
}

// runMatch scores every query against the database, writes its ranked list
// and report lines and returns the number of queries processed. Database
// image ids are the line indices of the ground truth list.
func runMatch(opts matchOptions, logger *observability.Logger) (int, error) {
	if err := yamlgz.CheckName("tree", opts.Tree); err != nil {
		return 0, err
	}

	start := time.Now()
	tree, err := vocab.Load(opts.Tree)
	if err != nil {
		return 0, err
	}
	if tree.Kind() != opts.Kind {
		return 0, fmt.Errorf("%w: tree holds %s descriptors", vocab.ErrKindMismatch, tree.Kind())
	}
	logger.Info("Tree loaded", map[string]interface{}{
		"path":     opts.Tree,
		"words":    tree.Size(),
		"duration": time.Since(start),
	})

	db := bow.New(tree, bow.WithLogger(logger))
	if err := db.LoadInvertedIndex(opts.Inverted); err != nil {
		return 0, err
	}

	logger.Info("Loading database ground truth", map[string]interface{}{"path": opts.GroundPath})
	truth, err := report.ReadGroundTruth(opts.GroundPath)
	if err != nil {
		return 0, err
	}
	landmarks := make(map[int]int, len(truth))
	for id, entry := range truth {
		landmarks[id] = entry.Landmark
	}

	logger.Info("Loading query file names", map[string]interface{}{"path": opts.Queries})
	queries, err := report.ReadList(opts.Queries)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(opts.RankedDir, 0755); err != nil {
		return 0, fmt.Errorf("create ranked folder: %w", err)
	}

	top := opts.Top
	if len(truth) < top {
		top = len(truth)
	}

	matchFile, err := os.Create(opts.Matches)
	if err != nil {
		return 0, fmt.Errorf("open matches file: %w", err)
	}
	defer matchFile.Close()
	candidateFile, err := os.Create(opts.Candidates)
	if err != nil {
		return 0, fmt.Errorf("open candidates file: %w", err)
	}
	defer candidateFile.Close()
	htmlFile, err := os.Create(opts.HTML)
	if err != nil {
		return 0, fmt.Errorf("open html file: %w", err)
	}
	defer htmlFile.Close()

	matchOut := bufio.NewWriter(matchFile)
	candidateOut := bufio.NewWriter(candidateFile)
	htmlOut := bufio.NewWriter(htmlFile)
	html, err := report.NewHTMLWriter(htmlOut, top)
	if err != nil {
		return 0, err
	}

	scorer := search.NewScorer(db, search.ScorerConfig{Norm: bow.L1Norm})
	logger.Info("Scoring queries", map[string]interface{}{
		"queries": len(queries),
		"images":  len(truth),
		"norm":    bow.L1Norm.String(),
	})

	for i, query := range queries {
		m, err := descriptor.LoadDescriptors(query)
		if err != nil {
			return i, err
		}
		if err := descriptor.Check(m, opts.Kind, 0); err != nil {
			return i, fmt.Errorf("%s: %w", query, err)
		}

		queryStart := time.Now()
		match, err := scorer.Match(m, top, landmarks)
		if err != nil {
			return i, fmt.Errorf("%s: %w", query, err)
		}

		ranked := make([]report.Candidate, 0, len(match.Ranked))
		for _, s := range match.Ranked {
			if s.ImageID < 0 || s.ImageID >= len(truth) {
				return i, fmt.Errorf("image %d scored for %s is not in the ground truth list", s.ImageID, query)
			}
			ranked = append(ranked, report.Candidate{File: truth[s.ImageID].File, Distance: s.Distance})
		}

		if err := report.WriteRankedList(report.RankedListPath(opts.RankedDir, i), ranked); err != nil {
			return i, err
		}
		if err := report.WriteCandidates(candidateOut, query, ranked); err != nil {
			return i, err
		}
		if err := report.WriteMatch(matchOut, i, match.Landmark, match.Votes); err != nil {
			return i, err
		}
		if err := html.WriteRow(query, ranked); err != nil {
			return i, err
		}

		logger.Debug("Query matched", map[string]interface{}{
			"query":    query,
			"landmark": match.Landmark,
			"votes":    match.Votes,
			"duration": time.Since(queryStart),
		})
	}

	if err := html.Close(); err != nil {
		return len(queries), err
	}
	for _, w := range []*bufio.Writer{matchOut, candidateOut, htmlOut} {
		if err := w.Flush(); err != nil {
			return len(queries), err
		}
	}
	return len(queries), nil
}
