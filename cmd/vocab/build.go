package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/report"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

func handleBuildTree(args []string) error {
	fs := flag.NewFlagSet("build-tree", flag.ExitOnError)
	var (
		list       = fs.String("list", "", "file listing training descriptor files (required)")
		out        = fs.String("out", "", "output tree file, .yaml.gz (required)")
		k          = fs.Int("k", 10, "branching factor")
		depth      = fs.Int("depth", 6, "maximum tree depth")
		chooser    = fs.String("chooser", "kmeanspp", "center chooser (random, gonzalez, kmeanspp)")
		iterations = fs.Int("iterations", clustering.DefaultMaxIterations, "maximum Lloyd iterations per node")
		binary     = fs.Bool("binary", true, "descriptors are binary")
		seed       = fs.Int64("seed", 42, "random seed")
	)
	commonFlags(fs)
	fs.Parse(args)

	if *list == "" || *out == "" {
		return fmt.Errorf("-list and -out are required")
	}
	if err := yamlgz.CheckName("tree", *out); err != nil {
		return err
	}
	chooserType, err := clustering.ParseChooserType(*chooser)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	opts := vocab.Options{
		Branching:     *k,
		Depth:         *depth,
		Chooser:       chooserType,
		MaxIterations: *iterations,
		Seed:          *seed,
		Logger:        logger,
	}
	tree, err := buildTree(*list, descriptor.KindFromBinaryFlag(*binary), opts, logger)
	if err != nil {
		return err
	}

	if err := tree.Save(*out); err != nil {
		return err
	}
	fmt.Printf("✓ Tree saved to %s: %d words, %d nodes\n", *out, tree.Size(), tree.Nodes())
	return nil
}

// buildTree stacks the descriptors of every listed file and builds a tree
// over them
func buildTree(listPath string, kind descriptor.Kind, opts vocab.Options, logger *observability.Logger) (vocab.Vocabulary, error) {
	files, err := report.ReadList(listPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Loading training descriptors", map[string]interface{}{"files": len(files)})

	matrices := make([]descriptor.Matrix, 0, len(files))
	for _, file := range files {
		m, err := descriptor.LoadDescriptors(file)
		if err != nil {
			return nil, err
		}
		if err := descriptor.Check(m, kind, 0); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		matrices = append(matrices, m)
	}

	samples, err := stack(kind, matrices)
	if err != nil {
		return nil, err
	}

	var tree vocab.Vocabulary
	err = logger.LogOperationWithFields("build tree", map[string]interface{}{
		"descriptors": samples.Rows(),
		"branching":   opts.Branching,
		"depth":       opts.Depth,
		"chooser":     opts.Chooser.String(),
	}, func() error {
		tree, err = vocab.Build(samples, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// stack concatenates the rows of matrices of the given kind
func stack(kind descriptor.Kind, matrices []descriptor.Matrix) (descriptor.Matrix, error) {
	if kind == descriptor.BinaryKind {
		var rows [][]byte
		for _, m := range matrices {
			data := m.(descriptor.Dataset[byte])
			for i := 0; i < m.Rows(); i++ {
				rows = append(rows, data.Row(i))
			}
		}
		if len(rows) == 0 {
			return nil, vocab.ErrEmptySample
		}
		return descriptor.BinaryFromRows(rows)
	}

	var rows [][]float64
	for _, m := range matrices {
		data := m.(descriptor.Dataset[float64])
		for i := 0; i < m.Rows(); i++ {
			rows = append(rows, data.Row(i))
		}
	}
	if len(rows) == 0 {
		return nil, vocab.ErrEmptySample
	}
	return descriptor.RealFromRows(rows)
}

func handleBuildDB(args []string) error {
	fs := flag.NewFlagSet("build-db", flag.ExitOnError)
	var (
		list      = fs.String("list", "", "file listing database descriptor files (required)")
		treePath  = fs.String("tree", "", "vocabulary tree file (required)")
		inv       = fs.String("inv", "", "output inverted index file (required)")
		dir       = fs.String("dir", "", "output direct index file (required)")
		binary    = fs.Bool("binary", true, "descriptors are binary")
		tfidf     = fs.Bool("tfidf", true, "use TF-IDF weighting instead of binary weights")
		normalize = fs.Bool("normalize", true, "L1 normalize the database BoW vectors")
		workers   = fs.Int("workers", 4, "parallel quantization workers")
	)
	commonFlags(fs)
	fs.Parse(args)

	if *list == "" || *treePath == "" || *inv == "" || *dir == "" {
		return fmt.Errorf("-list, -tree, -inv and -dir are required")
	}
	for what, path := range map[string]string{"inverted index": *inv, "direct index": *dir} {
		if err := yamlgz.CheckName(what, path); err != nil {
			return err
		}
	}

	logger := newLogger()
	defer logger.Sync()

	scheme := bow.BinaryWeighting
	if *tfidf {
		scheme = bow.TFIDFWeighting
	}
	db, err := buildDatabase(context.Background(), buildDBOptions{
		List:      *list,
		Tree:      *treePath,
		Kind:      descriptor.KindFromBinaryFlag(*binary),
		Scheme:    scheme,
		Normalize: *normalize,
		Workers:   *workers,
	}, logger)
	if err != nil {
		return err
	}

	if err := logger.LogOperationWithFields("save inverted index", map[string]interface{}{"path": *inv}, func() error {
		return db.SaveInvertedIndex(*inv)
	}); err != nil {
		return err
	}
	if err := logger.LogOperationWithFields("save direct index", map[string]interface{}{"path": *dir}, func() error {
		return db.SaveDirectIndex(*dir)
	}); err != nil {
		return err
	}

	fmt.Printf("✓ Database built with %d images (%s)\n", db.Len(), db.Phase())
	return nil
}

type buildDBOptions struct {
	List      string
	Tree      string
	Kind      descriptor.Kind
	Scheme    bow.WeightingScheme
	Normalize bool
	Workers   int
}

// buildDatabase loads the tree, inserts every listed image with its line
// index as id, then weights and optionally normalizes the database
func buildDatabase(ctx context.Context, opts buildDBOptions, logger *observability.Logger) (*bow.Database, error) {
	files, err := report.ReadList(opts.List)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tree, err := vocab.Load(opts.Tree)
	if err != nil {
		return nil, err
	}
	if tree.Kind() != opts.Kind {
		return nil, fmt.Errorf("%w: tree holds %s descriptors", vocab.ErrKindMismatch, tree.Kind())
	}
	logger.Info("Tree loaded", map[string]interface{}{
		"path":     opts.Tree,
		"words":    tree.Size(),
		"duration": time.Since(start),
	})

	db := bow.New(tree, bow.WithLogger(logger), bow.WithWorkers(opts.Workers))

	batch := make([]bow.Image, 0, len(files))
	for id, file := range files {
		m, err := descriptor.LoadDescriptors(file)
		if err != nil {
			return nil, err
		}
		if err := descriptor.Check(m, opts.Kind, 0); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if m.Rows() == 0 {
			logger.Warn("Image has no descriptors, skipping", map[string]interface{}{"file": file})
			continue
		}
		batch = append(batch, bow.Image{ID: id, Descriptors: m})
	}

	err = logger.LogOperationWithFields("add images", map[string]interface{}{"images": len(batch)}, func() error {
		return db.AddImagesToDatabase(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Computing words weights", map[string]interface{}{"scheme": opts.Scheme.String()})
	if err := db.ComputeWordsWeights(opts.Scheme); err != nil {
		return nil, err
	}
	if err := db.CreateDatabase(); err != nil {
		return nil, err
	}
	if opts.Normalize {
		logger.Info("Normalizing database", map[string]interface{}{"norm": bow.L1Norm.String()})
		if err := db.NormalizeDatabase(bow.L1Norm); err != nil {
			return nil, err
		}
	}
	return db, nil
}
