// Package bow implements the bag-of-words image database built on a
// vocabulary tree: an inverted index (word -> postings), a direct index
// (image -> per-descriptor words), word weighting, per-image normalization
// and sparse query scoring.
//
// A database moves through the phases Empty, Populated, Weighted and
// Normalized. Weighting and normalization are whole-database passes; calling
// them out of order returns ErrInvalidPhase. Starting over requires
// ClearDatabase followed by re-insertion.
//
// All methods are safe for concurrent use. Mutations take the write lock,
// scoring takes the read lock.
package bow

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

// Option configures a Database
type Option func(*Database)

// WithLogger sets the logger used for phase transitions
func WithLogger(logger *observability.Logger) Option {
	return func(d *Database) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics updated by insertions, passes and queries
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Database) {
		d.metrics = metrics
	}
}

// WithWorkers bounds the goroutines used by AddImagesToDatabase
func WithWorkers(n int) Option {
	return func(d *Database) {
		if n > 0 {
			d.workers = n
		}
	}
}

// imageNorms caches the norms of an image's stored vector
type imageNorms struct {
	l1   float64
	l2sq float64
}

func (n imageNorms) get(norm NormType) float64 {
	if norm == L1Norm {
		return n.l1
	}
	return math.Sqrt(n.l2sq)
}

// Database is a bag-of-words index over a vocabulary tree
type Database struct {
	mu sync.RWMutex

	tree    vocab.Vocabulary
	logger  *observability.Logger
	metrics *observability.Metrics
	workers int

	phase           Phase
	scheme          WeightingScheme
	weightsComputed bool
	norm            NormType

	weights  []float64
	inverted [][]Posting
	direct   map[int][]DirectEntry
	images   []int // insertion order
	position map[int]int
	norms    []imageNorms // by position

	descriptors int
	version     uint64
}

// New creates an empty database over tree. The tree may be built or loaded
// later; insertion and scoring check it.
func New(tree vocab.Vocabulary, opts ...Option) *Database {
	d := &Database{
		tree:    tree,
		logger:  observability.NewNopLogger(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

// reset empties both indices and sizes the word tables to the tree
func (d *Database) reset() {
	words := 0
	if d.tree != nil && d.tree.Built() {
		words = d.tree.Size()
	}

	d.phase = Empty
	d.scheme = BinaryWeighting
	d.weightsComputed = false
	d.norm = L1Norm
	d.weights = make([]float64, words)
	for i := range d.weights {
		d.weights[i] = 1
	}
	d.inverted = make([][]Posting, words)
	d.direct = make(map[int][]DirectEntry)
	d.images = nil
	d.position = make(map[int]int)
	d.norms = nil
	d.descriptors = 0
	d.version++
}

// Tree returns the vocabulary the database quantizes with
func (d *Database) Tree() vocab.Vocabulary {
	return d.tree
}

// ClearDatabase removes every image and returns the database to Empty.
// Word weights are reset to 1.
func (d *Database) ClearDatabase() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
	d.updateSizeMetric()
	d.logger.Debug("Database cleared")
}

// AddImageToDatabase quantizes descriptors and records them under imageID.
// An empty descriptor set is a no-op and does not register the image.
func (d *Database) AddImageToDatabase(imageID int, descriptors descriptor.Matrix) error {
	if err := d.checkTree(); err != nil {
		return err
	}

	// Quantization only reads the tree, so it runs outside the lock
	words, err := d.tree.QuantizeAll(descriptors)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkInsertable(imageID); err != nil {
		return err
	}
	d.addWords(imageID, words)
	d.updateSizeMetric()
	return nil
}

// checkTree fails when the tree cannot quantize
func (d *Database) checkTree() error {
	if d.tree == nil || !d.tree.Built() {
		return ErrTreeNotBuilt
	}
	return nil
}

// checkInsertable validates phase and id. Caller holds the write lock.
func (d *Database) checkInsertable(imageID int) error {
	if d.phase != Empty && d.phase != Populated {
		return fmt.Errorf("%w: cannot add images to a %s database", ErrInvalidPhase, d.phase)
	}
	if _, ok := d.position[imageID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateImage, imageID)
	}
	return nil
}

// addWords appends the postings and direct entries of one image. Caller
// holds the write lock.
func (d *Database) addWords(imageID int, words []int) {
	if len(words) == 0 {
		return
	}
	d.ensureWordTables()

	entries := make([]DirectEntry, len(words))
	slot := make(map[int]int, len(words)) // word -> posting index for this image
	norms := imageNorms{}

	for i, w := range words {
		entries[i] = DirectEntry{Word: w, Descriptor: i}

		if p, ok := slot[w]; ok {
			d.inverted[w][p].Value++
			continue
		}
		slot[w] = len(d.inverted[w])
		d.inverted[w] = append(d.inverted[w], Posting{ImageID: imageID, Value: 1})
	}

	for w := range slot {
		v := d.inverted[w][slot[w]].Value
		norms.l1 += v
		norms.l2sq += v * v
	}

	d.position[imageID] = len(d.images)
	d.images = append(d.images, imageID)
	d.norms = append(d.norms, norms)
	d.direct[imageID] = entries
	d.descriptors += len(words)
	d.phase = Populated
	d.version++

	if d.metrics != nil {
		d.metrics.RecordImageAdded(len(words))
	}
}

// ensureWordTables sizes the per-word tables after the tree was built or
// loaded behind the database's back
func (d *Database) ensureWordTables() {
	words := d.tree.Size()
	if len(d.inverted) == words {
		return
	}
	for len(d.inverted) < words {
		d.inverted = append(d.inverted, nil)
		d.weights = append(d.weights, 1)
	}
}

// refreshNorms recomputes every image's cached norms. Caller holds the
// write lock.
func (d *Database) refreshNorms() {
	norms := make([]imageNorms, len(d.images))
	for _, postings := range d.inverted {
		for _, p := range postings {
			n := &norms[d.position[p.ImageID]]
			n.l1 += math.Abs(p.Value)
			n.l2sq += p.Value * p.Value
		}
	}
	d.norms = norms
}

func (d *Database) updateSizeMetric() {
	if d.metrics != nil {
		d.metrics.UpdateDatabaseSize(len(d.images))
	}
}

// Phase returns the current phase
func (d *Database) Phase() Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.phase
}

// Version changes on every mutation. Result caches key on it.
func (d *Database) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Len returns the number of images
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.images)
}

// Images returns the image ids in insertion order
func (d *Database) Images() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]int(nil), d.images...)
}

// Weights returns a copy of the word weights
func (d *Database) Weights() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]float64(nil), d.weights...)
}

// Postings returns a copy of the inverted index entry of word
func (d *Database) Postings(word int) []Posting {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if word < 0 || word >= len(d.inverted) {
		return nil
	}
	return append([]Posting(nil), d.inverted[word]...)
}

// DirectEntries returns a copy of the direct index entry of imageID
func (d *Database) DirectEntries(imageID int) []DirectEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DirectEntry(nil), d.direct[imageID]...)
}

// Stats summarizes a database
type Stats struct {
	Images      int    `json:"images"`
	Words       int    `json:"words"`
	UsedWords   int    `json:"used_words"`
	Postings    int    `json:"postings"`
	Descriptors int    `json:"descriptors"`
	Phase       string `json:"phase"`
	Scheme      string `json:"scheme"`
	Norm        string `json:"norm,omitempty"`
	Kind        string `json:"kind"`
}

// Stats returns counts describing the database
func (d *Database) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Stats{
		Images:      len(d.images),
		Words:       len(d.inverted),
		Descriptors: d.descriptors,
		Phase:       d.phase.String(),
		Scheme:      d.scheme.String(),
	}
	if d.tree != nil {
		s.Kind = d.tree.Kind().String()
	}
	if d.phase == Normalized {
		s.Norm = d.norm.String()
	}
	for _, postings := range d.inverted {
		if len(postings) > 0 {
			s.UsedWords++
			s.Postings += len(postings)
		}
	}
	return s
}

// sortedImages returns image ids ascending. Caller holds a lock.
func (d *Database) sortedImages() []int {
	ids := append([]int(nil), d.images...)
	sort.Ints(ids)
	return ids
}
