package bow

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/yamlgz"
)

// invertedDoc is the persisted inverted index. Postings are [image, value]
// pairs in insertion order.
type invertedDoc struct {
	Kind    string      `yaml:"kind"`
	Words   int         `yaml:"words"`
	Phase   string      `yaml:"phase"`
	Scheme  string      `yaml:"scheme"`
	Norm    string      `yaml:"norm,omitempty"`
	Images  []int       `yaml:"images,flow"`
	Entries []wordEntry `yaml:"entries"`

	// WeightsComputed is set once weights exist, including a Populated
	// database whose weights were computed but not yet applied
	WeightsComputed bool `yaml:"weights_computed,omitempty"`
}

type wordEntry struct {
	Word     int          `yaml:"word"`
	Weight   float64      `yaml:"weight"`
	Postings [][2]float64 `yaml:"postings,flow,omitempty"`
}

// directDoc is the persisted direct index. Entries are [word, descriptor]
// pairs in descriptor order.
type directDoc struct {
	Images []imageEntry `yaml:"images"`
}

type imageEntry struct {
	Image   int      `yaml:"image"`
	Entries [][2]int `yaml:"entries,flow"`
}

// SaveInvertedIndex writes the word weights and postings to path
func (d *Database) SaveInvertedIndex(path string) error {
	if err := d.checkTree(); err != nil {
		return err
	}

	d.mu.RLock()
	doc := &invertedDoc{
		Kind:    d.tree.Kind().String(),
		Words:   len(d.inverted),
		Phase:   d.phase.String(),
		Scheme:  d.scheme.String(),
		Images:  append([]int(nil), d.images...),
		Entries: make([]wordEntry, len(d.inverted)),

		WeightsComputed: d.weightsComputed,
	}
	if d.phase == Normalized {
		doc.Norm = d.norm.String()
	}
	for w, postings := range d.inverted {
		entry := wordEntry{Word: w, Weight: d.weights[w]}
		for _, p := range postings {
			entry.Postings = append(entry.Postings, [2]float64{float64(p.ImageID), p.Value})
		}
		doc.Entries[w] = entry
	}
	d.mu.RUnlock()

	return yamlgz.WriteFile(path, doc)
}

// SaveDirectIndex writes every image's descriptor-to-word assignment to path
func (d *Database) SaveDirectIndex(path string) error {
	d.mu.RLock()
	doc := &directDoc{Images: make([]imageEntry, 0, len(d.images))}
	for _, id := range d.images {
		entries := d.direct[id]
		pairs := make([][2]int, len(entries))
		for i, e := range entries {
			pairs[i] = [2]int{e.Word, e.Descriptor}
		}
		doc.Images = append(doc.Images, imageEntry{Image: id, Entries: pairs})
	}
	d.mu.RUnlock()

	return yamlgz.WriteFile(path, doc)
}

// LoadInvertedIndex replaces the database content with the index stored at
// path. The direct index is cleared; load it afterwards with LoadDirectIndex.
func (d *Database) LoadInvertedIndex(path string) error {
	if err := d.checkTree(); err != nil {
		return err
	}

	var doc invertedDoc
	if err := yamlgz.ReadFile(path, &doc); err != nil {
		return err
	}

	state, err := d.fromInvertedDoc(&doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.phase = state.phase
	d.scheme = state.scheme
	d.weightsComputed = state.phase >= Weighted || doc.WeightsComputed
	d.norm = state.norm
	d.weights = state.weights
	d.inverted = state.inverted
	d.images = state.images
	d.position = state.position
	d.direct = make(map[int][]DirectEntry)
	d.descriptors = 0
	d.refreshNorms()
	d.version++
	d.updateSizeMetric()

	d.logger.Info("Inverted index loaded", map[string]interface{}{
		"path":   path,
		"images": len(d.images),
		"words":  len(d.inverted),
		"phase":  d.phase.String(),
	})
	return nil
}

type invertedState struct {
	phase    Phase
	scheme   WeightingScheme
	norm     NormType
	weights  []float64
	inverted [][]Posting
	images   []int
	position map[int]int
}

func (d *Database) fromInvertedDoc(doc *invertedDoc) (*invertedState, error) {
	if doc.Kind != d.tree.Kind().String() {
		return nil, fmt.Errorf("%w: index built for %s descriptors, tree is %s", ErrKindMismatch, doc.Kind, d.tree.Kind())
	}
	if doc.Words != d.tree.Size() {
		return nil, fmt.Errorf("%w: index has %d words, tree has %d", ErrMalformedIndex, doc.Words, d.tree.Size())
	}

	s := &invertedState{
		weights:  make([]float64, doc.Words),
		inverted: make([][]Posting, doc.Words),
		images:   append([]int(nil), doc.Images...),
		position: make(map[int]int, len(doc.Images)),
	}

	var err error
	if s.phase, err = ParsePhase(doc.Phase); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if s.scheme, err = ParseWeightingScheme(doc.Scheme); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if s.phase == Normalized {
		if s.norm, err = ParseNormType(doc.Norm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
		}
	}
	if (s.phase == Empty) != (len(doc.Images) == 0) {
		return nil, fmt.Errorf("%w: %s index with %d images", ErrMalformedIndex, s.phase, len(doc.Images))
	}

	for i, id := range doc.Images {
		if _, ok := s.position[id]; ok {
			return nil, fmt.Errorf("%w: image %d listed twice", ErrMalformedIndex, id)
		}
		s.position[id] = i
	}
	for w := range s.weights {
		s.weights[w] = 1
	}

	seen := make(map[int]bool)
	for _, entry := range doc.Entries {
		w := entry.Word
		if w < 0 || w >= doc.Words {
			return nil, fmt.Errorf("%w: word %d out of range", ErrMalformedIndex, w)
		}
		if seen[w] {
			return nil, fmt.Errorf("%w: word %d listed twice", ErrMalformedIndex, w)
		}
		seen[w] = true
		s.weights[w] = entry.Weight

		images := make(map[int]bool, len(entry.Postings))
		for _, pair := range entry.Postings {
			id := int(pair[0])
			if float64(id) != pair[0] {
				return nil, fmt.Errorf("%w: word %d has non-integer image id %v", ErrMalformedIndex, w, pair[0])
			}
			if _, ok := s.position[id]; !ok {
				return nil, fmt.Errorf("%w: word %d references unknown image %d", ErrMalformedIndex, w, id)
			}
			if images[id] {
				return nil, fmt.Errorf("%w: word %d has two postings for image %d", ErrMalformedIndex, w, id)
			}
			images[id] = true
			s.inverted[w] = append(s.inverted[w], Posting{ImageID: id, Value: pair[1]})
		}
	}

	return s, nil
}

// LoadDirectIndex replaces the direct index with the one stored at path.
// Every image must already be in the database.
func (d *Database) LoadDirectIndex(path string) error {
	if err := d.checkTree(); err != nil {
		return err
	}

	var doc directDoc
	if err := yamlgz.ReadFile(path, &doc); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	words := d.tree.Size()
	direct := make(map[int][]DirectEntry, len(doc.Images))
	descriptors := 0
	for _, img := range doc.Images {
		if _, ok := d.position[img.Image]; !ok {
			return fmt.Errorf("%s: %w: %d", path, ErrUnknownImage, img.Image)
		}
		if _, ok := direct[img.Image]; ok {
			return fmt.Errorf("%s: %w: image %d listed twice", path, ErrMalformedIndex, img.Image)
		}

		entries := make([]DirectEntry, len(img.Entries))
		for i, pair := range img.Entries {
			if pair[0] < 0 || pair[0] >= words {
				return fmt.Errorf("%s: %w: image %d has word %d out of range", path, ErrMalformedIndex, img.Image, pair[0])
			}
			entries[i] = DirectEntry{Word: pair[0], Descriptor: pair[1]}
		}
		direct[img.Image] = entries
		descriptors += len(entries)
	}

	d.direct = direct
	d.descriptors = descriptors
	d.version++
	return nil
}
