package bow

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/descriptor"
)

// ScoreQuery returns the distance between the query descriptors and every
// image, ordered by image id. Lower is better.
//
// The query vector holds per-word counts, multiplied by the word weights
// once the database is weighted and normalized with norm once the database
// is normalized. Only postings of the query's words are visited: each
// distance starts from ||q|| + ||d|| and is corrected for every shared word.
func (d *Database) ScoreQuery(query descriptor.Matrix, norm NormType) ([]Score, error) {
	start := time.Now()

	if !norm.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNorm, int(norm))
	}
	if err := d.checkTree(); err != nil {
		return nil, err
	}

	words, err := d.tree.QuantizeAll(query)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.images) == 0 {
		return nil, ErrEmptyDatabase
	}

	q := d.queryVector(words, norm)

	var qNorm float64
	for _, e := range q {
		if norm == L1Norm {
			qNorm += math.Abs(e.value)
		} else {
			qNorm += e.value * e.value
		}
	}

	// correction per image position
	acc := make([]float64, len(d.images))
	for _, e := range q {
		if e.word >= len(d.inverted) {
			continue
		}
		qv := e.value
		for _, p := range d.inverted[e.word] {
			i := d.position[p.ImageID]
			if norm == L1Norm {
				acc[i] += math.Abs(qv-p.Value) - math.Abs(qv) - math.Abs(p.Value)
			} else {
				acc[i] -= 2 * qv * p.Value
			}
		}
	}

	scores := make([]Score, 0, len(d.images))
	for _, id := range d.sortedImages() {
		i := d.position[id]
		var dist float64
		if norm == L1Norm {
			dist = qNorm + d.norms[i].l1 + acc[i]
		} else {
			dist = math.Sqrt(math.Max(0, qNorm+d.norms[i].l2sq+acc[i]))
		}
		scores = append(scores, Score{ImageID: id, Distance: math.Max(0, dist)})
	}

	if d.metrics != nil {
		d.metrics.RecordQuery(time.Since(start), len(words))
	}
	return scores, nil
}

// wordValue is one non-empty entry of a sparse vector
type wordValue struct {
	word  int
	value float64
}

// queryVector builds the sparse query BoW vector in ascending word order so
// sums are reproducible. Caller holds a lock.
func (d *Database) queryVector(words []int, norm NormType) []wordValue {
	sorted := append([]int(nil), words...)
	sort.Ints(sorted)

	var q []wordValue
	for _, w := range sorted {
		if len(q) > 0 && q[len(q)-1].word == w {
			q[len(q)-1].value++
			continue
		}
		q = append(q, wordValue{word: w, value: 1})
	}

	if d.phase >= Weighted {
		for i := range q {
			if q[i].word < len(d.weights) {
				q[i].value *= d.weights[q[i].word]
			}
		}
	}

	if d.phase == Normalized {
		var n float64
		for _, e := range q {
			if norm == L1Norm {
				n += math.Abs(e.value)
			} else {
				n += e.value * e.value
			}
		}
		if norm == L2Norm {
			n = math.Sqrt(n)
		}
		if n > 0 {
			for i := range q {
				q[i].value /= n
			}
		}
	}

	return q
}
