package bow

import (
	"fmt"
	"math"
)

// ComputeWordsWeights sets the weight of every word. Binary gives 1; TF-IDF
// gives ln(N/n_w) with N images and n_w images holding the word, and 0 for
// words no image holds. Postings are not modified until CreateDatabase.
func (d *Database) ComputeWordsWeights(scheme WeightingScheme) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != Populated {
		return fmt.Errorf("%w: weights are computed on a populated database, got %s", ErrInvalidPhase, d.phase)
	}

	n := float64(len(d.images))
	switch scheme {
	case BinaryWeighting:
		for w := range d.weights {
			d.weights[w] = 1
		}
	case TFIDFWeighting:
		for w, postings := range d.inverted {
			if len(postings) == 0 {
				d.weights[w] = 0
				continue
			}
			d.weights[w] = math.Log(n / float64(len(postings)))
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownScheme, int(scheme))
	}

	d.scheme = scheme
	d.weightsComputed = true
	d.version++

	if d.metrics != nil {
		d.metrics.RecordWeighting(scheme.String())
	}
	d.logger.Info("Word weights computed", map[string]interface{}{
		"scheme": scheme.String(),
		"words":  len(d.weights),
		"images": len(d.images),
	})
	return nil
}

// CreateDatabase multiplies every posting by its word weight
func (d *Database) CreateDatabase() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != Populated {
		return fmt.Errorf("%w: cannot weight a %s database", ErrInvalidPhase, d.phase)
	}
	if !d.weightsComputed {
		return ErrWeightsNotComputed
	}

	for w, postings := range d.inverted {
		weight := d.weights[w]
		for i := range postings {
			postings[i].Value *= weight
		}
	}

	d.refreshNorms()
	d.phase = Weighted
	d.version++

	d.logger.Info("Database weighted", map[string]interface{}{
		"scheme": d.scheme.String(),
	})
	return nil
}

// NormalizeDatabase divides every posting of an image by the norm of that
// image's vector. Images whose norm is 0 are left unchanged.
func (d *Database) NormalizeDatabase(norm NormType) error {
	if !norm.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownNorm, int(norm))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != Weighted {
		return fmt.Errorf("%w: cannot normalize a %s database", ErrInvalidPhase, d.phase)
	}

	zero := 0
	for _, n := range d.norms {
		if n.get(norm) == 0 {
			zero++
		}
	}

	for _, postings := range d.inverted {
		for i := range postings {
			n := d.norms[d.position[postings[i].ImageID]].get(norm)
			if n == 0 {
				continue
			}
			postings[i].Value /= n
		}
	}

	d.refreshNorms()
	d.norm = norm
	d.phase = Normalized
	d.version++

	if d.metrics != nil {
		d.metrics.RecordNormalization(norm.String())
	}
	d.logger.Info("Database normalized", map[string]interface{}{
		"norm":        norm.String(),
		"zero_images": zero,
	})
	return nil
}
