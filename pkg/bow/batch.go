package bow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// AddImagesToDatabase inserts a batch of images. Descriptors are quantized
// concurrently; postings are then merged in batch order under the write
// lock, so the result is identical to inserting the images one by one.
// Nothing is inserted when any image fails validation or quantization.
func (d *Database) AddImagesToDatabase(ctx context.Context, batch []Image) error {
	start := time.Now()

	if err := d.checkTree(); err != nil {
		return err
	}

	ids := make(map[int]bool, len(batch))
	for _, img := range batch {
		if ids[img.ID] {
			return fmt.Errorf("%w: %d appears twice in batch", ErrDuplicateImage, img.ID)
		}
		ids[img.ID] = true
	}

	words := make([][]int, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range batch {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, err := d.tree.QuantizeAll(batch[i].Descriptors)
			if err != nil {
				return fmt.Errorf("image %d: %w", batch[i].ID, err)
			}
			words[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, img := range batch {
		if err := d.checkInsertable(img.ID); err != nil {
			return err
		}
	}
	for i, img := range batch {
		d.addWords(img.ID, words[i])
	}
	d.updateSizeMetric()

	if d.metrics != nil {
		d.metrics.RecordBatchInsert(time.Since(start))
	}
	d.logger.Debug("Batch inserted", map[string]interface{}{
		"images":   len(batch),
		"duration": time.Since(start),
	})
	return nil
}
