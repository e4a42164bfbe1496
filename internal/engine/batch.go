package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

// BatchCategorize processes items in fixed-size chunks, categorizing each
// chunk's items concurrently, with a pause between chunks to bound load on
// the generative backend. One item's failure never aborts the batch; failed
// items are logged and skipped. Records are returned in input order.
func (p *Pipeline) BatchCategorize(ctx context.Context, items []model.Item, progress service.ProgressFunc) ([]model.CategorizationRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]*model.CategorizationRecord, len(items))
	total := len(items)
	processed := 0

	for start := 0; start < total; start += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return collect(results), err
		}

		end := start + p.chunkSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				record, err := p.Categorize(ctx, items[idx])
				if err != nil {
					p.logger.Error("Failed to categorize item",
						"item_id", items[idx].ID,
						"error", err)
					return
				}
				results[idx] = record
			}(i)
		}
		wg.Wait()

		processed = end
		if progress != nil {
			progress(service.BatchProgress{
				Processed:  processed,
				Total:      total,
				Percentage: float64(processed) / float64(total) * 100,
			})
		}

		if end < total && p.chunkPause > 0 {
			select {
			case <-ctx.Done():
				return collect(results), ctx.Err()
			case <-time.After(p.chunkPause):
			}
		}
	}

	return collect(results), nil
}

func collect(results []*model.CategorizationRecord) []model.CategorizationRecord {
	out := make([]model.CategorizationRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
