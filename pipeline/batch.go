package pipeline

import (
	"context"
	"sync"
)

// Item is one document submitted to ProcessAll.
type Item struct {
	Data    []byte
	Options ProcessOptions
}

// BatchResult is the outcome of one Item. Exactly one of Result and Err is set.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// ProcessAll processes items concurrently on the worker pool and returns
// their results in input order. Items with identical bytes contend for the
// same lease, so all but one report InProgress.
func (p *Pipeline) ProcessAll(ctx context.Context, items []Item) []BatchResult {
	return p.ProcessAllNotify(ctx, items, nil)
}

// ProcessAllNotify is ProcessAll with a callback invoked from the worker
// goroutines as each item finishes. notify may be nil and must be safe for
// concurrent use.
func (p *Pipeline) ProcessAllNotify(ctx context.Context, items []Item, notify func(BatchResult)) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		results[i].Index = i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			res, err := p.Process(ctx, item.Data, item.Options)
			results[i].Result = res
			results[i].Err = err
			if notify != nil {
				notify(results[i])
			}
		})
		if err != nil {
			wg.Done()
			results[i].Err = err
			p.logger.Error("error submitting document", "index", i, "err", err)
			if notify != nil {
				notify(results[i])
			}
		}
	}
	wg.Wait()
	return results
}
