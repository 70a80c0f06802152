package timeline

import (
	"context"
	"sync"
)

// broadcast runs op once per follower on a bounded worker pool, joins on
// completion and collects every follower's outcome. Followers fail
// independently: one rejected write never blocks or rolls back a sibling's.
func (e *Engine) broadcast(ctx context.Context, followers []string, op func(ctx context.Context, follower string) error) *FanoutReport {
	report := &FanoutReport{Results: make([]FanoutResult, len(followers))}
	if len(followers) == 0 {
		return report
	}

	workers := e.fanoutWorkers
	if workers > len(followers) {
		workers = len(followers)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				follower := followers[i]
				report.Results[i] = FanoutResult{
					FollowerID: follower,
					Err:        op(ctx, follower),
				}
			}
		}()
	}
	for i := range followers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return report
}
