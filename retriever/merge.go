package retriever

import (
	"context"
	"sync"
	"time"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/schema"
)

// MultiSearch queries all engines in parallel and merges their results in
// engine registration order, keeping the first occurrence of each URL.
// Engine failures degrade: a failed engine contributes nothing and the merge
// proceeds with whatever the others returned.
func MultiSearch(ctx context.Context, engines []Engine, query string, maxResults int) []schema.WebResult {
	if len(engines) == 0 || maxResults <= 0 {
		return nil
	}

	perEngine := make([][]schema.WebResult, len(engines))
	var wg sync.WaitGroup
	for i, eng := range engines {
		wg.Add(1)
		go func(i int, eng Engine) {
			defer wg.Done()
			start := time.Now()
			results, err := eng.Search(ctx, query, maxResults)
			if err != nil {
				logger.Warnf("retriever: engine %s failed: %v", eng.Name(), err)
				return
			}
			metrics.ObserveSearch(eng.Name(), start, len(results))
			perEngine[i] = results
		}(i, eng)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var merged []schema.WebResult
	for _, results := range perEngine {
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
			if len(merged) >= maxResults {
				return merged
			}
		}
	}
	return merged
}
