package ntp

import (
	"context"
	"fmt"
	"sync"
)

// WorkerPool probes servers concurrently with bounded parallelism.
type WorkerPool struct {
	size    int
	querier Querier
	mu      sync.Mutex
	running bool
}

// job is a single probe task
type job struct {
	index  int
	server Server
}

// NewWorkerPool creates a pool of at most size concurrent probes.
func NewWorkerPool(size int, querier Querier) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		querier: querier,
	}
}

// ProbeAll probes every server and returns results in input order. A failed
// probe yields a result with Error set, not an error return.
func (wp *WorkerPool) ProbeAll(ctx context.Context, servers []Server) ([]*ProbeResult, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("no servers to probe")
	}

	wp.mu.Lock()
	if wp.running {
		wp.mu.Unlock()
		return nil, fmt.Errorf("worker pool already running")
	}
	wp.running = true
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		wp.running = false
		wp.mu.Unlock()
	}()

	results := make([]*ProbeResult, len(servers))
	jobs := make(chan job, len(servers))

	workerCount := wp.size
	if workerCount > len(servers) {
		workerCount = len(servers)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := wp.querier.Probe(ctx, j.server)
				if res == nil {
					res = &ProbeResult{Server: j.server}
					if err != nil {
						res.Error = err.Error()
					}
				}
				// Each index is written by exactly one worker
				results[j.index] = res
			}
		}()
	}

	for i, server := range servers {
		jobs <- job{index: i, server: server}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Size returns the configured worker pool size.
func (wp *WorkerPool) Size() int {
	return wp.size
}
