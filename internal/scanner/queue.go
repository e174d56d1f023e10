package scanner

import (
	"context"
	"sync"
)

// job is one unit of scan work handed from Initiate to the worker pool.
type job struct {
	scanID string
	url    string
}

// queue is a bounded in-process job queue with a supervised worker pool.
// Handing work to a pool instead of spawning a goroutine per request keeps
// browser concurrency bounded and gives failures a place to be observed.
type queue struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newQueue(size int) *queue {
	return &queue{jobs: make(chan job, size)}
}

// enqueue offers a job without blocking. Returns false when the queue is
// full or stopped.
func (q *queue) enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		return false
	}
}

func (q *queue) start(ctx context.Context, workers int, run func(context.Context, job)) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case j, ok := <-q.jobs:
					if !ok {
						return
					}
					run(ctx, j)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// stop closes the queue and waits for workers to drain it.
func (q *queue) stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
