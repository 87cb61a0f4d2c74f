package worker

import (
	"context"
	"sync"
)

// Pool runs n competing copies of a Worker loop over the same queue.
type Pool struct {
	worker *Worker
	size   int
	wg     sync.WaitGroup
}

func NewPool(w *Worker, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{worker: w, size: size}
}

// Start launches the workers. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		w := *p.worker
		w.log = p.worker.log.With().Int("worker", i).Logger()

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
