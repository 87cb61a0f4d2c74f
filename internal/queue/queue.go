// Package queue is the bounded FIFO that decouples upload acceptance from
// thumbnail derivation. Producers block while it is full; any number of
// consumers compete for jobs and each job is delivered to exactly one.
package queue

import (
	"context"
	"errors"
	"iter"
	"sync"

	"thumbnailer/internal/models"
)

// ErrClosed is returned by Submit and Next once the queue is closed.
var ErrClosed = errors.New("queue: closed")

type Queue struct {
	jobs chan models.Job
	done chan struct{}
	once sync.Once
}

// New returns a queue holding at most capacity pending jobs. A capacity of
// zero hands every job directly from producer to consumer.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		jobs: make(chan models.Job, capacity),
		done: make(chan struct{}),
	}
}

// Submit enqueues job, blocking while the queue is full. It fails only when
// ctx ends or the queue is closed before a slot frees up; in that case the
// job was not enqueued.
func (q *Queue) Submit(ctx context.Context, job models.Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// Next blocks until a job is available. Once ctx is cancelled no further job
// is handed out, even if some are still queued.
func (q *Queue) Next(ctx context.Context) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, err
	}

	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return models.Job{}, ctx.Err()
	case <-q.done:
		return models.Job{}, ErrClosed
	}
}

// Drain yields jobs in submission order until ctx is cancelled or the queue
// is closed.
func (q *Queue) Drain(ctx context.Context) iter.Seq[models.Job] {
	return func(yield func(models.Job) bool) {
		for {
			job, err := q.Next(ctx)
			if err != nil {
				return
			}
			if !yield(job) {
				return
			}
		}
	}
}

// Len is the number of jobs waiting for a worker.
func (q *Queue) Len() int { return len(q.jobs) }

// Cap is the configured capacity.
func (q *Queue) Cap() int { return cap(q.jobs) }

// Close stops admission and wakes every blocked producer and consumer.
// Jobs still queued are abandoned.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
