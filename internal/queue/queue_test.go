package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"thumbnailer/internal/models"
)

func job(i int) models.Job {
	return models.Job{ID: fmt.Sprintf("job-%d", i)}
}

func TestFIFOOrder(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := q.Submit(ctx, job(i)); err != nil {
			t.Fatal(err)
		}
	}
	if q.Len() != 10 || q.Cap() != 10 {
		t.Fatalf("Len/Cap = %d/%d", q.Len(), q.Cap())
	}
	for i := 0; i < 10; i++ {
		got, err := q.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != job(i).ID {
			t.Fatalf("Next() = %s, want %s", got.ID, job(i).ID)
		}
	}
}

func TestSubmitBlocksWhileFull(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	if err := q.Submit(ctx, job(0)); err != nil {
		t.Fatal(err)
	}

	admitted := make(chan error, 1)
	go func() { admitted <- q.Submit(ctx, job(1)) }()

	select {
	case err := <-admitted:
		t.Fatalf("Submit returned %v while queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Next(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-admitted:
		if err != nil {
			t.Fatalf("blocked Submit = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Submit was never admitted")
	}

	got, err := q.Next(ctx)
	if err != nil || got.ID != "job-1" {
		t.Fatalf("Next() = %v, %v; want job-1", got.ID, err)
	}
}

func TestSubmitHonoursContext(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Submit(ctx, job(0)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit = %v, want deadline exceeded", err)
	}
}

func TestCompetingConsumersGetEachJobOnce(t *testing.T) {
	const n = 500
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	received := make(chan struct{}, n)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range q.Drain(ctx) {
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
				received <- struct{}{}
			}
		}()
	}

	var producers sync.WaitGroup
	for p := 0; p < 5; p++ {
		producers.Add(1)
		go func(p int) {
			defer producers.Done()
			for i := 0; i < n/5; i++ {
				if err := q.Submit(ctx, job(p*1000+i)); err != nil {
					t.Error(err)
					return
				}
			}
		}(p)
	}
	producers.Wait()

	for i := 0; i < n; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d jobs delivered", i, n)
		}
	}
	cancel()
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("delivered %d distinct jobs, want %d", len(seen), n)
	}
	for id, c := range seen {
		if c != 1 {
			t.Fatalf("job %s delivered %d times", id, c)
		}
	}
}

func TestNextStopsAfterCancelEvenWithQueuedJobs(t *testing.T) {
	q := New(4)
	_ = q.Submit(context.Background(), job(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next after cancel = %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("queued job consumed after cancel")
	}
}

func TestCloseWakesBlockedCallers(t *testing.T) {
	q := New(0)
	errs := make(chan error, 2)
	go func() { _, err := q.Next(context.Background()); errs <- err }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close()

	if err := <-errs; !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Close = %v", err)
	}
	if err := q.Submit(context.Background(), job(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close = %v", err)
	}
}

func TestZeroCapacityHandsOff(t *testing.T) {
	q := New(0)
	ctx := context.Background()
	got := make(chan models.Job, 1)
	go func() {
		j, _ := q.Next(ctx)
		got <- j
	}()
	if err := q.Submit(ctx, job(7)); err != nil {
		t.Fatal(err)
	}
	if j := <-got; j.ID != "job-7" {
		t.Fatalf("handed off %s", j.ID)
	}
}
