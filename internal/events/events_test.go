package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"thumbnailer/internal/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByJob(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, zerolog.Nop(), 8)

	err := p.Publish(context.Background(), Event{JobID: "abc", Status: models.StatusCompleted, Widths: []int{32, 64}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "abc" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}

	var got Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted || got.At.IsZero() || len(got.Widths) != 2 {
		t.Errorf("event = %+v", got)
	}
}

func TestKafkaPublisherKeepsOrder(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, zerolog.Nop(), 16)

	statuses := []models.JobStatus{models.StatusQueued, models.StatusProcessing, models.StatusCompleted}
	for _, s := range statuses {
		if err := p.Publish(context.Background(), Event{JobID: "abc", Status: s}); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()

	if len(w.msgs) != len(statuses) {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	for i, m := range w.msgs {
		var e Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			t.Fatal(err)
		}
		if e.Status != statuses[i] {
			t.Errorf("message %d = %s, want %s", i, e.Status, statuses[i])
		}
	}
}

func TestKafkaPublisherLogsWriteError(t *testing.T) {
	var buf bytes.Buffer
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, zerolog.New(&buf), 8)

	if err := p.Publish(context.Background(), Event{JobID: "x"}); err != nil {
		t.Fatalf("Publish = %v, want nil", err)
	}
	p.Close()

	out := buf.String()
	if !strings.Contains(out, "broker down") || !strings.Contains(out, `"job_id":"x"`) {
		t.Fatalf("log = %s", out)
	}
}

func TestKafkaPublisherDoesNotWaitForBroker(t *testing.T) {
	w := &fakeWriter{started: make(chan struct{}, 2), release: make(chan struct{})}
	p := newKafkaPublisher(w, zerolog.Nop(), 1)

	// first message is held by a stalled broker
	if err := p.Publish(context.Background(), Event{JobID: "a"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.started:
	case <-time.After(time.Second):
		t.Fatal("delivery did not start")
	}

	// second fills the buffer, third is refused without blocking
	if err := p.Publish(context.Background(), Event{JobID: "b"}); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	err := p.Publish(context.Background(), Event{JobID: "c"})
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Publish on full buffer = %v, want ErrBufferFull", err)
	}
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Fatalf("Publish blocked for %s", took)
	}

	close(w.release)
	p.Close()
	if len(w.msgs) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(w.msgs))
	}
}

func TestPublishAfterClose(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{}, zerolog.Nop(), 1)
	p.Close()
	if err := p.Publish(context.Background(), Event{JobID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}

func TestNewWithoutBrokerIsNop(t *testing.T) {
	cfg := models.DefaultConfig()
	if _, ok := New(cfg, zerolog.Nop()).(Nop); !ok {
		t.Fatal("expected Nop publisher without broker")
	}
	cfg.KafkaBroker = "localhost:9092"
	p, ok := New(cfg, zerolog.Nop()).(*KafkaPublisher)
	if !ok {
		t.Fatal("expected kafka publisher with broker")
	}
	p.Close()
}
