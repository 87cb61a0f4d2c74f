// Package events publishes job lifecycle transitions so other services can
// react to finished thumbnails without polling.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"thumbnailer/internal/models"
)

const (
	bufferSize   = 256
	writeTimeout = 5 * time.Second
)

var (
	ErrBufferFull = errors.New("events: buffer full")
	ErrClosed     = errors.New("events: publisher closed")
)

type Event struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	Widths []int            `json:"widths,omitempty"`
	At     time.Time        `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per transition, keyed by job id so all
// events of a job land on the same partition in order. Publish only buffers
// the message; a single goroutine delivers it, so a slow or unreachable
// broker never stalls uploads or workers. Delivery failures are logged.
type KafkaPublisher struct {
	w       messageWriter
	log     zerolog.Logger
	timeout time.Duration
	pending chan kafka.Message
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewKafkaPublisher(broker, topic string, log zerolog.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, log, bufferSize)
}

func newKafkaPublisher(w messageWriter, log zerolog.Logger, buffer int) *KafkaPublisher {
	p := &KafkaPublisher{
		w:       w,
		log:     log,
		timeout: writeTimeout,
		pending: make(chan kafka.Message, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish hands e to the delivery goroutine. It fails with ErrBufferFull
// instead of blocking when the broker falls behind.
func (p *KafkaPublisher) Publish(_ context.Context, e Event) error {
	const op = "events.Publish"

	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	select {
	case <-p.stop:
		return fmt.Errorf("%s: %w", op, ErrClosed)
	default:
	}

	select {
	case p.pending <- kafka.Message{Key: []byte(e.JobID), Value: value}:
		return nil
	default:
		return fmt.Errorf("%s: job %s: %w", op, e.JobID, ErrBufferFull)
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.pending:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			p.write(ctx, msg)
			cancel()
		case <-p.stop:
			// flush what is buffered, bounded by one write timeout overall
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			defer cancel()
			for {
				select {
				case msg := <-p.pending:
					p.write(ctx, msg)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, msg kafka.Message) {
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("job_id", string(msg.Key)).Msg("events: delivery failed")
	}
}

// Close flushes buffered events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return p.w.Close()
}

// New picks the kafka publisher when a broker is configured.
func New(cfg *models.Config, log zerolog.Logger) Publisher {
	if cfg.KafkaBroker == "" {
		return Nop{}
	}
	return NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, log)
}
