// Package worker derives thumbnails for queued jobs.
package worker

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"thumbnailer/internal/events"
	"thumbnailer/internal/layout"
	"thumbnailer/internal/models"
	"thumbnailer/internal/queue"
	"thumbnailer/internal/status"
)

const publishTimeout = 5 * time.Second

// Codec is the image capability a worker needs.
type Codec interface {
	Decode(path string) (image.Image, imaging.Format, error)
	Resize(img image.Image, width int) image.Image
	Save(img image.Image, path string, format imaging.Format) error
}

type Deps struct {
	Queue     *queue.Queue
	Tracker   *status.Tracker
	Codec     Codec
	Widths    []int
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// Worker owns a job from the moment it is dequeued until its status is
// terminal. A Worker value may be run by several goroutines at once.
type Worker struct {
	queue     *queue.Queue
	tracker   *status.Tracker
	codec     Codec
	widths    []int
	publisher events.Publisher
	log       zerolog.Logger
}

func New(d Deps) *Worker {
	pub := d.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &Worker{
		queue:     d.Queue,
		tracker:   d.Tracker,
		codec:     d.Codec,
		widths:    append([]int(nil), d.Widths...),
		publisher: pub,
		log:       d.Logger,
	}
}

// Run processes jobs until ctx is cancelled or the queue is closed. A job
// already dequeued is finished before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Msg("worker: started")
	for job := range w.queue.Drain(ctx) {
		w.Process(job)
	}
	w.log.Info().Msg("worker: stopped")
}

// Process derives every configured width for job and records the terminal
// status. It never panics and never returns an error: failures end up in
// the tracker and the log.
func (w *Worker) Process(job models.Job) {
	log := w.log.With().Str("job_id", job.ID).Logger()
	start := time.Now()

	w.tracker.Set(job.ID, models.StatusProcessing)
	w.publish(log, events.Event{JobID: job.ID, Status: models.StatusProcessing})
	log.Debug().Str("original", job.OriginalPath).Msg("worker: picked job")

	if err := w.derive(job); err != nil {
		w.tracker.Fail(job.ID, err)
		w.publish(log, events.Event{JobID: job.ID, Status: models.StatusFailed, Error: err.Error()})
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("worker: job failed")
		return
	}

	w.tracker.Set(job.ID, models.StatusCompleted)
	w.publish(log, events.Event{JobID: job.ID, Status: models.StatusCompleted, Widths: w.widths})
	log.Info().Int("variants", len(w.widths)).Dur("took", time.Since(start)).Msg("worker: job completed")
}

// derive decodes the original once and writes one variant per width, in
// configured order, stopping at the first failure.
func (w *Worker) derive(job models.Job) (err error) {
	const op = "worker.derive"

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
	}()

	src, format, err := w.codec.Decode(job.OriginalPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ext := filepath.Ext(job.OriginalPath)
	for _, width := range w.widths {
		thumb := w.codec.Resize(src, width)
		path := layout.ResolvePath(job.FolderPath, job.ID, layout.Variant(width), ext)
		if err := w.codec.Save(thumb, path, format); err != nil {
			return fmt.Errorf("%s: width %d: %w", op, width, err)
		}
	}
	return nil
}

func (w *Worker) publish(log zerolog.Logger, e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := w.publisher.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("status", string(e.Status)).Msg("worker: publish event failed")
	}
}
