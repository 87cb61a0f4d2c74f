package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"thumbnailer/internal/events"
	"thumbnailer/internal/ident"
	"thumbnailer/internal/imagecodec"
	"thumbnailer/internal/layout"
	"thumbnailer/internal/logger"
	"thumbnailer/internal/models"
	"thumbnailer/internal/queue"
	"thumbnailer/internal/server"
	"thumbnailer/internal/status"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "thumbnailer",
		Short: "Accepts image uploads and serves resized thumbnails",
		Long: `thumbnailer stores uploaded JPG, PNG and GIF images and derives one
thumbnail per configured width in the background. Job status is polled
over HTTP and every variant is served back by identifier.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults are used when empty)")
	return cmd
}

func run(configPath string) error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := models.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	log := logger.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newID, err := ident.New(cfg.IDFormat)
	if err != nil {
		log.Error().Err(err).Msg("main: id generator")
		return err
	}

	var catalog server.Catalog
	if cfg.DatabaseURL != "" {
		db, err := storage.NewStorage(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Error().Err(err).Msg("main: failed to init storage")
			return err
		}
		defer db.Close()
		catalog = db
	} else {
		log.Info().Msg("main: no database_url, upload catalog disabled")
	}

	publisher := events.New(cfg, log.With().Str("component", "events").Logger())
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("main: closing event publisher")
		}
	}()

	jobs := queue.New(cfg.QueueCapacity)
	tracker := status.New()
	files := layout.New(cfg.StoragePath)

	pool := worker.NewPool(worker.New(worker.Deps{
		Queue:     jobs,
		Tracker:   tracker,
		Codec:     imagecodec.New(cfg.JPEGQuality),
		Widths:    cfg.ThumbnailWidths,
		Publisher: publisher,
		Logger:    log.With().Str("component", "worker").Logger(),
	}), cfg.Workers)
	pool.Start(ctx)

	srv := server.NewServer(server.Deps{
		Config:    cfg,
		Layout:    files,
		Queue:     jobs,
		Tracker:   tracker,
		Catalog:   catalog,
		Publisher: publisher,
		NewID:     newID,
		Logger:    log.With().Str("component", "http").Logger(),
	})

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	log.Info().
		Ints("widths", cfg.ThumbnailWidths).
		Int("queue_capacity", cfg.QueueCapacity).
		Int("workers", cfg.Workers).
		Msg("main: started")

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			log.Error().Err(err).Msg("main: server stopped")
			stop()
			pool.Wait()
			return err
		}
	}

	return shutdown(log, srv, jobs, pool)
}

// shutdown closes the queue so no upload stays blocked on it, stops the
// HTTP server, then lets every worker finish the job it holds. Jobs still
// waiting in the queue are dropped.
func shutdown(log zerolog.Logger, srv *server.Server, jobs *queue.Queue, pool *worker.Pool) error {
	log.Info().Int("abandoned_jobs", jobs.Len()).Msg("main: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	jobs.Close()
	err := srv.Stop(ctx)
	pool.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("main: server shutdown")
		return err
	}
	log.Info().Msg("main: stopped")
	return nil
}
