// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"thumbnailer/internal/models"
)

// Storage is the upload catalog: one row per accepted upload with the
// metadata the file system does not keep. Job status is never stored here.
type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(ctx context.Context, dsn string, log zerolog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, log); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

func (s *Storage) SaveUpload(ctx context.Context, rec *models.UploadRecord) error {
	const op = "storage.SaveUpload"

	widths := make([]int64, len(rec.Widths))
	for i, w := range rec.Widths {
		widths[i] = int64(w)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, original_name, content_type, extension, size_bytes, widths)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.OriginalName, rec.ContentType, rec.Extension, rec.SizeBytes, pq.Array(widths))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetUpload(ctx context.Context, id string) (*models.UploadRecord, error) {
	const op = "storage.GetUpload"

	var (
		rec    models.UploadRecord
		widths []int32
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, original_name, content_type, extension, size_bytes, widths, created_at
		 FROM uploads WHERE id = $1`,
		id).Scan(&rec.ID, &rec.OriginalName, &rec.ContentType, &rec.Extension, &rec.SizeBytes, &widths, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec.Widths = make([]int, len(widths))
	for i, w := range widths {
		rec.Widths[i] = int(w)
	}
	return &rec, nil
}
