package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"thumbnailer/internal/events"
	"thumbnailer/internal/ident"
	"thumbnailer/internal/layout"
	"thumbnailer/internal/models"
	"thumbnailer/internal/queue"
	"thumbnailer/internal/status"
)

// Catalog keeps upload metadata. It is optional.
type Catalog interface {
	SaveUpload(ctx context.Context, rec *models.UploadRecord) error
	GetUpload(ctx context.Context, id string) (*models.UploadRecord, error)
}

type Deps struct {
	Config    *models.Config
	Layout    *layout.Layout
	Queue     *queue.Queue
	Tracker   *status.Tracker
	Catalog   Catalog
	Publisher events.Publisher
	NewID     ident.Generator
	Logger    zerolog.Logger
}

type Server struct {
	cfg       *models.Config
	router    *gin.Engine
	httpSrv   *http.Server
	layout    *layout.Layout
	queue     *queue.Queue
	tracker   *status.Tracker
	catalog   Catalog
	publisher events.Publisher
	newID     ident.Generator
	log       zerolog.Logger
}

func NewServer(d Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(d.Logger), corsPolicy())

	s := &Server{
		cfg:       d.Config,
		router:    r,
		layout:    d.Layout,
		queue:     d.Queue,
		tracker:   d.Tracker,
		catalog:   d.Catalog,
		publisher: d.Publisher,
		newID:     d.NewID,
		log:       d.Logger,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}

	r.GET("/health", s.handleHealth)
	r.GET("/api/widths", s.handleWidths)

	api := r.Group("/api/thumbnails")
	api.POST("", s.handleUpload)
	api.GET("/:id", s.handleGetImage)
	api.GET("/:id/status", s.handleStatus)
	api.GET("/:id/info", s.handleInfo)

	s.httpSrv = &http.Server{
		Addr:              d.Config.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("server: listening")
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the queue to new jobs, which releases uploads blocked on a
// full queue with 503, then waits for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.queue.Close()
	return s.httpSrv.Shutdown(ctx)
}

// Enqueue records id as Queued and hands the job to the workers. It blocks
// while the queue is full. Queued is set before the job becomes visible to
// a worker so it can never overwrite a later status.
func (s *Server) Enqueue(ctx context.Context, id, originalPath, folder string) error {
	const op = "server.Enqueue"

	job := models.Job{ID: id, OriginalPath: originalPath, FolderPath: folder}

	s.tracker.Set(id, models.StatusQueued)
	s.publish(events.Event{JobID: id, Status: models.StatusQueued})

	if err := s.queue.Submit(ctx, job); err != nil {
		err = fmt.Errorf("%s: job not admitted: %w", op, err)
		s.tracker.Fail(id, err)
		s.publish(events.Event{JobID: id, Status: models.StatusFailed, Error: err.Error()})
		return err
	}
	return nil
}

// GetStatus reports the last known status of id.
func (s *Server) GetStatus(id string) (models.JobStatus, bool) {
	return s.tracker.Get(id)
}

// ListVariants lists the stored files of one variant of id.
func (s *Server) ListVariants(folder, id string, v layout.Variant) ([]string, error) {
	return layout.FindMatching(folder, id, v)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded!"})
		return
	}

	upload := models.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
	}
	if err := layout.Validate(upload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid image file. Only JPG, PNG, and GIF formats are supported!",
			"details": err.Error(),
		})
		return
	}

	id, err := s.newID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	ext := layout.NormalizeExt(filepath.Ext(file.Filename))

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	defer src.Close()

	originalPath, err := s.layout.SaveOriginal(id, ext, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	if s.catalog != nil {
		rec := &models.UploadRecord{
			ID:           id,
			OriginalName: file.Filename,
			ContentType:  upload.ContentType,
			Extension:    ext,
			SizeBytes:    file.Size,
			Widths:       s.cfg.ThumbnailWidths,
		}
		if err := s.catalog.SaveUpload(c.Request.Context(), rec); err != nil {
			s.log.Warn().Err(err).Str("job_id", id).Msg("server: catalog write failed")
		}
	}

	if err := s.Enqueue(c.Request.Context(), id, originalPath, s.layout.Folder(id)); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("server: enqueue failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"id": id, "status": models.StatusFailed, "error": "job was not accepted"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     id,
		"status": models.StatusQueued,
		"links":  s.links(c, id),
	})
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"

	id := c.Param("id")
	if !layout.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	variant := layout.Original
	if raw := c.Query("width"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "width must be a positive integer"})
			return
		}
		variant = layout.Variant(w)
	}

	folder := s.layout.Folder(id)
	if _, err := os.Stat(folder); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "An error occurred", "details": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	matches, err := s.ListVariants(folder, id, variant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "An error occurred", "details": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if len(matches) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Image not found"})
		return
	}

	c.File(matches[0])
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Param("id")
	if !layout.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	state, ok := s.tracker.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         id,
		"status":     state.Status,
		"error":      state.Error,
		"updated_at": state.UpdatedAt,
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	const op = "server.handleInfo"

	if s.catalog == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "upload catalog is disabled"})
		return
	}

	id := c.Param("id")
	if !layout.ValidID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	rec, err := s.catalog.GetUpload(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": models.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	resp := gin.H{"upload": rec, "links": s.links(c, id)}
	if st, ok := s.tracker.Get(id); ok {
		resp["status"] = st
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWidths(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"widths": s.cfg.ThumbnailWidths})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"queue":  gin.H{"len": s.queue.Len(), "cap": s.queue.Cap()},
		"jobs":   s.tracker.Counts(),
	})
}

// links builds the absolute URL of every variant of id.
func (s *Server) links(c *gin.Context, id string) map[string]string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s/api/thumbnails/%s", scheme, c.Request.Host, id)

	links := make(map[string]string, len(s.cfg.ThumbnailWidths)+1)
	for _, w := range s.cfg.ThumbnailWidths {
		links["w"+strconv.Itoa(w)] = base + "?width=" + strconv.Itoa(w)
	}
	links["original"] = base
	return links
}

func (s *Server) publish(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("job_id", e.JobID).Msg("server: publish event failed")
	}
}
