package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/scheduler"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
)

// SourceCatalog lists the configured sources. *sources.Registry implements it.
type SourceCatalog interface {
	All() []domain.ConnectorConfig
	Get(id string) (domain.ConnectorConfig, error)
}

// JobStore is the queue surface the API needs. *queue.Queue implements it.
type JobStore interface {
	scheduler.Enqueuer
	AllStats(ctx context.Context) ([]queue.Stats, error)
	Get(ctx context.Context, name queue.Name, id string) (*queue.Job, error)
}

// SourceView is a source as reported by the API.
type SourceView struct {
	domain.ConnectorConfig
	Queue    queue.Name `json:"queue"`
	Schedule string     `json:"schedule,omitempty"`
}

// Handler serves the /api/v1 routes.
type Handler struct {
	sources SourceCatalog
	jobs    JobStore
	logger  logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(srcs SourceCatalog, jobs JobStore, log logger.Logger) *Handler {
	return &Handler{
		sources: srcs,
		jobs:    jobs,
		logger:  log,
	}
}

// ListSources handles GET /api/v1/sources.
func (h *Handler) ListSources(c *gin.Context) {
	all := h.sources.All()
	views := make([]SourceView, 0, len(all))
	for _, src := range all {
		views = append(views, newSourceView(src))
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": views,
		"count":   len(views),
	})
}

func newSourceView(src domain.ConnectorConfig) SourceView {
	// Registry validation guarantees a known frequency.
	expr, _ := scheduler.CronExpression(src.Frequency)
	return SourceView{ConnectorConfig: src, Queue: scheduler.QueueFor(src), Schedule: expr}
}

// QueueStats handles GET /api/v1/queues.
func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.jobs.AllStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read queue stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// GetJob handles GET /api/v1/jobs/:queue/:id.
func (h *Handler) GetJob(c *gin.Context) {
	name, err := queue.ParseName(c.Param("queue"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown queue", "details": err.Error()})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), name, c.Param("id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load job",
			logger.Queue(string(name)),
			logger.JobID(c.Param("id")),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RunSource handles POST /api/v1/sources/:id/run. It enqueues a one-shot
// job for the source, disabled or not.
func (h *Handler) RunSource(c *gin.Context) {
	id := c.Param("id")
	src, err := h.sources.Get(id)
	if errors.Is(err, sources.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load source"})
		return
	}

	job, err := scheduler.Enqueue(c.Request.Context(), h.jobs, src, "")
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to enqueue source run",
			logger.SourceID(id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue job"})
		return
	}

	fields := []logger.Field{
		logger.SourceID(id),
		logger.JobID(job.ID),
		logger.Queue(string(job.Queue)),
	}
	if claims, ok := ClaimsFrom(c); ok {
		fields = append(fields, logger.String("requested_by", claims.Sub))
	}
	logger.FromContext(c.Request.Context()).Info("Source run enqueued", fields...)
	c.JSON(http.StatusAccepted, job)
}
