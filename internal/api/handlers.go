// Package api exposes the HTTP surface of the download service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/jobs"
	"github.com/audiofetch/audiofetch/internal/pipeline"
	"github.com/audiofetch/audiofetch/internal/storage"
	"github.com/audiofetch/audiofetch/pkg/types"
)

// DownloadService is the job lifecycle interface the handlers depend on
type DownloadService interface {
	Submit(ctx context.Context, url, quality string) (int64, error)
	GetStatus(ctx context.Context, id int64) (*types.StatusResponse, error)
	GetDownload(ctx context.Context, id int64) (*types.Download, error)
	Delete(ctx context.Context, id int64) error
	ListHistory(ctx context.Context, status string, limit, offset int) ([]*types.Download, int, error)
	RecentCompleted(ctx context.Context) ([]*types.Download, error)
	Stats(ctx context.Context) (*types.Stats, error)
	ClearCompleted(ctx context.Context, olderThanDays int) (int64, error)
}

// CleanupReporter summarises pending housekeeping for the health endpoint
type CleanupReporter interface {
	Status(ctx context.Context) *types.CleanupStatus
}

// Handler handles HTTP API requests
type Handler struct {
	service DownloadService
	cleanup CleanupReporter
}

// NewHandler creates a new API handler. cleanup may be nil.
func NewHandler(service DownloadService, cleanup CleanupReporter) *Handler {
	return &Handler{
		service: service,
		cleanup: cleanup,
	}
}

// SetupRoutes configures the API routes. The submit middleware (rate
// limiting) is applied to the download creation endpoint only.
func SetupRoutes(router *gin.Engine, handler *Handler, submitMiddleware ...gin.HandlerFunc) {
	router.GET("/", handler.Index)

	api := router.Group("/api")
	{
		create := append([]gin.HandlerFunc{}, submitMiddleware...)
		create = append(create, handler.CreateDownload)
		api.POST("/download", create...)

		api.GET("/download/:id", handler.GetDownloadStatus)
		api.GET("/download/:id/file", handler.DownloadFile)
		api.DELETE("/download/:id", handler.DeleteDownload)

		api.GET("/history", handler.GetHistory)
		api.GET("/history/stats", handler.GetStats)
		api.GET("/history/recent", handler.GetRecent)
		api.DELETE("/history/clear", handler.ClearHistory)

		api.GET("/health", handler.HealthCheck)
	}
}

// Index lists the available endpoints
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "audiofetch API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"health":           "GET /api/health",
			"create_download":  "POST /api/download",
			"get_status":       "GET /api/download/:id",
			"download_file":    "GET /api/download/:id/file",
			"delete_download":  "DELETE /api/download/:id",
			"history":          "GET /api/history",
			"history_stats":    "GET /api/history/stats",
			"recent_downloads": "GET /api/history/recent",
			"clear_history":    "DELETE /api/history/clear",
		},
	})
}

// CreateDownload accepts a conversion submission and queues it
func (h *Handler) CreateDownload(c *gin.Context) {
	var req types.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	id, err := h.service.Submit(c.Request.Context(), req.URL, req.Quality)
	if err != nil {
		var validationErr *jobs.ValidationError
		var pipelineErr *pipeline.Error
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Success: false,
				Message: validationErr.Message,
			})
		case errors.As(err, &pipelineErr):
			// Submission-time resolution failure; no job was created
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Success: false,
				Message: pipelineErr.Error(),
			})
		default:
			logrus.WithError(err).Error("Failed to create download")
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{
				Success: false,
				Message: "Error creating download",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, types.DownloadResponse{
		Success:    true,
		DownloadID: id,
		Status:     types.StatusPending,
		Message:    "Download queued successfully",
	})
}

// parseID extracts the numeric download id from the route
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Success: false,
			Message: "Download not found",
		})
		return 0, false
	}
	return id, true
}

// GetDownloadStatus returns the polling view of a download
func (h *Handler) GetDownloadStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.renderLookupError(c, err, "Error fetching download status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// DownloadFile streams the finished MP3 artifact as an attachment
func (h *Handler) DownloadFile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.service.GetDownload(c.Request.Context(), id)
	if err != nil {
		h.renderLookupError(c, err, "Error fetching download")
		return
	}

	if d.Status != types.StatusCompleted {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("Cannot download. Status: %s", d.Status),
		})
		return
	}

	if d.FilePath == "" {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Success: false,
			Message: "File path not found",
		})
		return
	}

	if _, err := os.Stat(d.FilePath); err != nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Success: false,
			Message: "File not found",
		})
		return
	}

	c.FileAttachment(d.FilePath, d.Title+".mp3")
}

// DeleteDownload removes a download and its artifact
func (h *Handler) DeleteDownload(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.renderLookupError(c, err, "Error deleting download")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Download deleted successfully",
	})
}

// GetHistory returns a paginated download listing
func (h *Handler) GetHistory(c *gin.Context) {
	status := c.Query("status")
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}

	downloads, total, err := h.service.ListHistory(c.Request.Context(), status, limit, offset)
	if err != nil {
		var validationErr *jobs.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Success: false,
				Message: validationErr.Message,
			})
			return
		}
		logrus.WithError(err).Error("Failed to fetch history")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Success: false,
			Message: "Error fetching history",
		})
		return
	}

	if downloads == nil {
		downloads = []*types.Download{}
	}

	c.JSON(http.StatusOK, types.HistoryResponse{
		Success: true,
		Data:    downloads,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetStats returns aggregate download statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch stats")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Success: false,
			Message: "Error fetching stats",
		})
		return
	}

	c.JSON(http.StatusOK, types.StatsResponse{
		Success: true,
		Stats:   *stats,
	})
}

// GetRecent returns the last ten completed downloads, newest first
func (h *Handler) GetRecent(c *gin.Context) {
	downloads, err := h.service.RecentCompleted(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch recent downloads")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Success: false,
			Message: "Error fetching recent downloads",
		})
		return
	}

	if downloads == nil {
		downloads = []*types.Download{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    downloads,
	})
}

// ClearHistory deletes completed records. Artifact files are left on disk
// for the retention sweeper; this endpoint is metadata housekeeping only.
func (h *Handler) ClearHistory(c *gin.Context) {
	olderThanDays := 0
	if raw := c.Query("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Success: false,
				Message: "older_than_days must be a non-negative integer",
			})
			return
		}
		olderThanDays = parsed
	}

	cleared, err := h.service.ClearCompleted(c.Request.Context(), olderThanDays)
	if err != nil {
		logrus.WithError(err).Error("Failed to clear history")
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Success: false,
			Message: "Error clearing history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "History cleared successfully",
		"cleared": cleared,
	})
}

// HealthCheck provides service liveness and housekeeping information
func (h *Handler) HealthCheck(c *gin.Context) {
	response := types.HealthResponse{
		Status:  "healthy",
		Message: "audiofetch API is running",
	}
	if h.cleanup != nil {
		response.Cleanup = h.cleanup.Status(c.Request.Context())
	}

	c.JSON(http.StatusOK, response)
}

// renderLookupError maps storage lookup failures to API responses
func (h *Handler) renderLookupError(c *gin.Context, err error, logMessage string) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Success: false,
			Message: "Download not found",
		})
		return
	}

	logrus.WithError(err).Error(logMessage)
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{
		Success: false,
		Message: "Internal server error",
	})
}

// intQuery parses a non-negative integer query parameter with a default
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
