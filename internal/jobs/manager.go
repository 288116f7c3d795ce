// Package jobs owns the download lifecycle: validation, submission,
// background execution and the status/history views.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/archive"
	"github.com/audiofetch/audiofetch/internal/metrics"
	"github.com/audiofetch/audiofetch/internal/pipeline"
	"github.com/audiofetch/audiofetch/internal/storage"
	"github.com/audiofetch/audiofetch/pkg/types"
)

// youtubeURLPattern matches the allowed source hosts
var youtubeURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/`)

// maxURLLength bounds accepted submission URLs
const maxURLLength = 500

// ValidationError describes a rejected submission. It is never persisted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Pipeline is the external metadata/extraction capability the manager drives
type Pipeline interface {
	ResolveMetadata(ctx context.Context, url string) (*pipeline.Metadata, error)
	FetchAndEncode(ctx context.Context, url, quality string, downloadID int64) (*pipeline.Result, error)
}

// Manager drives download jobs through their state machine. The store is
// the sole source of truth for job progress; exactly one background task
// is spawned per accepted submission.
type Manager struct {
	store          *storage.Store
	pipe           Pipeline
	mirror         *archive.Mirror
	mets           *metrics.Metrics
	defaultQuality string
}

// NewManager creates a download manager. mirror and mets may be nil.
func NewManager(store *storage.Store, pipe Pipeline, mirror *archive.Mirror, mets *metrics.Metrics, defaultQuality string) *Manager {
	if defaultQuality == "" {
		defaultQuality = "192"
	}
	return &Manager{
		store:          store,
		pipe:           pipe,
		mirror:         mirror,
		mets:           mets,
		defaultQuality: defaultQuality,
	}
}

// Submit validates a request, resolves metadata synchronously and inserts a
// pending download, then hands off to background execution. Resolution
// failures reject the submission; no row is created for them.
func (m *Manager) Submit(ctx context.Context, url, quality string) (int64, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, &ValidationError{Message: "YouTube URL is required"}
	}
	if len(url) > maxURLLength {
		return 0, &ValidationError{Message: "URL is too long"}
	}
	if !youtubeURLPattern.MatchString(url) {
		return 0, &ValidationError{Message: "Invalid YouTube URL"}
	}

	if quality == "" {
		quality = m.defaultQuality
	}
	if !types.QualityAllowed(quality) {
		return 0, &ValidationError{
			Message: fmt.Sprintf("Invalid quality. Allowed: %s", strings.Join(types.AllowedQualities, ", ")),
		}
	}

	meta, err := m.pipe.ResolveMetadata(ctx, url)
	if err != nil {
		return 0, err
	}

	id, err := m.store.Insert(ctx, url, meta.Title, meta.Uploader, int64(meta.Duration), quality)
	if err != nil {
		return 0, fmt.Errorf("failed to create download record: %w", err)
	}

	if m.mets != nil {
		m.mets.DownloadsSubmitted.Inc()
	}

	logrus.WithFields(logrus.Fields{
		"download_id": id,
		"title":       meta.Title,
		"quality":     quality,
	}).Info("Download queued")

	go m.run(id, url, quality)

	return id, nil
}

// run executes the pipeline for a single download. It is the only writer of
// status transitions for its id, and tolerates the row disappearing under a
// concurrent delete. Failures are captured into the row, never raised.
func (m *Manager) run(id int64, url, quality string) {
	ctx := context.Background()

	ok, err := m.store.MarkProcessing(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("download_id", id).Error("Failed to mark download processing")
		return
	}
	if !ok {
		logrus.WithField("download_id", id).Warn("Download no longer pending; skipping")
		return
	}

	if m.mets != nil {
		m.mets.DownloadsInFlight.Inc()
		defer m.mets.DownloadsInFlight.Dec()
	}

	start := time.Now()
	result, err := m.pipe.FetchAndEncode(ctx, url, quality, id)
	if err != nil {
		if m.mets != nil {
			m.mets.DownloadsFailed.Inc()
		}
		logrus.WithError(err).WithField("download_id", id).Warn("Download failed")

		if _, markErr := m.store.MarkFailed(ctx, id, err.Error()); markErr != nil {
			logrus.WithError(markErr).WithField("download_id", id).Error("Failed to record download failure")
		}
		return
	}

	ok, err = m.store.MarkCompleted(ctx, id, result.ArtifactPath, result.SizeBytes, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("download_id", id).Error("Failed to record download completion")
		return
	}
	if !ok {
		// The row was deleted while we were processing; the artifact
		// is now orphaned, so reclaim it immediately.
		if removeErr := os.Remove(result.ArtifactPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logrus.WithError(removeErr).WithField("file", result.ArtifactPath).Warn("Failed to remove orphaned artifact")
		}
		logrus.WithField("download_id", id).Warn("Download deleted during processing")
		return
	}

	if m.mets != nil {
		m.mets.DownloadsCompleted.Inc()
		m.mets.DownloadDuration.Observe(time.Since(start).Seconds())
	}

	logrus.WithFields(logrus.Fields{
		"download_id": id,
		"file_size":   result.SizeBytes,
		"duration":    time.Since(start).Round(time.Millisecond).String(),
	}).Info("Download completed")

	if m.mirror != nil {
		if uploadErr := m.mirror.Upload(ctx, result.ArtifactPath); uploadErr != nil {
			logrus.WithError(uploadErr).WithField("download_id", id).Warn("Failed to mirror artifact to archive")
		}
	}
}

// progressFor maps a status to its coarse progress percentage. It is purely
// derived; nothing stores it.
func progressFor(status types.DownloadStatus) int {
	switch status {
	case types.StatusProcessing:
		return 50
	case types.StatusCompleted:
		return 100
	default:
		return 0
	}
}

// GetStatus returns the polling view of a download
func (m *Manager) GetStatus(ctx context.Context, id int64) (*types.StatusResponse, error) {
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return &types.StatusResponse{
		Success:            true,
		DownloadID:         d.ID,
		Title:              d.Title,
		Quality:            d.Quality,
		Status:             d.Status,
		ProgressPercentage: progressFor(d.Status),
		ErrorMessage:       d.ErrorMessage,
		FileSize:           d.FileSize,
		CreatedAt:          d.CreatedAt,
		CompletedAt:        d.CompletedAt,
	}, nil
}

// GetDownload returns the raw download row
func (m *Manager) GetDownload(ctx context.Context, id int64) (*types.Download, error) {
	return m.store.Get(ctx, id)
}

// Delete removes a download row and its artifact file if present.
// An artifact already gone is not an error. There is no cancellation: a
// delete during processing only removes the row; the background task
// detects the missing row when it tries to write.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if d.FilePath != "" {
		if removeErr := os.Remove(d.FilePath); removeErr != nil && !os.IsNotExist(removeErr) {
			logrus.WithError(removeErr).WithField("file", d.FilePath).Warn("Failed to delete artifact file")
		}
	}

	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	logrus.WithField("download_id", id).Info("Download deleted")
	return nil
}

// ListHistory returns a page of downloads plus the total matching count
func (m *Manager) ListHistory(ctx context.Context, status string, limit, offset int) ([]*types.Download, int, error) {
	if status != "" && !types.ValidStatus(status) {
		return nil, 0, &ValidationError{
			Message: "Invalid status. Allowed: pending, processing, completed, failed",
		}
	}
	return m.store.List(ctx, status, limit, offset)
}

// RecentCompleted returns the ten most recently completed downloads
func (m *Manager) RecentCompleted(ctx context.Context) ([]*types.Download, error) {
	return m.store.RecentCompleted(ctx, 10)
}

// Stats returns aggregate download counts and completed byte volume
func (m *Manager) Stats(ctx context.Context) (*types.Stats, error) {
	return m.store.Stats(ctx)
}

// ClearCompleted deletes completed rows, optionally only those older than
// the given number of days. Artifact files are left for the sweeper.
func (m *Manager) ClearCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	return m.store.ClearCompleted(ctx, olderThanDays)
}
