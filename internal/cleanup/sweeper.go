// Package cleanup reclaims disk space and database rows for expired downloads.
package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/metrics"
	"github.com/audiofetch/audiofetch/internal/storage"
	"github.com/audiofetch/audiofetch/pkg/types"
)

// Summary reports what a single sweep touched
type Summary struct {
	FilesDeleted     int `json:"files_deleted"`
	DBRecordsDeleted int `json:"db_records_deleted"`
	Errors           int `json:"errors"`
}

// Sweeper periodically deletes expired artifacts and their records.
// Individual file or row failures are counted, never propagated.
type Sweeper struct {
	dir       string
	retention time.Duration
	store     *storage.Store
	mets      *metrics.Metrics
	now       func() time.Time
}

// NewSweeper creates a sweeper over the artifact directory and store
func NewSweeper(dir string, retention time.Duration, store *storage.Store) *Sweeper {
	return &Sweeper{
		dir:       dir,
		retention: retention,
		store:     store,
		now:       time.Now,
	}
}

// WithMetrics attaches Prometheus collectors updated after each sweep
func (s *Sweeper) WithMetrics(m *metrics.Metrics) *Sweeper {
	s.mets = m
	return s
}

// Sweep performs one scan-and-delete pass. Orphaned files in the artifact
// directory are removed by modification time regardless of any database
// record; expired completed rows are removed along with their artifacts.
func (s *Sweeper) Sweep(ctx context.Context) Summary {
	summary := Summary{}
	cutoff := s.now().Add(-s.retention)

	// Pass 1: the artifact directory, independent of the database
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Failed to read artifact directory")
			summary.Errors++
		}
	} else {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(s.dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				logrus.WithError(err).WithField("file", path).Warn("Failed to stat file")
				summary.Errors++
				continue
			}
			if info.ModTime().Before(cutoff) {
				deleted, failed := removeFile(path)
				if deleted {
					summary.FilesDeleted++
				}
				if failed {
					summary.Errors++
				}
			}
		}
	}

	// Pass 2: expired completed rows and their artifacts
	expired, err := s.store.ExpiredCompleted(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Warn("Failed to query expired downloads")
		summary.Errors++
		return summary
	}

	for _, d := range expired {
		// A file already removed by pass 1 or a concurrent delete is fine
		if d.FilePath != "" {
			deleted, failed := removeFile(d.FilePath)
			if deleted {
				summary.FilesDeleted++
			}
			if failed {
				summary.Errors++
			}
		}

		if err := s.store.Delete(ctx, d.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logrus.WithError(err).WithField("download_id", d.ID).Warn("Failed to delete expired record")
			summary.Errors++
			continue
		}
		summary.DBRecordsDeleted++
	}

	return summary
}

// Status reports what the next sweep would touch, for health reporting
func (s *Sweeper) Status(ctx context.Context) *types.CleanupStatus {
	status := &types.CleanupStatus{}
	cutoff := s.now().Add(-s.retention)

	if entries, err := os.ReadDir(s.dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				status.OldFilesCount++
				status.OldFilesSize += info.Size()
			}
		}
	}

	if count, err := s.store.CountFailed(ctx); err == nil {
		status.FailedRecordsCount = count
	}

	return status
}

// Start runs one sweep immediately, then sweeps on the given interval
// until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.logSweep(s.Sweep(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logSweep(s.Sweep(ctx))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) logSweep(summary Summary) {
	if s.mets != nil {
		s.mets.SweepFilesDeleted.Add(float64(summary.FilesDeleted))
		s.mets.SweepRecordsDeleted.Add(float64(summary.DBRecordsDeleted))
		s.mets.SweepErrors.Add(float64(summary.Errors))
	}
	logrus.WithFields(logrus.Fields{
		"files_deleted":      summary.FilesDeleted,
		"db_records_deleted": summary.DBRecordsDeleted,
		"errors":             summary.Errors,
	}).Info("Retention sweep completed")
}

// removeFile unlinks a file, treating "already gone" as success
func removeFile(path string) (deleted, failed bool) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, false
	case os.IsNotExist(err):
		return false, false
	default:
		logrus.WithError(err).WithField("file", path).Warn("Failed to delete file")
		return false, true
	}
}
