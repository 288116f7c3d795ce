package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/retry"
	"github.com/audiofetch/audiofetch/pkg/types"
)

// ErrNotFound is returned when no download matches the requested id
var ErrNotFound = errors.New("download not found")

// Store provides SQLite-based download persistence
type Store struct {
	db       *sql.DB
	dbPath   string
	writeCfg retry.Config
	mu       sync.RWMutex
}

// NewStore initializes a new SQLite store
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool. In-memory databases exist per connection,
	// so they must be pinned to a single one.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
		writeCfg: retry.Config{
			MaxAttempts: 3,
			Delays:      []time.Duration{50 * time.Millisecond, 200 * time.Millisecond},
		},
	}

	if err := store.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database connection after init error")
		}
		return nil, err
	}

	logrus.WithField("db_path", dbPath).Info("Initialized download storage database")
	return store, nil
}

// initSchema applies all pending migrations
func (s *Store) initSchema() error {
	currentVersion := 0
	row := s.db.QueryRowContext(context.Background(), "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	_ = row.Scan(&currentVersion) // Ignore error - schema_version table may not exist yet

	for _, migration := range Migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.WithField("version", migration.Version).Info("Applying schema migration")

		if _, err := s.db.ExecContext(context.Background(), migration.SQL); err != nil {
			return fmt.Errorf("failed to apply migration v%d: %w", migration.Version, err)
		}

		if _, err := s.db.ExecContext(context.Background(),
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			migration.Version,
			time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", migration.Version, err)
		}

		currentVersion = migration.Version
	}

	return nil
}

// isTransient reports whether err is a retryable SQLite contention error
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// exec runs a write statement, retrying transient busy/locked errors
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var permanent error
	err := retry.WithRetry(ctx, s.writeCfg, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr == nil {
			result = res
			return nil
		}
		if isTransient(execErr) {
			return execErr
		}
		permanent = execErr
		return nil
	})
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Insert persists a new pending download and returns its assigned id
func (s *Store) Insert(ctx context.Context, sourceURL, title, uploader string, duration int64, quality string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.exec(ctx,
		`INSERT INTO downloads (source_url, title, uploader, duration, quality, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sourceURL,
		title,
		uploader,
		duration,
		quality,
		string(types.StatusPending),
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert download: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted id: %w", err)
	}

	return id, nil
}

const downloadColumns = `id, source_url, title, uploader, duration, quality, status,
	        file_path, file_size, error_message, created_at, completed_at`

// scanDownload scans a single row into a Download
func scanDownload(scan func(dest ...interface{}) error) (*types.Download, error) {
	d := &types.Download{}
	var uploader, filePath, errorMessage sql.NullString
	var duration, fileSize sql.NullInt64
	var createdAtUnix int64
	var completedAtUnix *int64

	if err := scan(
		&d.ID,
		&d.SourceURL,
		&d.Title,
		&uploader,
		&duration,
		&d.Quality,
		&d.Status,
		&filePath,
		&fileSize,
		&errorMessage,
		&createdAtUnix,
		&completedAtUnix,
	); err != nil {
		return nil, err
	}

	d.Uploader = uploader.String
	d.Duration = duration.Int64
	d.FilePath = filePath.String
	d.FileSize = fileSize.Int64
	d.ErrorMessage = errorMessage.String
	d.CreatedAt = time.Unix(createdAtUnix, 0)
	if completedAtUnix != nil {
		t := time.Unix(*completedAtUnix, 0)
		d.CompletedAt = &t
	}

	return d, nil
}

// Get retrieves a download by id
func (s *Store) Get(ctx context.Context, id int64) (*types.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+downloadColumns+" FROM downloads WHERE id = ?", id)

	d, err := scanDownload(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query download: %w", err)
	}

	return d, nil
}

// MarkProcessing transitions a pending download to processing.
// Returns false when the row is absent or no longer pending.
func (s *Store) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.exec(ctx,
		"UPDATE downloads SET status = ? WHERE id = ? AND status = ?",
		string(types.StatusProcessing), id, string(types.StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark download processing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted transitions a processing download to completed, recording
// the artifact path, its size and the completion time.
func (s *Store) MarkCompleted(ctx context.Context, id int64, filePath string, fileSize int64, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.exec(ctx,
		`UPDATE downloads SET status = ?, file_path = ?, file_size = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(types.StatusCompleted), filePath, fileSize, completedAt.Unix(),
		id, string(types.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to mark download completed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed transitions a processing download to failed with an error message
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message == "" {
		message = "unknown error occurred"
	}

	result, err := s.exec(ctx,
		"UPDATE downloads SET status = ?, error_message = ? WHERE id = ? AND status = ?",
		string(types.StatusFailed), message, id, string(types.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to mark download failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// List retrieves downloads ordered newest-created first, with an optional
// status filter. Returns the page plus the total matching count.
func (s *Store) List(ctx context.Context, status string, limit, offset int) ([]*types.Download, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM downloads"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count downloads: %w", err)
	}

	query := "SELECT " + downloadColumns + " FROM downloads" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var downloads []*types.Download
	for rows.Next() {
		d, err := scanDownload(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating downloads: %w", err)
	}

	return downloads, total, nil
}

// RecentCompleted returns the n most recently completed downloads
func (s *Store) RecentCompleted(ctx context.Context, n int) ([]*types.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+downloadColumns+" FROM downloads WHERE status = ? ORDER BY completed_at DESC, id DESC LIMIT ?",
		string(types.StatusCompleted), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent downloads: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var downloads []*types.Download
	for rows.Next() {
		d, err := scanDownload(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating downloads: %w", err)
	}

	return downloads, nil
}

// Delete removes a download row. Returns ErrNotFound when no row matched.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.exec(ctx, "DELETE FROM downloads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Stats aggregates per-status counts and the summed size of completed downloads
func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &types.Stats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status = 'completed'), 0),
		        COALESCE(SUM(status = 'failed'), 0),
		        COALESCE(SUM(status = 'pending'), 0),
		        COALESCE(SUM(status = 'processing'), 0),
		        COALESCE(SUM(CASE WHEN status = 'completed' THEN file_size ELSE 0 END), 0)
		 FROM downloads`,
	).Scan(
		&stats.TotalDownloads,
		&stats.CompletedDownloads,
		&stats.FailedDownloads,
		&stats.PendingDownloads,
		&stats.ProcessingDownloads,
		&stats.TotalDataProcessed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	return stats, nil
}

// ExpiredCompleted returns completed downloads whose completion time is
// older than the cutoff
func (s *Store) ExpiredCompleted(ctx context.Context, cutoff time.Time) ([]*types.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+downloadColumns+" FROM downloads WHERE status = ? AND completed_at < ?",
		string(types.StatusCompleted), cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired downloads: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var downloads []*types.Download
	for rows.Next() {
		d, err := scanDownload(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating downloads: %w", err)
	}

	return downloads, nil
}

// CountFailed returns the number of failed download rows
func (s *Store) CountFailed(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM downloads WHERE status = ?",
		string(types.StatusFailed)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed downloads: %w", err)
	}
	return count, nil
}

// ClearCompleted deletes completed rows, optionally only those created more
// than olderThanDays ago. Artifact files are intentionally left on disk;
// the retention sweeper reclaims them.
func (s *Store) ClearCompleted(ctx context.Context, olderThanDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM downloads WHERE status = ?"
	args := []interface{}{string(types.StatusCompleted)}

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()
		query += " AND created_at < ?"
		args = append(args, cutoff)
	}

	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed downloads: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if deleted > 0 {
		logrus.WithField("deleted_count", deleted).Debug("Cleared completed download records")
	}

	return deleted, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}
	return nil
}
