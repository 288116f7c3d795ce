package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiofetch/audiofetch/internal/storage"
)

func newTestSweeper(t *testing.T, retention time.Duration) (*Sweeper, *storage.Store, string) {
	t.Helper()
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	dir := t.TempDir()
	return NewSweeper(dir, retention, store), store, dir
}

func writeArtifact(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	if age > 0 {
		old := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, old, old))
	}
	return path
}

func completedDownload(t *testing.T, store *storage.Store, path string, age time.Duration) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.Insert(ctx, "https://youtu.be/abc", "Old Song", "Channel", 60, "192")
	require.NoError(t, err)
	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkCompleted(ctx, id, path, 5, time.Now().Add(-age))
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func TestSweep_RemovesExpiredRecordAndArtifact(t *testing.T) {
	retention := 7 * 24 * time.Hour
	sweeper, store, dir := newTestSweeper(t, retention)
	ctx := context.Background()

	oldPath := writeArtifact(t, dir, "1-old.mp3", 8*24*time.Hour)
	oldID := completedDownload(t, store, oldPath, 8*24*time.Hour)

	freshPath := writeArtifact(t, dir, "2-fresh.mp3", 0)
	freshID := completedDownload(t, store, freshPath, 24*time.Hour)

	summary := sweeper.Sweep(ctx)

	assert.Equal(t, 1, summary.FilesDeleted)
	assert.Equal(t, 1, summary.DBRecordsDeleted)
	assert.Equal(t, 0, summary.Errors)

	_, err := store.Get(ctx, oldID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoFileExists(t, oldPath)

	_, err = store.Get(ctx, freshID)
	assert.NoError(t, err)
	assert.FileExists(t, freshPath)
}

func TestSweep_RemovesOrphanedFiles(t *testing.T) {
	sweeper, _, dir := newTestSweeper(t, 7*24*time.Hour)

	// A stale file with no database record at all
	orphan := writeArtifact(t, dir, "orphan.mp3", 30*24*time.Hour)

	summary := sweeper.Sweep(context.Background())

	assert.Equal(t, 1, summary.FilesDeleted)
	assert.Equal(t, 0, summary.DBRecordsDeleted)
	assert.NoFileExists(t, orphan)
}

func TestSweep_ArtifactAlreadyGone(t *testing.T) {
	sweeper, store, dir := newTestSweeper(t, 7*24*time.Hour)
	ctx := context.Background()

	// Row references a file that no longer exists
	missing := filepath.Join(dir, "1-vanished.mp3")
	id := completedDownload(t, store, missing, 8*24*time.Hour)

	summary := sweeper.Sweep(ctx)

	assert.Equal(t, 0, summary.FilesDeleted)
	assert.Equal(t, 1, summary.DBRecordsDeleted)
	assert.Equal(t, 0, summary.Errors)

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweep_MissingDirectory(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	sweeper := NewSweeper(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour, store)
	summary := sweeper.Sweep(context.Background())

	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, 0, summary.FilesDeleted)
}

func TestStatus(t *testing.T) {
	sweeper, store, dir := newTestSweeper(t, 7*24*time.Hour)
	ctx := context.Background()

	writeArtifact(t, dir, "stale.mp3", 10*24*time.Hour)
	writeArtifact(t, dir, "fresh.mp3", 0)

	id, err := store.Insert(ctx, "https://youtu.be/abc", "Broken", "Channel", 60, "192")
	require.NoError(t, err)
	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkFailed(ctx, id, "boom")
	require.NoError(t, err)
	require.True(t, ok)

	status := sweeper.Status(ctx)
	assert.Equal(t, 1, status.OldFilesCount)
	assert.Equal(t, int64(5), status.OldFilesSize)
	assert.Equal(t, 1, status.FailedRecordsCount)
}
