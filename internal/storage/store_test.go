package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiofetch/audiofetch/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func insertPending(t *testing.T, store *Store, url string) int64 {
	t.Helper()
	id, err := store.Insert(context.Background(), url, "Test Video", "Test Channel", 180, "192")
	require.NoError(t, err)
	return id
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "https://youtu.be/abc123", "My Song", "Uploader", 240, "256")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	d, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "https://youtu.be/abc123", d.SourceURL)
	assert.Equal(t, "My Song", d.Title)
	assert.Equal(t, "Uploader", d.Uploader)
	assert.Equal(t, int64(240), d.Duration)
	assert.Equal(t, "256", d.Quality)
	assert.Equal(t, types.StatusPending, d.Status)
	assert.Empty(t, d.FilePath)
	assert.Empty(t, d.ErrorMessage)
	assert.Nil(t, d.CompletedAt)
}

func TestInsert_MonotonicIDs(t *testing.T) {
	store := newTestStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		id := insertPending(t, store, "https://youtu.be/abc")
		assert.Greater(t, id, last)
		last = id
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := insertPending(t, store, "https://youtu.be/abc")

	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second transition attempt must not fire; the job is no longer pending
	ok, err = store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	completedAt := time.Now()
	ok, err = store.MarkCompleted(ctx, id, "/tmp/uploads/1-song.mp3", 4096, completedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, d.Status)
	assert.Equal(t, "/tmp/uploads/1-song.mp3", d.FilePath)
	assert.Equal(t, int64(4096), d.FileSize)
	require.NotNil(t, d.CompletedAt)
	assert.Equal(t, completedAt.Unix(), d.CompletedAt.Unix())

	// Terminal states never regress
	ok, err = store.MarkFailed(ctx, id, "boom")
	require.NoError(t, err)
	assert.False(t, ok)

	d, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, d.Status)
	assert.Empty(t, d.ErrorMessage)
}

func TestMarkFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := insertPending(t, store, "https://youtu.be/abc")

	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.MarkFailed(ctx, id, "video unavailable")
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, d.Status)
	assert.Equal(t, "video unavailable", d.ErrorMessage)
	assert.Nil(t, d.CompletedAt)
	assert.Empty(t, d.FilePath)
}

func TestMarkTransitions_MissingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Writes against a deleted row must report false, not error
	ok, err := store.MarkProcessing(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkCompleted(ctx, 12345, "/tmp/x.mp3", 1, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.MarkFailed(ctx, 12345, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func completeJob(t *testing.T, store *Store, id int64, path string, size int64, completedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkCompleted(ctx, id, path, size, completedAt)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestList_FilterAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var completedIDs []int64
	for i := 0; i < 3; i++ {
		id := insertPending(t, store, "https://youtu.be/done")
		completeJob(t, store, id, "/tmp/x.mp3", 100, time.Now())
		completedIDs = append(completedIDs, id)
	}
	insertPending(t, store, "https://youtu.be/waiting")

	rows, total, err := store.List(ctx, string(types.StatusCompleted), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 2)
	for _, d := range rows {
		assert.Equal(t, types.StatusCompleted, d.Status)
	}
	// Newest first
	assert.Equal(t, completedIDs[2], rows[0].ID)
	assert.Equal(t, completedIDs[1], rows[1].ID)

	rows, total, err = store.List(ctx, string(types.StatusCompleted), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 1)
	assert.Equal(t, completedIDs[0], rows[0].ID)

	rows, total, err = store.List(ctx, "", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, rows, 4)
}

func TestRecentCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []int64
	for i := 0; i < 4; i++ {
		id := insertPending(t, store, "https://youtu.be/abc")
		completeJob(t, store, id, "/tmp/x.mp3", 10, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, id)
	}
	insertPending(t, store, "https://youtu.be/pending")

	recent, err := store.RecentCompleted(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[3], recent[0].ID)
	assert.Equal(t, ids[2], recent[1].ID)
	assert.Equal(t, ids[1], recent[2].ID)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := insertPending(t, store, "https://youtu.be/abc")

	require.NoError(t, store.Delete(ctx, id))

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, id), ErrNotFound)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1 := insertPending(t, store, "https://youtu.be/a")
	completeJob(t, store, id1, "/tmp/a.mp3", 1000, time.Now())

	id2 := insertPending(t, store, "https://youtu.be/b")
	completeJob(t, store, id2, "/tmp/b.mp3", 500, time.Now())

	id3 := insertPending(t, store, "https://youtu.be/c")
	ok, err := store.MarkProcessing(ctx, id3)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkFailed(ctx, id3, "boom")
	require.NoError(t, err)
	require.True(t, ok)

	id4 := insertPending(t, store, "https://youtu.be/d")
	ok, err = store.MarkProcessing(ctx, id4)
	require.NoError(t, err)
	require.True(t, ok)

	insertPending(t, store, "https://youtu.be/e")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalDownloads)
	assert.Equal(t, int64(2), stats.CompletedDownloads)
	assert.Equal(t, int64(1), stats.FailedDownloads)
	assert.Equal(t, int64(1), stats.PendingDownloads)
	assert.Equal(t, int64(1), stats.ProcessingDownloads)
	assert.Equal(t, int64(1500), stats.TotalDataProcessed)
}

func TestExpiredCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	oldID := insertPending(t, store, "https://youtu.be/old")
	completeJob(t, store, oldID, "/tmp/old.mp3", 10, now.Add(-8*24*time.Hour))

	freshID := insertPending(t, store, "https://youtu.be/fresh")
	completeJob(t, store, freshID, "/tmp/fresh.mp3", 10, now.Add(-24*time.Hour))

	expired, err := store.ExpiredCompleted(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, oldID, expired[0].ID)
}

func TestClearCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id1 := insertPending(t, store, "https://youtu.be/a")
	completeJob(t, store, id1, "/tmp/a.mp3", 10, time.Now())

	pendingID := insertPending(t, store, "https://youtu.be/b")

	cleared, err := store.ClearCompleted(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	_, err = store.Get(ctx, id1)
	assert.ErrorIs(t, err, ErrNotFound)

	// Non-completed rows are untouched
	_, err = store.Get(ctx, pendingID)
	assert.NoError(t, err)
}

func TestClearCompleted_OlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertPending(t, store, "https://youtu.be/recent")
	completeJob(t, store, id, "/tmp/a.mp3", 10, time.Now())

	// Created just now, so a 30-day filter must not remove it
	cleared, err := store.ClearCompleted(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleared)

	_, err = store.Get(ctx, id)
	assert.NoError(t, err)
}

func TestCountFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := insertPending(t, store, "https://youtu.be/a")
	ok, err := store.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkFailed(ctx, id, "boom")
	require.NoError(t, err)
	require.True(t, ok)

	insertPending(t, store, "https://youtu.be/b")

	count, err := store.CountFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
