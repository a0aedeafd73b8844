package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/video_downloader/internal/storage"
	"github.com/italolelis/video_downloader/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *InstrumentedDownloadRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	return NewInstrumentedDownloadRepository(db, tel)
}

func TestDownloadRepository_TrackAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.TrackDownload(ctx, storage.DownloadRecord{
		JobID:        "job-1",
		SourceURL:    "https://example.com/v1",
		FilePath:     "clip.mp4",
		DownloadedAt: at,
	}))
	require.NoError(t, repo.TrackDownload(ctx, storage.DownloadRecord{
		JobID:        "job-2",
		FilePath:     "song.mp3",
		DownloadedAt: at.Add(time.Hour),
	}))

	records, err := repo.GetDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "job-1", records[0].JobID)
	assert.Equal(t, "https://example.com/v1", records[0].SourceURL)
	assert.Equal(t, "clip.mp4", records[0].FilePath)
	assert.True(t, at.Equal(records[0].DownloadedAt))
	assert.Equal(t, "", records[1].SourceURL)
}

func TestDownloadRepository_TrackIsIdempotentPerJob(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackDownload(ctx, storage.DownloadRecord{JobID: "job-1", FilePath: "a.mp4"}))
	require.NoError(t, repo.TrackDownload(ctx, storage.DownloadRecord{JobID: "job-1", FilePath: "b.mp4"}))

	records, err := repo.GetDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b.mp4", records[0].FilePath)
	assert.False(t, records[0].DownloadedAt.IsZero())
}

func TestDownloadRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.TrackDownload(ctx, storage.DownloadRecord{JobID: "job-1", FilePath: "a.mp4"}))
	require.NoError(t, repo.DeleteDownload(ctx, "job-1"))
	require.NoError(t, repo.DeleteDownload(ctx, "never-tracked"))

	records, err := repo.GetDownloads(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
