package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/video_downloader/internal/logctx"
	"github.com/italolelis/video_downloader/internal/storage"
)

// DeleteExpiredFiles deletes downloaded files older than keepDuration and
// forgets their records. Records whose file is already gone are forgotten too.
func DeleteExpiredFiles(ctx context.Context, repo storage.DownloadRepository, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := repo.GetDownloads(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tracked downloads: %w", err)
	}

	for _, rec := range records {
		filePath := filepath.Join(dir, filepath.Base(rec.FilePath))

		info, err := os.Stat(filePath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Error("failed to stat file", "file", filePath, "err", err)

				return err
			}

			info = nil
		}

		downloadedAt := rec.DownloadedAt
		if downloadedAt.IsZero() && info != nil {
			logger.Warn("download time unknown, using file mod time", "file", filePath)

			downloadedAt = info.ModTime()
		}

		if now.Sub(downloadedAt) <= keepDuration {
			continue
		}

		if info != nil {
			if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("failed to delete expired file", "file", filePath, "err", err)

				return err
			}

			logger.Info("deleted expired file", "file", filePath, "job_id", rec.JobID)
		}

		if err := repo.DeleteDownload(ctx, rec.JobID); err != nil {
			return fmt.Errorf("failed to forget download %s: %w", rec.JobID, err)
		}
	}

	return nil
}

// Evicter removes finished jobs from memory.
type Evicter interface {
	Evict(cutoff time.Time) int
}

// EvictFinishedJobs drops jobs that reached a terminal state more than
// retention ago and returns how many were removed.
func EvictFinishedJobs(ctx context.Context, e Evicter, retention time.Duration) int {
	removed := e.Evict(time.Now().Add(-retention))
	if removed > 0 {
		logctx.LoggerFromContext(ctx).Info("evicted finished jobs", "count", removed, "retention", retention.String())
	}

	return removed
}
