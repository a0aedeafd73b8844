package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/video_downloader/internal/storage"
)

// DownloadWriteRepository implements storage.DownloadWriteRepository
// and stores download records in SQLite.
type DownloadWriteRepository struct {
	db *sql.DB
}

func NewDownloadWriteRepository(db *sql.DB) *DownloadWriteRepository {
	return &DownloadWriteRepository{db: db}
}

func (r *DownloadWriteRepository) TrackDownload(ctx context.Context, rec storage.DownloadRecord) error {
	downloadedAt := rec.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO downloads (job_id, source_url, file_path, downloaded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET file_path = excluded.file_path, downloaded_at = excluded.downloaded_at`,
		rec.JobID, rec.SourceURL, rec.FilePath, downloadedAt.UTC().Format(time.RFC3339Nano),
	)

	return err
}

// DeleteDownload forgets the record of a job's file.
func (r *DownloadWriteRepository) DeleteDownload(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE job_id = ?`, jobID)

	return err
}
