package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/video_downloader/internal/storage"
)

type DownloadReadRepository struct {
	db *sql.DB
}

func NewDownloadReadRepository(dbConn *sql.DB) *DownloadReadRepository {
	return &DownloadReadRepository{db: dbConn}
}

func (r *DownloadReadRepository) GetDownloads(ctx context.Context) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT job_id, source_url, file_path, downloaded_at FROM downloads ORDER BY downloaded_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		var (
			record       storage.DownloadRecord
			sourceURL    sql.NullString
			downloadedAt string
		)

		if err := rows.Scan(&record.JobID, &sourceURL, &record.FilePath, &downloadedAt); err != nil {
			return nil, err
		}

		record.SourceURL = sourceURL.String

		if t, err := time.Parse(time.RFC3339Nano, downloadedAt); err == nil {
			record.DownloadedAt = t
		}

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}
