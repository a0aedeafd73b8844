package storage

import (
	"context"
	"time"
)

// DownloadRecord is a file produced by a successful download job.
type DownloadRecord struct {
	JobID        string
	SourceURL    string
	FilePath     string
	DownloadedAt time.Time
}

type DownloadReadRepository interface {
	GetDownloads(ctx context.Context) ([]DownloadRecord, error)
}

type DownloadWriteRepository interface {
	TrackDownload(ctx context.Context, rec DownloadRecord) error
	DeleteDownload(ctx context.Context, jobID string) error
}

type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}
