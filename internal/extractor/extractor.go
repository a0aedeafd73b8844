package extractor

import (
	"context"
	"fmt"
)

type EventKind string

const (
	EventDownloading EventKind = "downloading"
	EventFinished    EventKind = "finished"
	EventError       EventKind = "error"
)

// ProgressEvent is a raw notification emitted while a download runs.
type ProgressEvent struct {
	Kind            EventKind
	DownloadedBytes int64
	TotalBytes      int64
	// TotalBytesEstimate is used when the exact total is unknown.
	TotalBytesEstimate int64
	Filename           string
	Err                string
}

// ProgressFunc receives events synchronously from inside Download.
type ProgressFunc func(ev ProgressEvent)

// Options configures a single download.
type Options struct {
	Format         string
	OutputTemplate string
	ExtractAudio   bool
	AudioCodec     string
	AudioQuality   string
	TranscoderPath string
}

type VideoInfo struct {
	Title           string  `json:"title"`
	Uploader        string  `json:"uploader"`
	DurationSeconds float64 `json:"durationSeconds"`
	ViewCount       int64   `json:"viewCount"`
	UploadDate      string  `json:"uploadDate"`
	Description     string  `json:"description"`
	ThumbnailURL    string  `json:"thumbnailUrl"`
	WebpageURL      string  `json:"webpageUrl"`
}

type Extractor interface {
	Info(ctx context.Context, url string) (*VideoInfo, error)
	Download(ctx context.Context, url string, opts Options, progress ProgressFunc) error
	Version() string
}

// ExtractionError wraps failures reported by the extractor.
type ExtractionError struct {
	Operation string // "info" or "download"
	URL       string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed during %s: %v", e.Operation, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
