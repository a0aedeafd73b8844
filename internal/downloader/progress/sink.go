package progress

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/job"
	"github.com/italolelis/video_downloader/internal/logctx"
)

// FallbackPercent is reported when the extractor does not know the total size
// of the stream. It is an estimate, not a measurement.
const FallbackPercent = 50.0

const defaultErrorDetail = "unknown download error"

// Updater is the part of the job registry the sink mutates.
type Updater interface {
	Update(id string, fn func(j *job.Job, now time.Time) error) (job.Job, error)
}

// Sink turns extractor progress events into job updates for a single job.
// Handle never panics and never returns an error to the extractor.
type Sink struct {
	ctx     context.Context
	updater Updater
	jobID   string
}

func NewSink(ctx context.Context, updater Updater, jobID string) *Sink {
	return &Sink{ctx: ctx, updater: updater, jobID: jobID}
}

// Handle applies ev to the job. It matches extractor.ProgressFunc.
func (s *Sink) Handle(ev extractor.ProgressEvent) {
	logger := logctx.LoggerFromContext(s.ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(s.ctx, "progress sink panic", "panic", r, "event", ev.Kind)
		}
	}()

	var (
		apply func(j *job.Job, now time.Time) error
		attrs []any
	)

	switch ev.Kind {
	case extractor.EventDownloading:
		percent := Percent(ev)
		filename := DisplayFilename(ev.Filename)

		apply = func(j *job.Job, _ time.Time) error {
			return j.ReportProgress(percent, filename)
		}

		attrs = append(attrs, "percent", humanize.FtoaWithDigits(percent, 1), "downloaded", humanize.Bytes(nonNegative(ev.DownloadedBytes)))
		if total := totalBytes(ev); total > 0 {
			attrs = append(attrs, "total", humanize.Bytes(uint64(total)))
		}
	case extractor.EventFinished:
		filename := DisplayFilename(ev.Filename)

		apply = func(j *job.Job, _ time.Time) error {
			return j.MarkDownloaded(filename)
		}

		attrs = append(attrs, "file_name", filename)
	case extractor.EventError:
		detail := ev.Err
		if detail == "" {
			detail = defaultErrorDetail
		}

		apply = func(j *job.Job, now time.Time) error {
			return j.Fail(detail, now)
		}

		attrs = append(attrs, "err", detail)
	default:
		logger.DebugContext(s.ctx, "ignoring progress event", "event", ev.Kind)

		return
	}

	if _, err := s.updater.Update(s.jobID, apply); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return
		}

		logger.WarnContext(s.ctx, "failed to apply progress event", "event", ev.Kind, "err", err)

		return
	}

	logger.DebugContext(s.ctx, "progress event applied", append([]any{"event", ev.Kind}, attrs...)...)
}

// Percent computes the completion percentage of a downloading event, falling
// back to FallbackPercent when no total size is known.
func Percent(ev extractor.ProgressEvent) float64 {
	total := totalBytes(ev)
	if total <= 0 {
		return FallbackPercent
	}

	return float64(ev.DownloadedBytes) / float64(total) * 100
}

// DisplayFilename returns the last path segment of name.
func DisplayFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	return name
}

func totalBytes(ev extractor.ProgressEvent) int64 {
	if ev.TotalBytes > 0 {
		return ev.TotalBytes
	}

	return ev.TotalBytesEstimate
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}

	return uint64(n)
}
