package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/italolelis/video_downloader/internal/downloader/progress"
	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/formats"
	"github.com/italolelis/video_downloader/internal/job"
	"github.com/italolelis/video_downloader/internal/logctx"
	"github.com/italolelis/video_downloader/internal/notifier"
	"github.com/italolelis/video_downloader/internal/storage"
	"github.com/italolelis/video_downloader/internal/telemetry"
	"github.com/italolelis/video_downloader/internal/transcoder"
	"golang.org/x/sync/singleflight"
)

const (
	dirPerm = 0755

	// DefaultQuality is the quality label used when a request names none.
	DefaultQuality = "Best Quality"
	// GenericResultFilename is reported for successful jobs whose extractor
	// never announced a file name.
	GenericResultFilename = "Video downloaded successfully"

	audioFormatSelector = "bestaudio/best"
	audioCodec          = "mp3"
	audioQuality        = "192"
	outputTemplate      = "%(title)s.%(ext)s"
)

var errAlreadyFinished = errors.New("job already finished")

// Request describes a download asked for by a client.
type Request struct {
	URL      string
	FormatID string
	Quality  string
}

// VideoInfoResult is the answer to a metadata lookup. Degraded is set when the
// extractor failed and Info holds a placeholder.
type VideoInfoResult struct {
	Info     *extractor.VideoInfo
	Formats  []formats.Format
	Degraded bool
}

type Downloader struct {
	registry    *job.Registry
	extractor   extractor.Extractor
	transcoder  *transcoder.Transcoder
	catalog     *formats.Catalog
	downloadDir string

	telemetry *telemetry.Telemetry
	notifier  notifier.Notifier
	ledger    storage.DownloadWriteRepository
	maxTries  uint
	timeout   time.Duration
	baseCtx   context.Context

	wg        sync.WaitGroup
	infoGroup singleflight.Group
}

// Option configures optional Downloader collaborators.
type Option func(*Downloader)

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(d *Downloader) { d.telemetry = t }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(d *Downloader) { d.notifier = n }
}

// WithLedger records every produced file so it can be expired later.
func WithLedger(repo storage.DownloadWriteRepository) Option {
	return func(d *Downloader) { d.ledger = repo }
}

// WithMaxTries retries failed extractor runs with exponential backoff. Values
// below 2 disable retries.
func WithMaxTries(n uint) Option {
	return func(d *Downloader) { d.maxTries = n }
}

// WithTimeout bounds a single job. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) { d.timeout = timeout }
}

// WithBaseContext sets the context download tasks derive from. Cancelling it
// cancels every in-flight download.
func WithBaseContext(ctx context.Context) Option {
	return func(d *Downloader) { d.baseCtx = ctx }
}

func NewDownloader(
	downloadDir string,
	registry *job.Registry,
	ext extractor.Extractor,
	tc *transcoder.Transcoder,
	catalog *formats.Catalog,
	opts ...Option,
) *Downloader {
	if catalog == nil {
		catalog = formats.Default()
	}

	d := &Downloader{
		registry:    registry,
		extractor:   ext,
		transcoder:  tc,
		catalog:     catalog,
		downloadDir: downloadDir,
		maxTries:    1,
		baseCtx:     context.Background(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start validates req, registers a job and launches its download in the
// background. It returns the job id without waiting for the download.
func (d *Downloader) Start(ctx context.Context, req Request) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	url := strings.TrimSpace(req.URL)
	if url == "" {
		d.telemetry.RecordDownloadRequest("invalid")

		return "", &InvalidRequestError{Field: "url", Reason: "is required"}
	}

	formatID := strings.TrimSpace(req.FormatID)
	if formatID == "" {
		formatID = formats.DefaultFormatID
	}

	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = DefaultQuality
	}

	audio := d.catalog.NeedsTranscoding(formatID, quality)
	if audio && !d.transcoder.Available() {
		d.telemetry.RecordDownloadRequest("missing_dependency")

		return "", &DependencyMissingError{Dependency: "ffmpeg", Purpose: "MP3 conversion"}
	}

	j := d.registry.Create(url, formatID, quality)

	d.telemetry.RecordDownloadRequest("accepted")
	logger.InfoContext(ctx, "download accepted", "download_id", j.ID, "url", url, "format", formatID, "quality", quality, "audio", audio)

	taskCtx := logctx.WithLogger(d.baseCtx, logger)
	taskCtx = logctx.WithJobID(taskCtx, j.ID)

	if reqID := logctx.RequestID(ctx); reqID != "" {
		taskCtx = logctx.WithRequestID(taskCtx, reqID)
	}

	d.wg.Add(1)

	go d.run(taskCtx, j, audio)

	return j.ID, nil
}

// Status returns a snapshot of the job with the given id.
func (d *Downloader) Status(id string) (job.Job, error) {
	return d.registry.Get(id)
}

// ActiveDownloads counts jobs that have not reached a terminal state.
func (d *Downloader) ActiveDownloads() int {
	return d.registry.Count(job.StateCreated, job.StateRunning)
}

func (d *Downloader) DownloadDir() string {
	return d.downloadDir
}

func (d *Downloader) ExtractorVersion() string {
	return d.extractor.Version()
}

func (d *Downloader) Transcoder() *transcoder.Transcoder {
	return d.transcoder
}

// Wait blocks until every launched download has finished.
func (d *Downloader) Wait() {
	d.wg.Wait()
}

// VideoInfo looks up metadata for url. Extractor failures are not returned:
// the result carries a placeholder and Degraded is set instead. Concurrent
// lookups of the same url share one extractor call.
func (d *Downloader) VideoInfo(ctx context.Context, url string) (VideoInfoResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return VideoInfoResult{}, &InvalidRequestError{Field: "url", Reason: "is required"}
	}

	logger := logctx.LoggerFromContext(ctx)
	result := VideoInfoResult{Formats: d.catalog.List()}

	v, err, shared := d.infoGroup.Do(url, func() (any, error) {
		info, err := d.extractor.Info(context.WithoutCancel(ctx), url)
		if err == nil && info == nil {
			err = errors.New("extractor returned no video info")
		}

		return info, err
	})
	if err != nil {
		logger.WarnContext(ctx, "video info unavailable, returning placeholder", "url", url, "err", err)

		result.Info = placeholderInfo(url)
		result.Degraded = true

		return result, nil
	}

	info := *v.(*extractor.VideoInfo)
	if info.WebpageURL == "" {
		info.WebpageURL = url
	}

	logger.DebugContext(ctx, "video info resolved", "url", url, "title", info.Title, "shared", shared)

	result.Info = &info

	return result, nil
}

func placeholderInfo(url string) *extractor.VideoInfo {
	return &extractor.VideoInfo{
		Title:       "Unknown video",
		Uploader:    "Unknown",
		Description: "Video details could not be retrieved",
		WebpageURL:  url,
	}
}

func (d *Downloader) run(ctx context.Context, j job.Job, audio bool) {
	defer d.wg.Done()

	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "download task panic", "panic", r)
			d.telemetry.RecordSystemError("downloader", "panic")
			d.fail(ctx, j, fmt.Sprintf("internal error: %v", r))
		}
	}()

	err := d.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		return d.download(ctx, j, audio)
	})
	if err != nil {
		logger.ErrorContext(ctx, "download failed", "url", j.SourceURL, "err", err)

		d.fail(ctx, j, err.Error())

		return
	}

	d.succeed(ctx, j, audio)
}

func (d *Downloader) download(ctx context.Context, j job.Job, audio bool) error {
	if _, err := d.registry.Update(j.ID, func(j *job.Job, now time.Time) error { return j.Start(now) }); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	if err := os.MkdirAll(d.downloadDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	opts := d.options(j.RequestedFormat, audio)
	sink := progress.NewSink(ctx, d.registry, j.ID)

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "starting download", "url", j.SourceURL, "format", opts.Format, "output", opts.OutputTemplate)

	attempt := func() (struct{}, error) {
		err := d.extractor.Download(ctx, j.SourceURL, opts, sink.Handle)
		if err == nil {
			return struct{}{}, nil
		}

		if ctx.Err() != nil || d.isFinished(j.ID) {
			return struct{}{}, backoff.Permanent(err)
		}

		logctx.LoggerFromContext(ctx).WarnContext(ctx, "download attempt failed", "err", err)

		return struct{}{}, err
	}

	if d.maxTries < 2 {
		_, err := attempt()

		return unwrapPermanent(err)
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(d.maxTries),
	)

	return unwrapPermanent(err)
}

func (d *Downloader) options(formatID string, audio bool) extractor.Options {
	opts := extractor.Options{
		Format:         formatID,
		OutputTemplate: filepath.Join(d.downloadDir, outputTemplate),
	}

	if audio {
		opts.Format = audioFormatSelector
		opts.ExtractAudio = true
		opts.AudioCodec = audioCodec
		opts.AudioQuality = audioQuality
		opts.TranscoderPath = d.transcoder.Path()
	}

	return opts
}

func (d *Downloader) isFinished(id string) bool {
	snap, err := d.registry.Get(id)

	return err == nil && snap.State.IsTerminal()
}

func (d *Downloader) succeed(ctx context.Context, j job.Job, audio bool) {
	logger := logctx.LoggerFromContext(ctx)

	var produced string

	snap, err := d.registry.Update(j.ID, func(j *job.Job, now time.Time) error {
		if j.State.IsTerminal() {
			return errAlreadyFinished
		}

		name := j.DisplayFilename()
		if name == "" {
			return j.Succeed(GenericResultFilename, now)
		}

		if audio {
			name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + audioCodec
		}

		produced = name

		return j.Succeed(name, now)
	})
	if err != nil {
		if errors.Is(err, errAlreadyFinished) {
			logger.InfoContext(ctx, "job already finished, skipping confirmation", "state", snap.State)

			return
		}

		logger.ErrorContext(ctx, "failed to confirm download", "err", err)

		return
	}

	logger.InfoContext(ctx, "download completed", "file_name", snap.ResultFilename)

	if produced != "" && d.ledger != nil {
		rec := storage.DownloadRecord{
			JobID:        snap.ID,
			SourceURL:    snap.SourceURL,
			FilePath:     produced,
			DownloadedAt: time.Now(),
		}

		if err := d.ledger.TrackDownload(ctx, rec); err != nil {
			logger.ErrorContext(ctx, "failed to track download", "err", err)
		}
	}

	d.notify(ctx, fmt.Sprintf("Download finished: %s (%s)", snap.ResultFilename, snap.SourceURL))
}

func (d *Downloader) fail(ctx context.Context, j job.Job, detail string) {
	logger := logctx.LoggerFromContext(ctx)

	// The error returned by the extractor is more precise than the detail of
	// an earlier error event, so it replaces it.
	snap, err := d.registry.Update(j.ID, func(j *job.Job, now time.Time) error {
		switch j.State {
		case job.StateSucceeded:
			return errAlreadyFinished
		case job.StateFailed:
			return j.ReplaceErrorDetail(detail)
		default:
			return j.Fail(detail, now)
		}
	})
	if err != nil {
		if !errors.Is(err, errAlreadyFinished) {
			logger.ErrorContext(ctx, "failed to record download failure", "err", err)
		}

		return
	}

	d.notify(ctx, fmt.Sprintf("Download failed: %s (%s)", snap.ErrorDetail, snap.SourceURL))
}

func (d *Downloader) notify(ctx context.Context, content string) {
	if d.notifier == nil {
		return
	}

	if err := d.notifier.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "err", err)
	}
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}

	return err
}
