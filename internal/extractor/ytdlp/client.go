package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/logctx"
	"github.com/lrstanley/go-ytdlp"
)

const defaultProgressInterval = 500 * time.Millisecond

// RequestOptions are passed to yt-dlp on every call. They make requests look
// like a regular browser and pace them to avoid bot protection.
type RequestOptions struct {
	UserAgent string
	Referer   string
	// Headers are extra HTTP headers in "Field:Value" form.
	Headers          []string
	SleepInterval    float64
	MaxSleepInterval float64
	// Retries and FragmentRetries accept a count or "infinite".
	Retries         string
	FragmentRetries string
}

// DefaultRequestOptions returns browser-like headers, a 1 to 5 second sleep
// between downloads and three retries.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Referer:   "https://www.youtube.com/",
		Headers: []string{
			"Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language:en-us,en;q=0.5",
			"Accept-Encoding:gzip, deflate",
			"Accept-Charset:ISO-8859-1,utf-8;q=0.7,*;q=0.7",
			"Keep-Alive:300",
			"Connection:keep-alive",
		},
		SleepInterval:    1,
		MaxSleepInterval: 5,
		Retries:          "3",
		FragmentRetries:  "3",
	}
}

// Client drives the yt-dlp binary through go-ytdlp.
type Client struct {
	executable       string
	progressInterval time.Duration
	request          RequestOptions
}

// NewClient creates a client. An empty executable lets go-ytdlp resolve
// yt-dlp from PATH.
func NewClient(executable string, progressInterval time.Duration, request RequestOptions) *Client {
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}

	return &Client{
		executable:       executable,
		progressInterval: progressInterval,
		request:          request,
	}
}

func (c *Client) Version() string {
	return ytdlp.Version
}

// Info resolves metadata for url without downloading it.
func (c *Client) Info(ctx context.Context, url string) (*extractor.VideoInfo, error) {
	logger := logctx.LoggerFromContext(ctx)

	res, err := c.command().
		SkipDownload().
		DumpJSON().
		NoWarnings().
		Run(ctx, c.args(url)...)
	if err != nil {
		return nil, &extractor.ExtractionError{Operation: "info", URL: url, Err: err}
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, &extractor.ExtractionError{Operation: "info", URL: url, Err: fmt.Errorf("failed to decode extractor output: %w", err)}
	}

	if len(infos) == 0 || infos[0] == nil {
		return nil, &extractor.ExtractionError{Operation: "info", URL: url, Err: errors.New("extractor returned no entries")}
	}

	info := infos[0]

	vi := &extractor.VideoInfo{
		Title:           deref(info.Title),
		Uploader:        deref(info.Uploader),
		DurationSeconds: float64(deref(info.Duration)),
		ViewCount:       int64(deref(info.ViewCount)),
		UploadDate:      deref(info.UploadDate),
		Description:     deref(info.Description),
		ThumbnailURL:    deref(info.Thumbnail),
		WebpageURL:      deref(info.WebpageURL),
	}

	if vi.WebpageURL == "" {
		vi.WebpageURL = url
	}

	logger.Debug("video info resolved", "title", vi.Title)

	return vi, nil
}

// Download fetches url according to opts. progress is invoked synchronously
// from the goroutine that reads the extractor output.
func (c *Client) Download(ctx context.Context, url string, opts extractor.Options, progress extractor.ProgressFunc) error {
	cmd := c.command().
		Format(opts.Format).
		Output(opts.OutputTemplate).
		NoWarnings()

	if opts.ExtractAudio {
		cmd = cmd.ExtractAudio().
			AudioFormat(opts.AudioCodec).
			AudioQuality(opts.AudioQuality)
	}

	if opts.TranscoderPath != "" {
		cmd = cmd.FFmpegLocation(opts.TranscoderPath)
	}

	if progress != nil {
		cmd = cmd.ProgressFunc(c.progressInterval, func(update ytdlp.ProgressUpdate) {
			if ev, ok := toEvent(update); ok {
				progress(ev)
			}
		})
	}

	if _, err := cmd.Run(ctx, c.args(url)...); err != nil {
		return &extractor.ExtractionError{Operation: "download", URL: url, Err: err}
	}

	return nil
}

func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if c.executable != "" {
		cmd.SetExecutable(c.executable)
	}

	req := c.request

	if req.UserAgent != "" {
		cmd.UserAgent(req.UserAgent)
	}

	if req.Referer != "" {
		cmd.Referer(req.Referer)
	}

	if req.SleepInterval > 0 {
		cmd.SleepInterval(req.SleepInterval)

		if req.MaxSleepInterval > req.SleepInterval {
			cmd.MaxSleepInterval(req.MaxSleepInterval)
		}
	}

	if req.Retries != "" {
		cmd.Retries(req.Retries)
	}

	if req.FragmentRetries != "" {
		cmd.FragmentRetries(req.FragmentRetries)
	}

	return cmd
}

// args returns the positional arguments for a run. The go-ytdlp builder keeps
// a single --add-headers value, so headers are passed here instead.
func (c *Client) args(url string) []string {
	args := make([]string, 0, 2*len(c.request.Headers)+1)
	for _, h := range c.request.Headers {
		args = append(args, "--add-headers", h)
	}

	return append(args, url)
}

func toEvent(update ytdlp.ProgressUpdate) (extractor.ProgressEvent, bool) {
	ev := extractor.ProgressEvent{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		Filename:        update.Filename,
	}

	switch string(update.Status) {
	case string(extractor.EventDownloading):
		ev.Kind = extractor.EventDownloading
	case string(extractor.EventFinished):
		ev.Kind = extractor.EventFinished
	default:
		// Error updates carry no message. The error returned by Run fails the
		// job instead.
		return ev, false
	}

	return ev, true
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}

	return *p
}
