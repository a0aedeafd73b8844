package extractor

import (
	"context"

	"github.com/italolelis/video_downloader/internal/telemetry"
)

// InstrumentedExtractor wraps an Extractor with telemetry.
type InstrumentedExtractor struct {
	ext       Extractor
	telemetry *telemetry.Telemetry
}

func NewInstrumented(ext Extractor, tel *telemetry.Telemetry) *InstrumentedExtractor {
	return &InstrumentedExtractor{ext: ext, telemetry: tel}
}

func (e *InstrumentedExtractor) Version() string {
	return e.ext.Version()
}

// Info resolves metadata with telemetry.
func (e *InstrumentedExtractor) Info(ctx context.Context, url string) (*VideoInfo, error) {
	var result *VideoInfo

	err := e.telemetry.InstrumentExtractorOperation(ctx, "info", func(ctx context.Context) error {
		var err error

		result, err = e.ext.Info(ctx, url)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Download runs a download with telemetry.
func (e *InstrumentedExtractor) Download(ctx context.Context, url string, opts Options, progress ProgressFunc) error {
	return e.telemetry.InstrumentExtractorOperation(ctx, "download", func(ctx context.Context) error {
		return e.ext.Download(ctx, url, opts, progress)
	})
}
