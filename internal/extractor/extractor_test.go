package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/italolelis/video_downloader/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	infoErr     error
	downloadErr error
	events      []ProgressEvent
}

func (f *fakeExtractor) Info(context.Context, string) (*VideoInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}

	return &VideoInfo{Title: "clip"}, nil
}

func (f *fakeExtractor) Download(_ context.Context, _ string, _ Options, progress ProgressFunc) error {
	for _, ev := range f.events {
		progress(ev)
	}

	return f.downloadErr
}

func (f *fakeExtractor) Version() string { return "test" }

func TestExtractionError(t *testing.T) {
	cause := errors.New("HTTP Error 429")
	err := &ExtractionError{Operation: "info", URL: "https://example.com/v", Err: cause}

	assert.Equal(t, "extraction failed during info: HTTP Error 429", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestInstrumentedExtractor_PassesThrough(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	inner := &fakeExtractor{events: []ProgressEvent{{Kind: EventDownloading}, {Kind: EventFinished}}}
	ext := NewInstrumented(inner, tel)

	assert.Equal(t, "test", ext.Version())

	info, err := ext.Info(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "clip", info.Title)

	var kinds []EventKind

	require.NoError(t, ext.Download(context.Background(), "https://example.com/v", Options{}, func(ev ProgressEvent) {
		kinds = append(kinds, ev.Kind)
	}))
	assert.Equal(t, []EventKind{EventDownloading, EventFinished}, kinds)
}

func TestInstrumentedExtractor_PropagatesErrors(t *testing.T) {
	cause := errors.New("unsupported URL")
	ext := NewInstrumented(&fakeExtractor{infoErr: cause, downloadErr: cause}, nil)

	info, err := ext.Info(context.Background(), "u")
	assert.Nil(t, info)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, ext.Download(context.Background(), "u", Options{}, func(ProgressEvent) {}), cause)
}
