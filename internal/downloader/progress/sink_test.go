package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningJob(t *testing.T, r *job.Registry) string {
	t.Helper()

	created := r.Create("https://example.com/v", "best", "")
	_, err := r.Update(created.ID, func(j *job.Job, now time.Time) error { return j.Start(now) })
	require.NoError(t, err)

	return created.ID
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name string
		ev   extractor.ProgressEvent
		want float64
	}{
		{name: "known total", ev: extractor.ProgressEvent{DownloadedBytes: 25, TotalBytes: 100}, want: 25},
		{name: "estimated total", ev: extractor.ProgressEvent{DownloadedBytes: 30, TotalBytesEstimate: 60}, want: 50},
		{name: "exact total wins over estimate", ev: extractor.ProgressEvent{DownloadedBytes: 10, TotalBytes: 100, TotalBytesEstimate: 20}, want: 10},
		{name: "unknown total", ev: extractor.ProgressEvent{DownloadedBytes: 999}, want: FallbackPercent},
		{name: "negative total", ev: extractor.ProgressEvent{DownloadedBytes: 1, TotalBytes: -1}, want: FallbackPercent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percent(tt.ev), 0.0001)
		})
	}
}

func TestDisplayFilename(t *testing.T) {
	assert.Equal(t, "video.mp4", DisplayFilename("/home/u/Downloads/video.mp4"))
	assert.Equal(t, "video.mp4", DisplayFilename(`C:\Users\u\video.mp4`))
	assert.Equal(t, "video.mp4", DisplayFilename("video.mp4"))
	assert.Equal(t, "", DisplayFilename("  "))
}

func TestSink_Downloading(t *testing.T) {
	r := job.NewRegistry(1)
	id := runningJob(t, r)
	sink := NewSink(context.Background(), r, id)

	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 333, TotalBytes: 1000, Filename: "/tmp/out/clip.mp4"})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, got.State)
	assert.Equal(t, 33.3, got.ProgressPercent)
	assert.Equal(t, "clip.mp4", got.DisplayFilename())
}

func TestSink_DownloadingUnknownTotalUsesFallback(t *testing.T) {
	r := job.NewRegistry(1)
	id := runningJob(t, r)
	sink := NewSink(context.Background(), r, id)

	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 10})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, FallbackPercent, got.ProgressPercent)
}

func TestSink_Finished(t *testing.T) {
	r := job.NewRegistry(1)
	id := runningJob(t, r)
	sink := NewSink(context.Background(), r, id)

	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventFinished, Filename: "/tmp/out/clip.mp4"})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, got.State, "finished waits for confirmation")
	assert.True(t, got.Downloaded())
	assert.Equal(t, 100.0, got.ProgressPercent)
	assert.Equal(t, "clip.mp4", got.DisplayFilename())
}

func TestSink_Error(t *testing.T) {
	r := job.NewRegistry(1)
	id := runningJob(t, r)
	sink := NewSink(context.Background(), r, id)

	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 5, TotalBytes: 10})
	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventError, Err: "HTTP Error 403"})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	assert.Equal(t, "HTTP Error 403", got.ErrorDetail)
	assert.Equal(t, 0.0, got.ProgressPercent)
}

func TestSink_UnknownJobIsNoop(t *testing.T) {
	r := job.NewRegistry(1)
	sink := NewSink(context.Background(), r, "evicted")

	assert.NotPanics(t, func() {
		sink.Handle(extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 1, TotalBytes: 2})
		sink.Handle(extractor.ProgressEvent{Kind: extractor.EventFinished})
		sink.Handle(extractor.ProgressEvent{Kind: extractor.EventError, Err: "x"})
	})
}

func TestSink_EventsAfterTerminalAreIgnored(t *testing.T) {
	r := job.NewRegistry(1)
	id := runningJob(t, r)
	sink := NewSink(context.Background(), r, id)

	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventError, Err: "boom"})
	sink.Handle(extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 9, TotalBytes: 10})

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
	assert.Equal(t, 0.0, got.ProgressPercent)
}

type panickingUpdater struct{}

func (panickingUpdater) Update(string, func(*job.Job, time.Time) error) (job.Job, error) {
	panic("registry exploded")
}

type failingUpdater struct{}

func (failingUpdater) Update(string, func(*job.Job, time.Time) error) (job.Job, error) {
	return job.Job{}, errors.New("storage unavailable")
}

func TestSink_SwallowsInternalFailures(t *testing.T) {
	for _, u := range []Updater{panickingUpdater{}, failingUpdater{}} {
		sink := NewSink(context.Background(), u, "id")

		assert.NotPanics(t, func() {
			sink.Handle(extractor.ProgressEvent{Kind: extractor.EventFinished})
		})
	}
}
