package job

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(4)

	created := r.Create("https://example.com/v1", "best", "720p")

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, got.State)
	assert.Equal(t, "https://example.com/v1", got.SourceURL)
	assert.Equal(t, "best", got.RequestedFormat)
	assert.Equal(t, "720p", got.QualityLabel)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(0)

	_, err := r.Get("never-issued")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update("never-issued", func(j *Job, now time.Time) error { return j.Start(now) })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_UpdateRollsBackOnError(t *testing.T) {
	r := NewRegistry(1)
	created := r.Create("u", "f", "q")

	_, err := r.Update(created.ID, func(j *Job, now time.Time) error {
		j.ErrorDetail = "should not stick"

		return errors.New("nope")
	})
	require.Error(t, err)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ErrorDetail)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry(1)
	created := r.Create("u", "f", "q")

	created.State = StateFailed

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, got.State)
}

func TestRegistry_ConcurrentCreateProducesDistinctIDs(t *testing.T) {
	r := NewRegistry(8)

	const n = 200

	ids := make(chan string, n)

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			ids <- r.Create(fmt.Sprintf("https://example.com/%d", i), "best", "").ID
		}(i)
	}

	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}

	assert.Len(t, seen, n)
	assert.Equal(t, n, r.Count())
}

func TestRegistry_ConcurrentUpdatesDoNotCrossContaminate(t *testing.T) {
	r := NewRegistry(2)

	a := r.Create("https://example.com/a", "best", "")
	b := r.Create("https://example.com/b", "best", "")

	for _, id := range []string{a.ID, b.ID} {
		_, err := r.Update(id, func(j *Job, now time.Time) error { return j.Start(now) })
		require.NoError(t, err)
	}

	var wg sync.WaitGroup

	for _, tc := range []struct{ id, file string }{{a.ID, "a.mp4"}, {b.ID, "b.mp4"}} {
		wg.Add(1)

		go func(id, file string) {
			defer wg.Done()

			for p := 0; p <= 100; p++ {
				_, _ = r.Update(id, func(j *Job, _ time.Time) error {
					return j.ReportProgress(float64(p), file)
				})
				_, _ = r.Get(id)
			}
		}(tc.id, tc.file)
	}

	wg.Wait()

	gotA, err := r.Get(a.ID)
	require.NoError(t, err)
	gotB, err := r.Get(b.ID)
	require.NoError(t, err)

	assert.Equal(t, "a.mp4", gotA.DisplayFilename())
	assert.Equal(t, "b.mp4", gotB.DisplayFilename())
	assert.Equal(t, 100.0, gotA.ProgressPercent)
	assert.Equal(t, 100.0, gotB.ProgressPercent)
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry(4)

	running := r.Create("u1", "f", "")
	_, err := r.Update(running.ID, func(j *Job, now time.Time) error { return j.Start(now) })
	require.NoError(t, err)

	failed := r.Create("u2", "f", "")
	_, err = r.Update(failed.ID, func(j *Job, now time.Time) error { return j.Fail("x", now) })
	require.NoError(t, err)

	r.Create("u3", "f", "")

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.Count(StateCreated, StateRunning))
	assert.Equal(t, 1, r.Count(StateFailed))
	assert.Equal(t, 0, r.Count(StateSucceeded))
}

func TestRegistry_Evict(t *testing.T) {
	r := NewRegistry(4)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	old := r.Create("old", "f", "")
	_, err := r.Update(old.ID, func(j *Job, now time.Time) error { return j.Fail("x", now) })
	require.NoError(t, err)

	active := r.Create("active", "f", "")
	_, err = r.Update(active.ID, func(j *Job, now time.Time) error { return j.Start(now) })
	require.NoError(t, err)

	removed := r.Evict(base.Add(time.Hour))
	assert.Equal(t, 1, removed)

	_, err = r.Get(old.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(active.ID)
	require.NoError(t, err)
}
