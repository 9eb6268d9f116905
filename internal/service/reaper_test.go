package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readmill/pagepress/config"
)

// fakeReaperRepo hands out one pre-programmed batch count per call.
type fakeReaperRepo struct {
	batches []int64
	err     error
	calls   int
	maxAge  time.Duration
	batch   int
}

func (f *fakeReaperRepo) FailStaleProcessingJobs(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	f.calls++
	f.maxAge = maxAge
	f.batch = batchSize
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	count := f.batches[0]
	f.batches = f.batches[1:]
	return count, nil
}

func newTestReaper(t *testing.T, repo *fakeReaperRepo) *ReaperService {
	t.Helper()
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:         time.Millisecond,
			ProcessingMaxAge: time.Hour,
			BatchSize:        100,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestNewReaperService(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	assert.ErrorContains(t, err, "reaper repository is required")
}

func TestReaperSweep(t *testing.T) {
	t.Run("drains batches until a pass touches nothing", func(t *testing.T) {
		repo := &fakeReaperRepo{batches: []int64{100, 100, 37}}
		svc := newTestReaper(t, repo)

		total, err := svc.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(237), total)
		// Three full batches plus the final empty pass.
		assert.Equal(t, 4, repo.calls)
		assert.Equal(t, time.Hour, repo.maxAge)
		assert.Equal(t, 100, repo.batch)
	})

	t.Run("nothing stale", func(t *testing.T) {
		repo := &fakeReaperRepo{}
		svc := newTestReaper(t, repo)

		total, err := svc.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Equal(t, 1, repo.calls)
	})

	t.Run("returns the partial total on error", func(t *testing.T) {
		repo := &fakeReaperRepo{err: errors.New("could not obtain lock")}
		svc := newTestReaper(t, repo)

		_, err := svc.Sweep(context.Background())
		assert.ErrorContains(t, err, "could not obtain lock")
	})
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	repo := &fakeReaperRepo{batches: []int64{3}}
	svc := newTestReaper(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
