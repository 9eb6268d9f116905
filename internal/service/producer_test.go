package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/domain/model"
)

func TestNewProducerService(t *testing.T) {
	_, err := NewProducerService(ProducerServiceOptions{})
	assert.ErrorContains(t, err, "job store is required")

	svc, err := NewProducerService(ProducerServiceOptions{Jobs: newFakeJobStore()})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestProducerEnsureJob(t *testing.T) {
	t.Run("creates a job for a book with no history", func(t *testing.T) {
		jobs := newFakeJobStore()
		svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
		require.NoError(t, err)

		id, err := svc.EnsureJob(context.Background(), 42)
		require.NoError(t, err)

		job := jobs.get(id)
		require.NotNil(t, job)
		assert.Equal(t, int64(42), job.BookID)
		assert.Equal(t, model.JobStatusPending, job.Status)
	})

	t.Run("returns the existing active job", func(t *testing.T) {
		for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing} {
			jobs := newFakeJobStore()
			existing := jobs.addJob(42, status)
			svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
			require.NoError(t, err)

			id, err := svc.EnsureJob(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, existing.ID, id, "status %s", status)
			assert.Len(t, jobs.order, 1, "status %s", status)
		}
	})

	t.Run("creates a new job when the latest is terminal", func(t *testing.T) {
		for _, status := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed} {
			jobs := newFakeJobStore()
			old := jobs.addJob(42, status)
			svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
			require.NoError(t, err)

			id, err := svc.EnsureJob(context.Background(), 42)
			require.NoError(t, err)
			assert.NotEqual(t, old.ID, id, "status %s", status)
			assert.Equal(t, model.JobStatusPending, jobs.get(id).Status, "status %s", status)
		}
	})

	t.Run("repeated calls are idempotent", func(t *testing.T) {
		jobs := newFakeJobStore()
		svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
		require.NoError(t, err)

		first, err := svc.EnsureJob(context.Background(), 42)
		require.NoError(t, err)
		second, err := svc.EnsureJob(context.Background(), 42)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, jobs.order, 1)
	})

	t.Run("lost create race resolves to the winner's job", func(t *testing.T) {
		jobs := newFakeJobStore()
		winner := jobs.addJob(42, model.JobStatusCompleted)
		svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
		require.NoError(t, err)

		// The terminal latest sends EnsureJob down the create path; the
		// injected unique violation simulates a concurrent producer winning
		// the insert, and the re-read must find that producer's job.
		jobs.createErr = data.ErrActiveJobExists
		racedWinner := jobs.addJob(42, model.JobStatusPending)

		id, err := svc.EnsureJob(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, racedWinner.ID, id)
		assert.NotEqual(t, winner.ID, id)
	})

	t.Run("surfaces the conflict when no active winner is found", func(t *testing.T) {
		jobs := newFakeJobStore()
		jobs.addJob(42, model.JobStatusFailed)
		jobs.createErr = data.ErrActiveJobExists
		svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
		require.NoError(t, err)

		_, err = svc.EnsureJob(context.Background(), 42)
		assert.ErrorIs(t, err, data.ErrActiveJobExists)
	})

	t.Run("propagates create errors", func(t *testing.T) {
		jobs := newFakeJobStore()
		jobs.createErr = errors.New("connection reset")
		svc, err := NewProducerService(ProducerServiceOptions{Jobs: jobs})
		require.NoError(t, err)

		_, err = svc.EnsureJob(context.Background(), 42)
		assert.ErrorContains(t, err, "connection reset")
	})
}
