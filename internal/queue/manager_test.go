package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/models"
	badgerstore "github.com/ternarybob/sicknote/internal/storage/badger"
)

type testPayload struct {
	RecordID string `json:"recordId"`
}

func testQueueConfig() common.QueueConfig {
	return common.QueueConfig{
		Backend:           "badger",
		PollInterval:      common.Duration{Duration: 10 * time.Millisecond},
		Concurrency:       2,
		VisibilityTimeout: common.Duration{Duration: time.Minute},
		QueueName:         "test_jobs",
		Retention:         common.Duration{Duration: time.Hour},
		FailedRetention:   common.Duration{Duration: 24 * time.Hour},
	}
}

func newTestStorage(t *testing.T) *badgerstore.Manager {
	t.Helper()
	storage, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

// newTestManager wires a manager to a badger backend on a temp database
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := arbor.NewLogger()
	storage := newTestStorage(t)
	config := testQueueConfig()

	backend, err := NewBackend(config, storage.DB().(*badgerhold.Store).Badger(), logger)
	require.NoError(t, err)

	manager := NewManager(backend, storage.JobStorage(), config, nil, logger)
	t.Cleanup(func() { _ = manager.Stop() })
	return manager
}

func waitForState(t *testing.T, m *Manager, jobID string, state models.JobState, timeout time.Duration) *models.QueueJob {
	t.Helper()
	var job *models.QueueJob
	require.Eventually(t, func() bool {
		var err error
		job, err = m.GetJob(context.Background(), jobID)
		return err == nil && job.State == state
	}, timeout, 10*time.Millisecond, "job %s never reached %s", jobID, state)
	return job
}

func TestManager_CompletesJobWithProgress(t *testing.T) {
	m := newTestManager(t)
	m.RegisterHandler(JobTypeGeneratePDF, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		progress(50)
		return map[string]string{"path": "/tmp/" + job.RecordID + ".pdf"}, nil
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeGeneratePDF, testPayload{RecordID: "rec-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", job.RecordID)
	assert.Equal(t, 3, job.MaxAttempts)

	done := waitForState(t, m, job.ID, models.JobStateCompleted, 5*time.Second)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 1, done.Attempts)
	assert.JSONEq(t, `{"path":"/tmp/rec-1.pdf"}`, string(done.Result))
	assert.NotNil(t, done.FinishedAt)
}

func TestManager_RetriesWithExponentialBackoff(t *testing.T) {
	m := newTestManager(t)
	var calls int32
	m.RegisterHandler(JobTypeSendEmail, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("smtp unavailable")
		}
		return nil, nil
	})
	require.NoError(t, m.Start())

	start := time.Now()
	job, err := m.Add(context.Background(), JobTypeSendEmail, testPayload{RecordID: "rec-2"}, &models.JobOptions{
		Attempts:     3,
		BackoffDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	done := waitForState(t, m, job.ID, models.JobStateCompleted, 5*time.Second)
	assert.Equal(t, 3, done.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	// 20ms + 40ms between attempts
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestManager_FailsAfterLastAttempt(t *testing.T) {
	m := newTestManager(t)
	m.RegisterHandler(JobTypeSendEmail, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		return nil, errors.New("mailbox full")
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeSendEmail, testPayload{RecordID: "rec-3"}, &models.JobOptions{
		Attempts:     2,
		BackoffDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	failed := waitForState(t, m, job.ID, models.JobStateFailed, 5*time.Second)
	assert.Equal(t, 2, failed.Attempts)
	assert.Equal(t, "mailbox full", failed.LastError)
	assert.NotNil(t, failed.FinishedAt)
}

func TestManager_TimeoutFailsAttempt(t *testing.T) {
	m := newTestManager(t)
	m.RegisterHandler(JobTypeGeneratePDF, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeGeneratePDF, testPayload{RecordID: "rec-4"}, &models.JobOptions{
		Attempts: 1,
		Timeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)

	failed := waitForState(t, m, job.ID, models.JobStateFailed, 5*time.Second)
	assert.Contains(t, failed.LastError, "timed out")
}

func TestManager_PermanentErrorIsNotRetried(t *testing.T) {
	m := newTestManager(t)
	var calls int32
	m.RegisterHandler(JobTypeGeneratePDF, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, Permanent(errors.New("record not found"))
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeGeneratePDF, testPayload{RecordID: "missing"}, nil)
	require.NoError(t, err)

	failed := waitForState(t, m, job.ID, models.JobStateFailed, 5*time.Second)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestManager_UnknownJobType(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), "unknown", testPayload{}, nil)
	require.NoError(t, err)

	failed := waitForState(t, m, job.ID, models.JobStateFailed, 5*time.Second)
	assert.Contains(t, failed.LastError, ErrNoHandler.Error())
}

func TestManager_GetJobNotFound(t *testing.T) {
	m := newTestManager(t)

	job, err := m.GetJob(context.Background(), "does-not-exist")
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_PauseAndResume(t *testing.T) {
	m := newTestManager(t)
	var calls int32
	m.RegisterHandler(JobTypeGeneratePDF, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	require.NoError(t, m.Start())

	m.Pause()
	assert.True(t, m.IsPaused())

	job, err := m.Add(context.Background(), JobTypeGeneratePDF, testPayload{RecordID: "rec-5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePaused, job.State)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	m.Resume()
	waitForState(t, m, job.ID, models.JobStateCompleted, 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestManager_PurgeExpired(t *testing.T) {
	m := newTestManager(t)
	m.RegisterHandler(JobTypeGeneratePDF, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeGeneratePDF, testPayload{RecordID: "rec-6"}, nil)
	require.NoError(t, err)
	waitForState(t, m, job.ID, models.JobStateCompleted, 5*time.Second)

	purged, err := m.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, purged)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	purged, err = m.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = m.GetJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDefaultJobOptions(t *testing.T) {
	pdf := DefaultJobOptions(JobTypeGeneratePDF)
	assert.Equal(t, 3, pdf.Attempts)
	assert.Equal(t, 2*time.Second, pdf.BackoffDelay)
	assert.Equal(t, 5*time.Minute, pdf.Timeout)

	email := DefaultJobOptions(JobTypeSendEmail)
	assert.Equal(t, 5, email.Attempts)
	assert.Equal(t, 5*time.Second, email.BackoffDelay)
	assert.Equal(t, 10*time.Minute, email.Timeout)

	merged := mergeOptions(email, &models.JobOptions{Attempts: 3, BackoffDelay: 2 * time.Second, Timeout: 5 * time.Minute})
	assert.Equal(t, 3, merged.Attempts)
	assert.Equal(t, 2*time.Second, merged.BackoffDelay)
	assert.Equal(t, 5*time.Minute, merged.Timeout)
	assert.True(t, merged.RemoveOnComplete)
}

func TestNewBackend_Unsupported(t *testing.T) {
	config := testQueueConfig()
	config.Backend = "sqs"
	_, err := NewBackend(config, nil, arbor.NewLogger())
	assert.Error(t, err)
}

func TestManager_AsynqBackend(t *testing.T) {
	redis, err := miniredis.Run()
	require.NoError(t, err)
	defer redis.Close()

	logger := arbor.NewLogger()
	storage := newTestStorage(t)
	config := testQueueConfig()
	config.Backend = "redis"
	config.Redis = common.RedisConfig{Addr: redis.Addr()}

	backend, err := NewBackend(config, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "redis", backend.Name())

	m := NewManager(backend, storage.JobStorage(), config, nil, logger)
	defer m.Stop()

	m.RegisterHandler(JobTypeSendEmail, func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error) {
		progress(30)
		return nil, nil
	})
	require.NoError(t, m.Start())

	job, err := m.Add(context.Background(), JobTypeSendEmail, testPayload{RecordID: "rec-7"}, nil)
	require.NoError(t, err)

	waitForState(t, m, job.ID, models.JobStateCompleted, 10*time.Second)
}
