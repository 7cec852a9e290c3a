// -----------------------------------------------------------------------
// Last Modified: Wednesday, 14th October 2026 9:12:40 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/metrics"
	"github.com/ternarybob/sicknote/internal/models"
)

// Manager owns the job state machine: status records, attempts, timeouts
// and scheduled retries. Backends only carry job ids.
type Manager struct {
	backend Backend
	jobs    interfaces.JobStorage
	config  common.QueueConfig
	metrics *metrics.Collector
	logger  arbor.ILogger

	mu       sync.RWMutex
	handlers map[string]Handler

	pauseMu sync.Mutex
	paused  bool
	resumed chan struct{}

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	now func() time.Time
}

// Compile-time assertion
var _ interfaces.JobQueue = (*Manager)(nil)

// NewManager creates a new queue manager
func NewManager(backend Backend, jobs interfaces.JobStorage, config common.QueueConfig, collector *metrics.Collector, logger arbor.ILogger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		backend:  backend,
		jobs:     jobs,
		config:   config,
		metrics:  collector,
		logger:   logger,
		handlers: make(map[string]Handler),
		resumed:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// RegisterHandler registers a job type handler
func (m *Manager) RegisterHandler(jobType string, handler Handler) {
	m.mu.Lock()
	m.handlers[jobType] = handler
	m.mu.Unlock()

	m.logger.Debug().Str("job_type", jobType).Msg("Job handler registered")
}

// Start starts the backend and the retention janitor
func (m *Manager) Start() error {
	if err := m.backend.Start(m.deliver); err != nil {
		return fmt.Errorf("failed to start %s queue backend: %w", m.backend.Name(), err)
	}

	if m.config.JanitorSchedule != "" {
		m.cron = cron.New(cron.WithSeconds())
		if _, err := m.cron.AddFunc(m.config.JanitorSchedule, func() {
			if _, err := m.PurgeExpired(m.ctx); err != nil {
				m.logger.Warn().Err(err).Msg("Job retention janitor failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid janitor schedule: %w", err)
		}
		m.cron.Start()
	}

	m.logger.Info().
		Str("backend", m.backend.Name()).
		Str("janitor", m.config.JanitorSchedule).
		Msg("Job queue started")
	return nil
}

// Stop stops the janitor, the backend and waits for running attempts
func (m *Manager) Stop() error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.cancel()
	err := m.backend.Stop()
	m.running.Wait()

	m.logger.Info().Msg("Job queue stopped")
	return err
}

// Add stores a job status record and schedules its first attempt
func (m *Manager) Add(ctx context.Context, jobType string, payload interface{}, opts *models.JobOptions) (*models.QueueJob, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	options := mergeOptions(DefaultJobOptions(jobType), opts)
	now := m.now()
	runAt := now.Add(options.Delay)

	job := &models.QueueJob{
		ID:          uuid.NewString(),
		Type:        jobType,
		RecordID:    gjson.GetBytes(data, "recordId").String(),
		Payload:     data,
		Options:     options,
		State:       models.JobStateWaiting,
		MaxAttempts: options.Attempts,
		CreatedAt:   now,
	}
	if options.Delay > 0 {
		job.State = models.JobStateDelayed
		job.NextRunAt = &runAt
	}

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := m.backend.Enqueue(ctx, Message{JobID: job.ID, Attempt: 1}, runAt); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Str("type", jobType).
		Str("record_id", job.RecordID).
		Int("max_attempts", options.Attempts).
		Msg("Job queued")

	return m.view(job), nil
}

// GetJob returns the job status record
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return m.view(job), nil
}

// Pause stops new attempts from starting; running attempts continue
func (m *Manager) Pause() {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	if !m.paused {
		m.paused = true
		m.logger.Info().Msg("Job queue paused")
	}
}

// Resume releases deliveries held by Pause
func (m *Manager) Resume() {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	if m.paused {
		m.paused = false
		close(m.resumed)
		m.resumed = make(chan struct{})
		m.logger.Info().Msg("Job queue resumed")
	}
}

// IsPaused reports whether the queue is paused
func (m *Manager) IsPaused() bool {
	m.pauseMu.Lock()
	defer m.pauseMu.Unlock()
	return m.paused
}

// PurgeExpired removes status records past their retention window.
// Completed jobs go after Retention when RemoveOnComplete is set, failed
// jobs after FailedRetention.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	now := m.now()
	purged := 0

	completed, err := m.jobs.ListJobs(ctx, &interfaces.JobListOptions{State: models.JobStateCompleted})
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-m.config.Retention.Or(time.Hour))
	for _, job := range completed {
		if !job.Options.RemoveOnComplete || job.FinishedAt == nil || !job.FinishedAt.Before(cutoff) {
			continue
		}
		if err := m.jobs.DeleteJob(ctx, job.ID); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge completed job")
			continue
		}
		purged++
	}

	n, err := m.jobs.PurgeFinished(ctx, models.JobStateFailed, now.Add(-m.config.FailedRetention.Or(24*time.Hour)))
	if err != nil {
		return purged, err
	}
	purged += n

	if purged > 0 {
		m.logger.Info().Int("purged", purged).Msg("Expired job records purged")
	}
	return purged, nil
}

// view reports waiting jobs as paused while the queue is paused
func (m *Manager) view(job *models.QueueJob) *models.QueueJob {
	if job.State == models.JobStateWaiting && m.IsPaused() {
		copied := *job
		copied.State = models.JobStatePaused
		return &copied
	}
	return job
}

func (m *Manager) waitWhilePaused(ctx context.Context) error {
	for {
		m.pauseMu.Lock()
		paused, resumed := m.paused, m.resumed
		m.pauseMu.Unlock()
		if !paused {
			return nil
		}

		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return m.ctx.Err()
		}
	}
}

// deliver runs one attempt of the job referenced by msg
func (m *Manager) deliver(ctx context.Context, msg Message) error {
	if err := m.waitWhilePaused(ctx); err != nil {
		return err
	}

	m.running.Add(1)
	defer m.running.Done()

	job, err := m.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		m.logger.Warn().Str("job_id", msg.JobID).Msg("Dropping message for unknown job")
		return nil
	}
	if job.State.IsTerminal() {
		return nil
	}
	// An older attempt redelivered after a retry was already scheduled
	if msg.Attempt < job.Attempts || (msg.Attempt == job.Attempts && job.State != models.JobStateActive) {
		m.logger.Debug().Str("job_id", job.ID).Int("attempt", msg.Attempt).Msg("Dropping stale message")
		return nil
	}

	m.mu.RLock()
	handler, ok := m.handlers[job.Type]
	m.mu.RUnlock()
	if !ok {
		job.Attempts = msg.Attempt
		return m.finish(ctx, job, nil, fmt.Errorf("%w: %s", ErrNoHandler, job.Type))
	}

	startedAt := m.now()
	job.State = models.JobStateActive
	job.Attempts = msg.Attempt
	job.Progress = 0
	job.StartedAt = &startedAt
	job.NextRunAt = nil
	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	m.logger.Debug().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempt", job.Attempts).
		Msg("Processing job")

	result, runErr := m.run(job, handler)
	return m.finish(ctx, job, result, runErr)
}

// run executes the handler under the job timeout. A handler that overruns
// is abandoned and the attempt fails.
func (m *Manager) run(job *models.QueueJob, handler Handler) (interface{}, error) {
	timeout := job.Options.Timeout
	if timeout <= 0 {
		timeout = DefaultJobOptions(job.Type).Timeout
	}
	runCtx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	var progressMu sync.Mutex
	done := false
	progress := func(percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		if done {
			return
		}
		snapshot := *job
		snapshot.Progress = percent
		if err := m.jobs.SaveJob(runCtx, &snapshot); err != nil {
			m.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Failed to save job progress")
			return
		}
		job.Progress = percent
	}

	type outcome struct {
		result interface{}
		err    error
	}
	results := make(chan outcome, 1)
	handlerJob := *job

	common.SafeGo(m.logger, "job-"+job.Type, func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("job handler panicked: %v", r)}
			}
			results <- out
		}()
		out.result, out.err = handler(runCtx, &handlerJob, progress)
	})

	var out outcome
	select {
	case out = <-results:
	case <-runCtx.Done():
		out = outcome{err: fmt.Errorf("%w after %s", ErrJobTimeout, timeout)}
		if m.ctx.Err() != nil {
			out.err = m.ctx.Err()
		}
	}

	// A handler that returned its context error still ran out of time
	if out.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(out.err, ErrJobTimeout) {
		out.err = fmt.Errorf("%w after %s: %v", ErrJobTimeout, timeout, out.err)
	}

	progressMu.Lock()
	done = true
	progressMu.Unlock()

	return out.result, out.err
}

// finish records the attempt outcome and schedules a retry when allowed
func (m *Manager) finish(ctx context.Context, job *models.QueueJob, result interface{}, runErr error) error {
	now := m.now()

	// Shutdown interrupted the attempt; leave it for redelivery
	if runErr != nil && m.ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if runErr == nil {
		if result != nil {
			if data, err := json.Marshal(result); err == nil {
				job.Result = data
			}
		}
		job.State = models.JobStateCompleted
		job.Progress = 100
		job.LastError = ""
		job.FinishedAt = &now
		if err := m.jobs.SaveJob(ctx, job); err != nil {
			return err
		}

		m.metrics.JobFinished(job.Type, string(job.State))
		m.logger.Info().
			Str("job_id", job.ID).
			Str("type", job.Type).
			Int("attempt", job.Attempts).
			Msg("Job completed successfully")
		return nil
	}

	job.LastError = runErr.Error()
	policy := m.retryPolicy(job)

	if policy.ShouldRetry(job.Attempts, runErr) {
		delay := policy.Delay(job.Attempts)
		next := now.Add(delay)
		job.State = models.JobStateDelayed
		job.NextRunAt = &next
		if err := m.jobs.SaveJob(ctx, job); err != nil {
			return err
		}
		if err := m.backend.Enqueue(ctx, Message{JobID: job.ID, Attempt: job.Attempts + 1}, next); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}

		m.logger.Warn().
			Err(runErr).
			Str("job_id", job.ID).
			Str("type", job.Type).
			Int("attempt", job.Attempts).
			Int("max_attempts", job.MaxAttempts).
			Dur("retry_in", delay).
			Msg("Job attempt failed, retry scheduled")
		return nil
	}

	job.State = models.JobStateFailed
	job.FinishedAt = &now
	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return err
	}

	m.metrics.JobFinished(job.Type, string(job.State))
	m.logger.Error().
		Err(runErr).
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Msg("Job failed")
	return nil
}

func (m *Manager) retryPolicy(job *models.QueueJob) common.RetryPolicy {
	return common.RetryPolicy{
		MaxAttempts: job.MaxAttempts,
		Backoff:     common.ExponentialBackoff(job.Options.BackoffDelay, 0),
		Retryable: func(err error) bool {
			return !IsPermanent(err) && !errors.Is(err, ErrNoHandler)
		},
	}
}

// mergeOptions overlays the non-zero fields of opts on the defaults
func mergeOptions(defaults models.JobOptions, opts *models.JobOptions) models.JobOptions {
	if opts == nil {
		return defaults
	}
	merged := defaults
	if opts.Attempts > 0 {
		merged.Attempts = opts.Attempts
	}
	if opts.BackoffDelay > 0 {
		merged.BackoffDelay = opts.BackoffDelay
	}
	if opts.Timeout > 0 {
		merged.Timeout = opts.Timeout
	}
	if opts.Delay > 0 {
		merged.Delay = opts.Delay
	}
	merged.RemoveOnComplete = defaults.RemoveOnComplete || opts.RemoveOnComplete
	return merged
}
