package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

var _ interfaces.JobStorage = (*JobStorage)(nil)

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(store *badgerhold.Store, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		store:  store,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.QueueJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now()

	if err := s.store.Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	var job models.QueueJob
	if err := s.store.Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	err := s.store.Delete(jobID, &models.QueueJob{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.QueueJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.State != "" {
			query = query.And("State").Eq(opts.State)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []models.QueueJob
	if err := s.store.Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.QueueJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) PurgeFinished(ctx context.Context, state models.JobState, before time.Time) (int, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("cannot purge jobs in non-terminal state %q", state)
	}

	var jobs []models.QueueJob
	if err := s.store.Find(&jobs, badgerhold.Where("State").Eq(state)); err != nil {
		return 0, fmt.Errorf("failed to find %s jobs: %w", state, err)
	}

	purged := 0
	for _, job := range jobs {
		if job.FinishedAt == nil || !job.FinishedAt.Before(before) {
			continue
		}
		if err := s.store.Delete(job.ID, &models.QueueJob{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge job")
			continue
		}
		purged++
	}

	if purged > 0 {
		s.logger.Debug().Str("state", string(state)).Int("purged", purged).Msg("Purged finished jobs")
	}
	return purged, nil
}
