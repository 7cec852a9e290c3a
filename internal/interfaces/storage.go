// -----------------------------------------------------------------------
// Last Modified: Tuesday, 13th October 2026 4:20:11 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sicknote/internal/models"
)

// SickLeaveStorage - interface for sick-leave record persistence
type SickLeaveStorage interface {
	// FindByID returns nil, nil when no record exists
	FindByID(ctx context.Context, id string) (*models.SickLeave, error)
	Save(ctx context.Context, record *models.SickLeave) error
	Create(ctx context.Context, record *models.SickLeave) error
	List(ctx context.Context, limit int) ([]*models.SickLeave, error)

	// SaveAnalysis attaches analysis to the stored record only while its
	// UpdatedAt still equals basedOn. It reports false, nil when the record
	// changed or no longer exists.
	SaveAnalysis(ctx context.Context, id string, basedOn time.Time, analysis *models.AnalysisResult) (bool, error)
}

// JobListOptions filters job status records
type JobListOptions struct {
	Type  string
	State models.JobState
	Limit int
}

// JobStorage - interface for queue job status records
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.QueueJob) error
	// GetJob returns nil, nil when no job exists
	GetJob(ctx context.Context, jobID string) (*models.QueueJob, error)
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.QueueJob, error)

	// PurgeFinished removes jobs in the given terminal state that finished before the cutoff
	PurgeFinished(ctx context.Context, state models.JobState, before time.Time) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	SickLeaveStorage() SickLeaveStorage
	JobStorage() JobStorage
	KeyValueStorage() KeyValueStorage

	// DB returns the underlying database handle shared with the badger queue
	DB() interface{}
	Close() error
}
