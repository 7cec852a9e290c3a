package interfaces

import (
	"context"

	"github.com/ternarybob/sicknote/internal/models"
)

// JobQueue schedules render and delivery jobs and reports their status
type JobQueue interface {
	// Add stores a job status record and schedules it; nil opts uses the job type defaults
	Add(ctx context.Context, jobType string, payload interface{}, opts *models.JobOptions) (*models.QueueJob, error)

	// GetJob returns the job status record or an error wrapping the queue's not-found sentinel
	GetJob(ctx context.Context, jobID string) (*models.QueueJob, error)

	Pause()
	Resume()
}
