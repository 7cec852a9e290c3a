package handlers

import (
	"context"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
)

// ArtifactPipeline is the artifact surface the PDF and email routes need
type ArtifactPipeline interface {
	interfaces.ArtifactService
	DeliverCached(ctx context.Context, recordID, recipient string) error
}

// JobQueue enqueues background jobs and reports their state
type JobQueue interface {
	Add(ctx context.Context, jobType string, payload interface{}, opts *models.JobOptions) (*models.QueueJob, error)
	GetJob(ctx context.Context, jobID string) (*models.QueueJob, error)
}

// QuestionGenerator produces follow-up questions for a new record
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, record *models.SickLeave) []models.Question
}
