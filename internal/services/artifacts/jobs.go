package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/queue"
)

// RenderJobPayload is the payload of a generate_pdf job
type RenderJobPayload struct {
	RecordID string `json:"recordId"`
}

// DeliveryJobPayload is the payload of a send_email job
type DeliveryJobPayload struct {
	RecordID string `json:"recordId"`
	Email    string `json:"email"`
}

// JobRegistrar is satisfied by *queue.Manager
type JobRegistrar interface {
	RegisterHandler(jobType string, handler queue.Handler)
}

// RegisterJobs installs the render and delivery handlers on the queue
func (s *Service) RegisterJobs(q JobRegistrar) {
	q.RegisterHandler(queue.JobTypeGeneratePDF, s.handleRender)
	q.RegisterHandler(queue.JobTypeSendEmail, s.handleDelivery)
}

func (s *Service) handleRender(ctx context.Context, job *models.QueueJob, progress queue.ProgressFunc) (interface{}, error) {
	var payload RenderJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Permanent(fmt.Errorf("invalid render payload: %w", err))
	}
	progress(10)

	handle, err := s.Generate(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}

	progress(100)
	return handle, nil
}

func (s *Service) handleDelivery(ctx context.Context, job *models.QueueJob, progress queue.ProgressFunc) (interface{}, error) {
	var payload DeliveryJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, queue.Permanent(fmt.Errorf("invalid delivery payload: %w", err))
	}
	progress(10)

	handle, err := s.Generate(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}
	progress(50)

	if err := s.send(ctx, handle, payload.Email); err != nil {
		return nil, err
	}

	progress(100)
	return map[string]string{"recipient": payload.Email, "path": handle.FilePath}, nil
}
