package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/sicknote/internal/models"
)

// Job types
const (
	JobTypeGeneratePDF = "generate_pdf"
	JobTypeSendEmail   = "send_email"
)

var (
	// ErrNoMessage is returned when the queue is empty
	ErrNoMessage = models.ErrNoMessage

	// ErrJobNotFound is returned when no status record exists for a job id
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTimeout marks an attempt that ran past the job timeout
	ErrJobTimeout = errors.New("job timed out")

	// ErrNoHandler marks a job whose type has no registered handler
	ErrNoHandler = errors.New("no handler registered for job type")
)

// Message is what backends carry: a job id and the attempt it schedules.
type Message = models.QueueMessage

// ProgressFunc reports handler progress in percent (clamped to 0..100)
type ProgressFunc func(percent int)

// Handler runs one attempt of a job. The returned value is stored as the
// job result.
type Handler func(ctx context.Context, job *models.QueueJob, progress ProgressFunc) (interface{}, error)

// DeliverFunc is called by a backend for every message that is due. A nil
// return consumes the message; an error leaves redelivery to the backend.
type DeliverFunc func(ctx context.Context, msg Message) error

// Backend transports job ids and releases them at or after their due time
type Backend interface {
	Enqueue(ctx context.Context, msg Message, at time.Time) error
	Start(deliver DeliverFunc) error
	Stop() error
	Name() string
}

// DefaultJobOptions returns the retry, timeout and retention defaults for a job type
func DefaultJobOptions(jobType string) models.JobOptions {
	switch jobType {
	case JobTypeSendEmail:
		return models.JobOptions{
			Attempts:         5,
			BackoffDelay:     5 * time.Second,
			Timeout:          10 * time.Minute,
			RemoveOnComplete: true,
		}
	default:
		return models.JobOptions{
			Attempts:         3,
			BackoffDelay:     2 * time.Second,
			Timeout:          5 * time.Minute,
			RemoveOnComplete: true,
		}
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that must not be retried
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
