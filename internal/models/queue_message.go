package models

import (
	"errors"
)

// ErrNoMessage is returned when no queue message is ready
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the queue backend.
// It only routes to the job status record, which holds everything else.
type QueueMessage struct {
	JobID   string `json:"job_id"`
	Attempt int    `json:"attempt"`
}
