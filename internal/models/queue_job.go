package models

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state reported for a queued job
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
	JobStatePaused    JobState = "paused"
)

// IsTerminal reports whether no further processing will happen
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobOptions controls retries, timeout and retention of a job
type JobOptions struct {
	Attempts         int           `json:"attempts"`
	BackoffDelay     time.Duration `json:"backoffDelay"`
	Timeout          time.Duration `json:"timeout"`
	Delay            time.Duration `json:"delay,omitempty"`
	RemoveOnComplete bool          `json:"removeOnComplete"`
}

// QueueJob is the persisted status record of a render or delivery job
type QueueJob struct {
	ID          string          `json:"id"`
	Type        string          `json:"type" badgerhold:"index"`
	RecordID    string          `json:"recordId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Options     JobOptions      `json:"options"`
	State       JobState        `json:"state" badgerhold:"index"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LastError   string          `json:"lastError,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	NextRunAt   *time.Time      `json:"nextRunAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
