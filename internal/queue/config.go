package queue

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

// NewBackend creates the queue backend selected by config.Backend. db is
// only used by the badger backend.
func NewBackend(config common.QueueConfig, db *badger.DB, logger arbor.ILogger) (Backend, error) {
	switch config.Backend {
	case "", "badger":
		return NewBadgerBackend(
			db,
			config.QueueName,
			config.VisibilityTimeout.Duration,
			config.Concurrency,
			config.PollInterval.Duration,
			logger,
		)
	case "redis":
		return NewAsynqBackend(config.Redis, config.QueueName, config.Concurrency, logger), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s (expected 'badger' or 'redis')", config.Backend)
	}
}
