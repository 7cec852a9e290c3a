package queue

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ternarybob/sicknote/internal/common"
)

// Start launches the polling workers of the Badger backend
func (m *BadgerBackend) Start(deliver DeliverFunc) error {
	m.logger.Info().
		Int("concurrency", m.concurrency).
		Dur("poll_interval", m.pollInterval).
		Str("queue", m.queueName).
		Msg("Starting badger queue workers")

	for i := 0; i < m.concurrency; i++ {
		workerID := i
		m.wg.Add(1)
		common.SafeGo(m.logger, "badger-queue-worker", func() {
			defer m.wg.Done()
			m.worker(workerID, deliver)
		})
	}

	return nil
}

// worker polls for due messages until the backend stops
func (m *BadgerBackend) worker(workerID int, deliver DeliverFunc) {
	// Spread workers evenly across the poll interval
	staggerDelay := (m.pollInterval / time.Duration(m.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-time.After(staggerDelay):
		case <-m.ctx.Done():
			return
		}
	}

	m.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain everything that is due before waiting for the next tick
			for m.ctx.Err() == nil {
				if err := m.processMessage(workerID, deliver); err != nil {
					// Conflicts mean another worker claimed the same message
					if !errors.Is(err, ErrNoMessage) && !errors.Is(err, badger.ErrConflict) {
						m.logger.Warn().
							Err(err).
							Int("worker_id", workerID).
							Msg("Error processing message")
					}
					break
				}
			}
		}
	}
}

// processMessage receives and delivers a single message
func (m *BadgerBackend) processMessage(workerID int, deliver DeliverFunc) error {
	msg, deleteFn, err := m.receive()
	if err != nil {
		return err
	}

	if err := deliver(m.ctx, *msg); err != nil {
		// Left in place, the visibility timeout redelivers it
		m.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Int("worker_id", workerID).
			Msg("Delivery failed, message will be redelivered")
		return nil
	}

	if err := deleteFn(); err != nil {
		m.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to delete message after processing")
	}
	return nil
}
