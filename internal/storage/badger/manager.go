package badger

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
)

// Manager owns the badgerhold store and the storages built on it
type Manager struct {
	store     *badgerhold.Store
	sickLeave *SickLeaveStorage
	jobs      *JobStorage
	secrets   *SecretStorage
	logger    arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager opens the database at config.Path. With ResetOnStartup the
// directory is removed first.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	if config.ResetOnStartup {
		if err := os.RemoveAll(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to reset database directory")
		}
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info().
		Str("path", config.Path).
		Bool("reset", config.ResetOnStartup).
		Msg("Badger storage opened")

	return &Manager{
		store:     store,
		sickLeave: NewSickLeaveStorage(store, logger),
		jobs:      NewJobStorage(store, logger),
		secrets:   NewSecretStorage(store, logger),
		logger:    logger,
	}, nil
}

func (m *Manager) SickLeaveStorage() interfaces.SickLeaveStorage {
	return m.sickLeave
}

func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.secrets
}

// DB returns the *badgerhold.Store; the badger queue backend shares its DB
func (m *Manager) DB() interface{} {
	return m.store
}

func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}
