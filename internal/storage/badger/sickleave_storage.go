package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
)

// SickLeaveStorage implements the SickLeaveStorage interface for Badger
type SickLeaveStorage struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

var _ interfaces.SickLeaveStorage = (*SickLeaveStorage)(nil)

// NewSickLeaveStorage creates a new SickLeaveStorage instance
func NewSickLeaveStorage(store *badgerhold.Store, logger arbor.ILogger) *SickLeaveStorage {
	return &SickLeaveStorage{
		store:  store,
		logger: logger,
	}
}

// FindByID returns the record or nil when it does not exist
func (s *SickLeaveStorage) FindByID(ctx context.Context, id string) (*models.SickLeave, error) {
	if id == "" {
		return nil, nil
	}
	var record models.SickLeave
	err := s.store.Get(id, &record)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sick leave: %w", err)
	}
	return &record, nil
}

// Create assigns an ID when missing and inserts the record
func (s *SickLeaveStorage) Create(ctx context.Context, record *models.SickLeave) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = models.SickLeaveStatusSubmitted
	}

	if err := s.store.Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to create sick leave: %w", err)
	}

	s.logger.Debug().Str("record_id", record.ID).Msg("Sick leave created")
	return nil
}

// Save upserts the record
func (s *SickLeaveStorage) Save(ctx context.Context, record *models.SickLeave) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	record.UpdatedAt = time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	if err := s.store.Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save sick leave: %w", err)
	}
	return nil
}

// SaveAnalysis re-reads the record and writes only the analysis in one
// transaction, so answers saved during generation are kept
func (s *SickLeaveStorage) SaveAnalysis(ctx context.Context, id string, basedOn time.Time, analysis *models.AnalysisResult) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("record ID is required")
	}
	if analysis == nil {
		return false, fmt.Errorf("analysis is required")
	}

	applied := false
	err := s.store.Badger().Update(func(tx *badgerdb.Txn) error {
		var record models.SickLeave
		err := s.store.TxGet(tx, id, &record)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if !record.UpdatedAt.Equal(basedOn) {
			return nil
		}

		result := *analysis
		record.Analysis = &result
		record.UpdatedAt = time.Now()
		if err := s.store.TxUpsert(tx, id, &record); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to save analysis: %w", err)
	}

	if !applied {
		s.logger.Debug().Str("record_id", id).Msg("Record changed since snapshot, analysis not attached")
	}
	return applied, nil
}

// List returns the newest records first
func (s *SickLeaveStorage) List(ctx context.Context, limit int) ([]*models.SickLeave, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.SickLeave
	if err := s.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list sick leaves: %w", err)
	}

	result := make([]*models.SickLeave, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
