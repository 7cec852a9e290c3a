// Package cache provides the process-local artifact cache.
// Entries live in an in-memory Badger instance and expire after a TTL.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/metrics"
)

const (
	// DefaultTTL is the artifact lifetime when none is configured
	DefaultTTL = time.Hour

	// DefaultSweepInterval is how often expired entries are removed
	DefaultSweepInterval = 120 * time.Second

	// physicalGrace keeps entries in badger slightly past their logical expiry
	// so the read-time check always decides
	physicalGrace = time.Second
)

// ErrInvalidCacheArgument is returned for an empty key, empty value or negative ttl
var ErrInvalidCacheArgument = errors.New("invalid cache argument")

// entry is the stored envelope around a cached value
type entry struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Service is the artifact cache
type Service struct {
	db      *badger.DB
	logger  arbor.ILogger
	metrics *metrics.Collector

	hits   atomic.Uint64
	misses atomic.Uint64

	// now is replaceable in tests
	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ interfaces.ArtifactCache = (*Service)(nil)

// NewService opens an in-memory cache. A zero sweepInterval uses
// DefaultSweepInterval.
func NewService(sweepInterval time.Duration, collector *metrics.Collector, logger arbor.ILogger) (*Service, error) {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	s := &Service{
		db:      db,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	s.wg.Add(1)
	common.SafeGo(logger, "cacheSweep", func() {
		defer s.wg.Done()
		s.sweepLoop(sweepInterval)
	})

	logger.Debug().
		Dur("sweep_interval", sweepInterval).
		Msg("Artifact cache initialized")

	return s, nil
}

// Key builds the cache key for an artifact kind and id
func Key(kind, id string) string {
	return kind + "_" + id
}

// Get returns the value for a live entry
func (s *Service) Get(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	var e entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})

	if err == nil && !e.expired(s.now()) {
		s.hits.Add(1)
		s.metrics.CacheHit()
		s.logger.Debug().Str("key", key).Msg("Cache hit")
		return e.Value, true
	}

	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read cache entry")
	}

	s.misses.Add(1)
	s.metrics.CacheMiss()
	s.logger.Debug().Str("key", key).Msg("Cache miss")
	return nil, false
}

// Set stores value under key for ttl, which must be positive
func (s *Service) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCacheArgument)
	}
	if len(value) == 0 {
		return fmt.Errorf("%w: empty value for key %s", ErrInvalidCacheArgument, key)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive ttl %s", ErrInvalidCacheArgument, ttl)
	}

	now := s.now()
	data, err := json.Marshal(entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl + physicalGrace))
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	s.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache entry stored")
	return nil
}

// Delete removes an entry; deleting a missing key is not an error
func (s *Service) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCacheArgument)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Flush removes every entry
func (s *Service) Flush() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	s.logger.Debug().Msg("Cache flushed")
	return nil
}

// Stats returns hit/miss counters and the number of live keys
func (s *Service) Stats() interfaces.CacheStats {
	count := 0
	now := s.now()
	_ = s.scan(func(_ []byte, e *entry) {
		if !e.expired(now) {
			count++
		}
	})

	return interfaces.CacheStats{
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		KeyCount: count,
	}
}

// Sweep deletes expired entries and returns how many were removed
func (s *Service) Sweep() (int, error) {
	now := s.now()
	var expired [][]byte
	if err := s.scan(func(key []byte, e *entry) {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}); err != nil {
		return 0, fmt.Errorf("failed to scan cache: %w", err)
	}

	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete expired entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush expired entries: %w", err)
	}

	return len(expired), nil
}

// Close stops the sweeper and releases the store
func (s *Service) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	return s.db.Close()
}

func (s *Service) scan(fn func(key []byte, e *entry)) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable cache entry")
				continue
			}
			fn(item.KeyCopy(nil), &e)
		}
		return nil
	})
}

func (s *Service) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			removed, err := s.Sweep()
			if err != nil {
				s.logger.Warn().Err(err).Msg("Cache sweep failed")
				continue
			}
			if removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("Cache sweep removed expired entries")
			}
		}
	}
}
