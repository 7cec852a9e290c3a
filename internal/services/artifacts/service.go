// Package artifacts turns sick-leave records into rendered, cached and
// delivered letters.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/cache"
)

// AttachmentFilename is the name the letter carries in emails and downloads
const AttachmentFilename = "Surat_Izin_Sakit.pdf"

var (
	// ErrRecordNotFound is returned when no sick-leave record has the given id
	ErrRecordNotFound = errors.New("sick leave record not found")

	// ErrArtifactNotCached is returned when a cached artifact is required but absent
	ErrArtifactNotCached = errors.New("artifact not cached")
)

// Service implements interfaces.ArtifactService
type Service struct {
	records   interfaces.SickLeaveStorage
	analysis  interfaces.AnalysisService
	renderer  interfaces.DocumentRenderer
	cache     interfaces.ArtifactCache
	mailer    interfaces.Mailer
	outputDir string
	ttl       time.Duration
	logger    arbor.ILogger

	flights singleflight.Group

	// mu guards generations and renderLocks. A generation is bumped by
	// Invalidate; a render started under an older one is not cached.
	mu          sync.Mutex
	generations map[string]uint64
	renderLocks map[string]*sync.Mutex

	now func() time.Time
}

// Compile-time assertion
var _ interfaces.ArtifactService = (*Service)(nil)

// NewService creates the artifact pipeline. A ttl of zero or less uses the cache default.
func NewService(
	records interfaces.SickLeaveStorage,
	analysis interfaces.AnalysisService,
	renderer interfaces.DocumentRenderer,
	artifactCache interfaces.ArtifactCache,
	mailer interfaces.Mailer,
	outputDir string,
	ttl time.Duration,
	logger arbor.ILogger,
) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{
		records:   records,
		analysis:  analysis,
		renderer:  renderer,
		cache:     artifactCache,
		mailer:    mailer,
		outputDir: outputDir,
		ttl:       ttl,
		logger:    logger,

		generations: make(map[string]uint64),
		renderLocks: make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

// Generate returns the cached artifact or renders it. Concurrent misses for
// the same record share one render, which runs detached from ctx so a
// cancelled caller does not abort it.
func (s *Service) Generate(ctx context.Context, recordID string) (*models.ArtifactHandle, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRecordNotFound)
	}

	if handle, ok := s.Cached(ctx, recordID); ok {
		return handle, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(recordID, func() (interface{}, error) {
		return s.generate(detached, recordID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		handle := *res.Val.(*models.ArtifactHandle)
		if res.Shared {
			s.logger.Debug().Str("record_id", recordID).Msg("Joined in-flight render")
		}
		return &handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) generate(ctx context.Context, recordID string) (*models.ArtifactHandle, error) {
	// A render begun before the last Invalidate may still be writing the file
	lock := s.renderLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	generation := s.generation(recordID)

	// A flight that finished just before this one started may have filled the cache
	if handle, ok := s.Cached(ctx, recordID); ok {
		return handle, nil
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	analysis, err := s.analysis.Analyze(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze record: %w", err)
	}

	path := s.artifactPath(recordID)
	result, err := s.renderer.Render(ctx, record, analysis, path)
	if err != nil {
		return nil, err
	}

	now := s.now()
	handle := &models.ArtifactHandle{
		RecordID:  recordID,
		FilePath:  result.Path,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Pages:     result.Pages,
	}

	data, err := json.Marshal(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact handle: %w", err)
	}

	s.mu.Lock()
	current := s.generations[recordID] == generation
	if current {
		err = s.cache.Set(cache.Key(models.ArtifactKindPDF, recordID), data, s.ttl)
	}
	s.mu.Unlock()

	if !current {
		s.logger.Info().Str("record_id", recordID).Msg("Record invalidated during render, artifact not cached")
		return handle, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", recordID).Msg("Failed to cache artifact handle")
	}

	s.logger.Info().
		Str("record_id", recordID).
		Str("path", handle.FilePath).
		Int("pages", handle.Pages).
		Msg("Artifact generated")

	return handle, nil
}

func (s *Service) generation(recordID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[recordID]
}

func (s *Service) renderLock(recordID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.renderLocks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		s.renderLocks[recordID] = lock
	}
	return lock
}

// Cached returns a live artifact whose file still exists. A cache entry
// pointing at a missing file is deleted and reported as a miss.
func (s *Service) Cached(ctx context.Context, recordID string) (*models.ArtifactHandle, bool) {
	key := cache.Key(models.ArtifactKindPDF, recordID)
	data, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}

	var handle models.ArtifactHandle
	if err := json.Unmarshal(data, &handle); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Dropping unreadable cache entry")
		_ = s.cache.Delete(key)
		return nil, false
	}

	if _, err := os.Stat(handle.FilePath); err != nil {
		s.logger.Warn().
			Str("record_id", recordID).
			Str("path", handle.FilePath).
			Msg("Cached artifact missing on disk, regenerating")
		_ = s.cache.Delete(key)
		return nil, false
	}

	handle.Cached = true
	return &handle, true
}

// Invalidate drops the cached handle and detaches any render in flight, so
// later callers get a fresh render and the old one is not cached. The file
// is replaced by the next render.
func (s *Service) Invalidate(ctx context.Context, recordID string) error {
	s.mu.Lock()
	s.generations[recordID]++
	s.flights.Forget(recordID)
	err := s.cache.Delete(cache.Key(models.ArtifactKindPDF, recordID))
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to invalidate artifact: %w", err)
	}
	s.logger.Debug().Str("record_id", recordID).Msg("Artifact invalidated")
	return nil
}

// Deliver ensures the artifact exists and emails it with a composed letter
func (s *Service) Deliver(ctx context.Context, recordID, recipient string) error {
	handle, err := s.Generate(ctx, recordID)
	if err != nil {
		return err
	}
	return s.send(ctx, handle, recipient)
}

// DeliverCached emails an artifact that is already cached
func (s *Service) DeliverCached(ctx context.Context, recordID, recipient string) error {
	handle, ok := s.Cached(ctx, recordID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrArtifactNotCached, recordID)
	}
	return s.send(ctx, handle, recipient)
}

func (s *Service) send(ctx context.Context, handle *models.ArtifactHandle, recipient string) error {
	record, err := s.records.FindByID(ctx, handle.RecordID)
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, handle.RecordID)
	}

	letter := s.analysis.ComposeLetter(ctx, record, recipient)

	return s.mailer.Deliver(ctx, &models.EmailMessage{
		To:      recipient,
		Subject: letter.Subject,
		Body:    letter.Body,
		Attachment: &models.EmailAttachment{
			Filename:    AttachmentFilename,
			ContentType: "application/pdf",
			Path:        handle.FilePath,
		},
	})
}

// CacheStats reports the artifact cache counters
func (s *Service) CacheStats() interfaces.CacheStats {
	return s.cache.Stats()
}

func (s *Service) artifactPath(recordID string) string {
	return filepath.Join(s.outputDir, "surat_"+filepath.Base(filepath.Clean("/"+recordID))+".pdf")
}
