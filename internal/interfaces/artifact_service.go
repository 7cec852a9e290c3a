package interfaces

import (
	"context"

	"github.com/ternarybob/sicknote/internal/models"
)

// ArtifactService generates, caches and delivers sick-leave letters
type ArtifactService interface {
	// Generate returns the cached artifact or renders it.
	// Concurrent calls for the same record share one render.
	Generate(ctx context.Context, recordID string) (*models.ArtifactHandle, error)

	// Cached returns a live, on-disk artifact without rendering
	Cached(ctx context.Context, recordID string) (*models.ArtifactHandle, bool)

	// Invalidate drops the cached handle for the record
	Invalidate(ctx context.Context, recordID string) error

	// Deliver ensures the artifact exists and emails it to the recipient
	Deliver(ctx context.Context, recordID, recipient string) error

	CacheStats() CacheStats
}
