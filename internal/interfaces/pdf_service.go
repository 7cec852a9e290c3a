package interfaces

import (
	"context"

	"github.com/ternarybob/sicknote/internal/models"
)

// DocumentRenderer writes the sick-leave letter for a record
type DocumentRenderer interface {
	// Render writes the document to destinationPath atomically.
	// It returns once, after the file is complete and validated.
	Render(ctx context.Context, record *models.SickLeave, analysis *models.AnalysisResult, destinationPath string) (*models.RenderResult, error)
}
