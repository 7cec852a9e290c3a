package interfaces

import (
	"context"

	"github.com/ternarybob/sicknote/internal/models"
)

// AnalysisService derives structured content from a sick-leave record.
// Each operation falls back to deterministic content when the
// text-generation service is unavailable or returns unusable output.
type AnalysisService interface {
	// Analyze returns the record's analysis, generating and saving it when absent
	Analyze(ctx context.Context, record *models.SickLeave) (*models.AnalysisResult, error)

	// GenerateQuestions returns 3 to 5 follow-up questions for the record
	GenerateQuestions(ctx context.Context, record *models.SickLeave) []models.Question

	// ComposeLetter builds the formal email letter sent with the artifact
	ComposeLetter(ctx context.Context, record *models.SickLeave, recipient string) models.LetterContent
}
