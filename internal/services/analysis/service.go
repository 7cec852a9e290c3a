// Package analysis derives the medical summary, follow-up questions and
// cover letter for a sick-leave record from text-generation output.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/extractor"
)

const (
	analysisTemperature = 0.3
	analysisMaxTokens   = 1000

	// DefaultNote is used when the generated analysis has no note
	DefaultNote = "Tidak ada catatan tambahan"

	fallbackRecommendation = "Direkomendasikan untuk istirahat selama 1-2 hari dan menghindari aktivitas yang memberatkan."
	fallbackNote           = "Harap segera konsultasi dengan dokter jika keluhan memberat atau tidak membaik dalam 48 jam."
)

// Service implements AnalysisService
type Service struct {
	llm       interfaces.LLMService
	storage   interfaces.SickLeaveStorage
	extractor *extractor.Extractor
	logger    arbor.ILogger

	// now is replaceable in tests
	now func() time.Time
}

var _ interfaces.AnalysisService = (*Service)(nil)

// NewService creates the analysis service
func NewService(llm interfaces.LLMService, storage interfaces.SickLeaveStorage, ext *extractor.Extractor, logger arbor.ILogger) *Service {
	return &Service{
		llm:       llm,
		storage:   storage,
		extractor: ext,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze returns the record's analysis. An existing complete analysis is
// returned without calling the text-generation service. A new analysis,
// generated or fallback, is saved onto the record unless the stored record
// changed after the snapshot was taken.
func (s *Service) Analyze(ctx context.Context, record *models.SickLeave) (*models.AnalysisResult, error) {
	if record == nil {
		return nil, fmt.Errorf("record is required")
	}

	if record.HasAnalysis() {
		result := *record.Analysis
		if strings.TrimSpace(result.Note) == "" {
			result.Note = DefaultNote
		}
		s.logger.Debug().Str("record_id", record.ID).Msg("Analysis already present, skipping generation")
		return &result, nil
	}

	s.logger.Info().
		Str("record_id", record.ID).
		Str("reason", record.Reason).
		Int("age", record.Age).
		Str("gender", record.Gender).
		Bool("has_answers", len(record.Answers) > 0).
		Msg("Processing analysis")

	fallback := func() models.AnalysisResult { return FallbackAnalysis(record) }

	var result models.AnalysisResult
	completion, err := s.llm.Complete(ctx, buildAnalysisPrompt(record), &interfaces.CompletionOptions{
		System:      analysisSystemPrompt,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Analysis generation failed, using fallback analysis")
		result = fallback()
	} else {
		var parsed extractor.ParseResult[models.AnalysisResult]
		result, parsed = extractor.Extract(s.extractor, "analysis", completion.Text, nil, fallback)
		s.logger.Debug().Str("record_id", record.ID).Str("stage", string(parsed.Stage)).Msg("Analysis parsed")
	}

	if strings.TrimSpace(result.Note) == "" {
		result.Note = DefaultNote
	}

	applied, err := s.storage.SaveAnalysis(ctx, record.ID, record.UpdatedAt, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	record.Analysis = &result

	if !applied {
		s.logger.Warn().Str("record_id", record.ID).Msg("Record changed during analysis, result not saved")
		return &result, nil
	}

	s.logger.Info().Str("record_id", record.ID).Msg("Successfully saved analysis")
	return &result, nil
}

// FallbackAnalysis builds the deterministic analysis used when generation fails
func FallbackAnalysis(record *models.SickLeave) models.AnalysisResult {
	var summary strings.Builder
	fmt.Fprintf(&summary, "Pasien %s (%d tahun) melaporkan %s", record.Username, record.Age, strings.ToLower(record.Reason))
	if len(record.Answers) > 0 {
		fmt.Fprintf(&summary, " yang telah berlangsung selama %s.", record.Answers[0].Answer)
	} else {
		summary.WriteString(".")
	}
	summary.WriteString(" Berdasarkan keluhan yang dilaporkan, diperlukan istirahat untuk pemulihan optimal.")

	return models.AnalysisResult{
		Summary:        summary.String(),
		Recommendation: fallbackRecommendation,
		Note:           fallbackNote,
	}
}
