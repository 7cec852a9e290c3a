// Package pdf renders the sick-leave letter ("surat keterangan sakit").
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/metrics"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/analysis"
	"github.com/ternarybob/sicknote/internal/services/limiter"
)

const (
	pageMargin   = 50.0
	bulletIndent = 20.0
	bodyFont     = "Helvetica"
	bodySize     = 11.0
	bodyLine     = 16.0
	labelWidth   = 120.0
)

// DocumentGenerationError wraps every failure while producing a document
type DocumentGenerationError struct {
	RecordID string
	Err      error
}

func (e *DocumentGenerationError) Error() string {
	return fmt.Sprintf("failed to generate document for record %s: %v", e.RecordID, e.Err)
}

func (e *DocumentGenerationError) Unwrap() error {
	return e.Err
}

// Service implements interfaces.DocumentRenderer
type Service struct {
	limiter interfaces.ResourceLimiter
	config  common.RendererConfig
	metrics *metrics.Collector
	logger  arbor.ILogger

	now func() time.Time

	// onStage observes render start and end inside the limiter slot
	onStage func(recordID, stage string)
}

// Compile-time assertion
var _ interfaces.DocumentRenderer = (*Service)(nil)

// NewService creates a new PDF service
func NewService(lim interfaces.ResourceLimiter, config common.RendererConfig, collector *metrics.Collector, logger arbor.ILogger) *Service {
	return &Service{
		limiter: lim,
		config:  config,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Render writes the letter for record to destinationPath. The file appears
// at destinationPath only once it is complete and passes validation.
func (s *Service) Render(ctx context.Context, record *models.SickLeave, result *models.AnalysisResult, destinationPath string) (*models.RenderResult, error) {
	recordID := ""
	if record != nil {
		recordID = record.ID
	}

	start := time.Now()
	s.logger.Info().Str("record_id", recordID).Str("path", destinationPath).Msg("Starting PDF generation")

	var out *models.RenderResult
	err := s.limiter.WithSlot(ctx, limiter.ResourcePDFGeneration, func(ctx context.Context) error {
		s.stage(recordID, "start")
		defer s.stage(recordID, "end")

		var err error
		out, err = s.render(ctx, record, result, destinationPath)
		return err
	})

	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RenderFinished("error", elapsed)
		s.logger.Error().
			Err(err).
			Str("record_id", recordID).
			Dur("duration", elapsed).
			Msg("Error generating PDF")
		return nil, &DocumentGenerationError{RecordID: recordID, Err: err}
	}

	out.Duration = elapsed
	s.metrics.RenderFinished("success", elapsed)
	s.logger.Info().
		Str("record_id", recordID).
		Str("path", out.Path).
		Int("pages", out.Pages).
		Int64("bytes", out.Bytes).
		Dur("duration", elapsed).
		Msg("PDF generated successfully")

	return out, nil
}

func (s *Service) render(ctx context.Context, record *models.SickLeave, result *models.AnalysisResult, destinationPath string) (*models.RenderResult, error) {
	if record == nil {
		return nil, errors.New("record is required")
	}
	if !result.Complete() {
		return nil, errors.New("analysis with summary and recommendation is required")
	}
	if destinationPath == "" {
		return nil, errors.New("destination path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := s.build(record, result)
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("failed to build document: %w", err)
	}

	dir := filepath.Dir(destinationPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destinationPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := doc.Output(tmp); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close document: %w", err)
	}

	if err := api.ValidateFile(tmpPath, nil); err != nil {
		return nil, fmt.Errorf("document failed validation: %w", err)
	}
	pages, err := api.PageCountFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		return nil, fmt.Errorf("failed to move document into place: %w", err)
	}
	committed = true

	return &models.RenderResult{
		Path:  destinationPath,
		Pages: pages,
		Bytes: info.Size(),
	}, nil
}

// build lays out the letter
func (s *Service) build(record *models.SickLeave, result *models.AnalysisResult) *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetTitle("Surat Keterangan Sakit", true)
	doc.SetAuthor(s.config.Doctor, true)
	doc.SetCreationDate(s.now())
	doc.AddPage()

	tr := doc.UnicodeTranslatorFromDescriptor("")
	md := newMarkdownWriter(doc, tr, s.logger, bodySize, bodyLine)

	// Header
	doc.SetFont(bodyFont, "B", 16)
	doc.CellFormat(0, 22, tr("SURAT KETERANGAN SAKIT"), "", 1, "C", false, 0, "")
	doc.SetFont(bodyFont, "B", 12)
	doc.CellFormat(0, 18, tr(ReferenceNumber(record, s.now())), "", 1, "C", false, 0, "")
	doc.Ln(24)

	// Data Pasien
	s.sectionHeader(doc, tr, "DATA PASIEN")
	s.field(doc, tr, "Nama Lengkap", record.Username)
	s.field(doc, tr, "Jenis Kelamin", analysis.GenderLabel(record.Gender))
	s.field(doc, tr, "Usia", fmt.Sprintf("%d tahun", record.Age))
	s.field(doc, tr, "Institusi / Jabatan", joinNonEmpty(" / ", record.Institution, record.Position))
	doc.Ln(18)

	// Hasil Pemeriksaan
	s.sectionHeader(doc, tr, "HASIL PEMERIKSAAN")
	s.field(doc, tr, "Anamnesis", record.FullReason())
	doc.Ln(4)
	doc.SetFont(bodyFont, "", bodySize)
	doc.CellFormat(0, bodyLine, tr("Pemeriksaan Klinis:"), "", 1, "L", false, 0, "")
	if err := md.write(bulletList(ClinicalFindings(result.Summary))); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to render clinical findings")
	}
	doc.Ln(4)
	s.field(doc, tr, "Diagnosis", record.Reason)
	doc.Ln(18)

	// Rekomendasi
	s.sectionHeader(doc, tr, "REKOMENDASI MEDIS")
	if err := md.write(result.Recommendation); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to render recommendation")
	}
	if note := strings.TrimSpace(result.Note); note != "" {
		doc.SetFont(bodyFont, "I", bodySize)
		doc.CellFormat(0, bodyLine, tr("Catatan:"), "", 1, "L", false, 0, "")
		if err := md.write(note); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to render note")
		}
	}
	doc.Ln(18)

	// Tanda tangan
	doc.SetFont(bodyFont, "", bodySize)
	doc.CellFormat(0, bodyLine, tr(fmt.Sprintf("%s, %s", s.config.City, common.FormatDateLong(s.now()))), "", 1, "R", false, 0, "")
	doc.CellFormat(0, bodyLine, tr("Dokter Pemeriksa,"), "", 1, "R", false, 0, "")
	doc.Ln(30)
	doc.SetFont(bodyFont, "B", bodySize)
	doc.CellFormat(0, bodyLine, tr(s.config.Doctor), "", 1, "R", false, 0, "")
	doc.SetFont(bodyFont, "", 8)
	doc.CellFormat(0, 12, tr(s.config.LicenseNumber), "", 1, "R", false, 0, "")

	// Footer
	doc.Ln(24)
	doc.SetFont(bodyFont, "", 7)
	doc.SetTextColor(128, 128, 128)
	doc.CellFormat(0, 10, tr(s.config.Footer), "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)

	return doc
}

func (s *Service) sectionHeader(doc *fpdf.Fpdf, tr func(string) string, title string) {
	doc.SetFont(bodyFont, "BU", 12)
	doc.CellFormat(0, 18, tr(title), "", 1, "L", false, 0, "")
	doc.Ln(4)
}

func (s *Service) field(doc *fpdf.Fpdf, tr func(string) string, label, value string) {
	doc.SetFont(bodyFont, "", bodySize)
	doc.CellFormat(labelWidth, bodyLine, tr(label), "", 0, "L", false, 0, "")
	doc.CellFormat(10, bodyLine, ":", "", 0, "L", false, 0, "")
	doc.MultiCell(0, bodyLine, tr(value), "", "L", false)
}

func (s *Service) stage(recordID, stage string) {
	if s.onStage != nil {
		s.onStage(recordID, stage)
	}
}

// ReferenceNumber formats "Nomor: SKS/{year}/{last 6 chars of id}"
func ReferenceNumber(record *models.SickLeave, now time.Time) string {
	year := now.Year()
	if !record.CreatedAt.IsZero() {
		year = record.CreatedAt.Year()
	}
	id := record.ID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return fmt.Sprintf("Nomor: SKS/%d/%s", year, strings.ToUpper(id))
}

// ClinicalFindings splits a summary into sentences, each ending with "."
func ClinicalFindings(summary string) []string {
	var findings []string
	for _, part := range strings.Split(summary, ". ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasSuffix(part, ".") {
			part += "."
		}
		findings = append(findings, part)
	}
	return findings
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}

func joinNonEmpty(sep string, values ...string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, sep)
}
