package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/analysis"
)

// SickLeaveForm is the submission body of POST /api/sick-leaves
type SickLeaveForm struct {
	FullName     string `json:"fullName" validate:"required"`
	Position     string `json:"position"`
	Institution  string `json:"institution"`
	StartDate    string `json:"startDate" validate:"required"`
	SickReason   string `json:"sickReason" validate:"required"`
	OtherReason  string `json:"otherReason"`
	Gender       string `json:"gender" validate:"required,oneof=male female other"`
	Age          int    `json:"age" validate:"min=1,max=130"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	PhoneNumber  string `json:"phoneNumber"`
}

// SickLeaveHandler handles record submission and answers
type SickLeaveHandler struct {
	records   interfaces.SickLeaveStorage
	questions QuestionGenerator
	artifacts interfaces.ArtifactService
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewSickLeaveHandler creates a new sick leave handler
func NewSickLeaveHandler(records interfaces.SickLeaveStorage, questions QuestionGenerator, artifactService interfaces.ArtifactService, logger arbor.ILogger) *SickLeaveHandler {
	return &SickLeaveHandler{
		records:   records,
		questions: questions,
		artifacts: artifactService,
		validate:  validator.New(),
		logger:    logger,
	}
}

// parseStartDate accepts a calendar date or an RFC 3339 timestamp
func parseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CreateHandler handles POST /api/sick-leaves
func (h *SickLeaveHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var form SickLeaveForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	form.FullName = strings.TrimSpace(form.FullName)
	form.SickReason = strings.TrimSpace(form.SickReason)
	form.Gender = strings.ToLower(strings.TrimSpace(form.Gender))

	if err := h.validate.Struct(form); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := parseStartDate(form.StartDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Tanggal mulai tidak valid")
		return
	}

	record := &models.SickLeave{
		Username:     form.FullName,
		Position:     strings.TrimSpace(form.Position),
		Institution:  strings.TrimSpace(form.Institution),
		Reason:       form.SickReason,
		OtherReason:  strings.TrimSpace(form.OtherReason),
		Date:         date,
		Gender:       form.Gender,
		Age:          form.Age,
		ContactEmail: strings.TrimSpace(form.ContactEmail),
		PhoneNumber:  strings.TrimSpace(form.PhoneNumber),
	}

	ctx := r.Context()
	if err := h.records.Create(ctx, record); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to create sick leave record")
		return
	}

	record.Questions = h.questions.GenerateQuestions(ctx, record)
	if err := h.records.Save(ctx, record); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to save follow-up questions")
		return
	}

	h.logger.Info().
		Str("record_id", record.ID).
		Int("questions", len(record.Questions)).
		Msg("Sick leave form submitted")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Sick leave form submitted successfully",
		"formId":    record.ID,
		"questions": record.Questions,
		"sickLeave": record,
	})
}

// ListHandler handles GET /api/sick-leaves
func (h *SickLeaveHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	records, err := h.records.List(r.Context(), GetLimitParam(r, 50, 500))
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list sick leave records")
		return
	}
	if records == nil {
		records = []*models.SickLeave{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// GetHandler handles GET /api/sick-leaves/{id}
func (h *SickLeaveHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := PathID(r.URL.Path, "/api/sick-leaves/")
	record, err := h.records.FindByID(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to load sick leave record")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "Form tidak ditemukan")
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// AnswersHandler handles POST /api/sick-leaves/{id}/answers
func (h *SickLeaveHandler) AnswersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Answers []models.Answer `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answers, err := analysis.NormalizeAnswers(req.Answers)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	id := PathID(r.URL.Path, "/api/sick-leaves/")
	record, err := h.records.FindByID(ctx, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to load sick leave record")
		return
	}
	if record == nil {
		WriteError(w, http.StatusNotFound, "Form tidak ditemukan")
		return
	}

	// New answers make any earlier analysis and letter stale
	record.Answers = answers
	record.Analysis = nil
	if err := h.records.Save(ctx, record); err != nil {
		WriteServiceError(w, h.logger, err, "Gagal menyimpan jawaban")
		return
	}
	if err := h.artifacts.Invalidate(ctx, record.ID); err != nil {
		h.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Failed to invalidate artifact after answers")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Jawaban berhasil disimpan",
		"formId":  record.ID,
	})
}

