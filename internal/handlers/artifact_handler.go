package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/queue"
	"github.com/ternarybob/sicknote/internal/services/artifacts"
)

// emailJobOptions are applied to every send_email job queued over HTTP
var emailJobOptions = models.JobOptions{
	Attempts:         3,
	BackoffDelay:     2000 * time.Millisecond,
	Timeout:          5 * time.Minute,
	RemoveOnComplete: true,
}

// ArtifactHandler serves letter generation, download, delivery and cache routes
type ArtifactHandler struct {
	artifacts ArtifactPipeline
	jobs      JobQueue
	publicURL string
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewArtifactHandler creates a new artifact handler. publicURL prefixes the
// download links in responses; empty yields relative links.
func NewArtifactHandler(pipeline ArtifactPipeline, jobs JobQueue, publicURL string, logger arbor.ILogger) *ArtifactHandler {
	return &ArtifactHandler{
		artifacts: pipeline,
		jobs:      jobs,
		publicURL: strings.TrimRight(publicURL, "/"),
		validate:  validator.New(),
		logger:    logger,
	}
}

func (h *ArtifactHandler) downloadURL(recordID string) string {
	return h.publicURL + "/api/download/pdf/" + recordID
}

func (h *ArtifactHandler) artifactResponse(handle *models.ArtifactHandle) map[string]interface{} {
	return map[string]interface{}{
		"status":    "success",
		"path":      handle.FilePath,
		"cached":    handle.Cached,
		"pdfUrl":    h.downloadURL(handle.RecordID),
		"expiresAt": handle.ExpiresAt,
	}
}

// GeneratePDFHandler handles GET /api/sick-leaves/{id}/pdf[?email=]
func (h *ArtifactHandler) GeneratePDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	id := PathID(r.URL.Path, "/api/sick-leaves/")

	handle, err := h.artifacts.Generate(ctx, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to generate PDF")
		return
	}

	response := h.artifactResponse(handle)

	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		if err := h.validate.Var(email, "email"); err != nil {
			WriteError(w, http.StatusBadRequest, "Alamat email tidak valid")
			return
		}
		if err := h.artifacts.Deliver(ctx, id, email); err != nil {
			WriteServiceError(w, h.logger, err, "Failed to send PDF email")
			return
		}
		response["message"] = "PDF generated and sent to email successfully"
		response["email"] = email
	}

	WriteJSON(w, http.StatusOK, response)
}

// QueuePDFHandler handles POST /api/sick-leaves/{id}/pdf/jobs
func (h *ArtifactHandler) QueuePDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	ctx := r.Context()
	id := PathID(r.URL.Path, "/api/sick-leaves/")

	if handle, ok := h.artifacts.Cached(ctx, id); ok {
		WriteJSON(w, http.StatusOK, h.artifactResponse(handle))
		return
	}

	job, err := h.jobs.Add(ctx, queue.JobTypeGeneratePDF, artifacts.RenderJobPayload{RecordID: id}, nil)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to queue PDF generation")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "queued",
		"jobId":   job.ID,
		"message": "Surat dalam antrian",
	})
}

// QueueEmailHandler handles POST /api/sick-leaves/{id}/email.
// The artifact must already be cached.
func (h *ArtifactHandler) QueueEmailHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "Alamat email tidak valid")
		return
	}

	ctx := r.Context()
	id := PathID(r.URL.Path, "/api/sick-leaves/")

	if _, ok := h.artifacts.Cached(ctx, id); !ok {
		WriteError(w, http.StatusBadRequest, "PDF belum dibuat, silakan buat PDF terlebih dahulu")
		return
	}

	opts := emailJobOptions
	job, err := h.jobs.Add(ctx, queue.JobTypeSendEmail, artifacts.DeliveryJobPayload{RecordID: id, Email: req.Email}, &opts)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to queue email delivery")
		return
	}

	h.logger.Info().
		Str("record_id", id).
		Str("job_id", job.ID).
		Msg("Email delivery queued")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "queued",
		"jobId":   job.ID,
		"message": statusMessage(job.Type, job.State),
	})
}

// DownloadHandler handles GET /api/download/pdf/{id}
func (h *ArtifactHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := PathID(r.URL.Path, "/api/download/pdf/")
	handle, ok := h.artifacts.Cached(r.Context(), id)
	if !ok {
		WriteError(w, http.StatusNotFound, "PDF tidak ditemukan")
		return
	}

	f, err := os.Open(handle.FilePath)
	if err != nil {
		WriteError(w, http.StatusNotFound, "PDF tidak ditemukan")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to read PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifacts.AttachmentFilename+`"`)
	w.Header().Set("Cache-Control", "max-age=3600")
	http.ServeContent(w, r, artifacts.AttachmentFilename, info.ModTime(), f)
}

// InvalidateHandler handles DELETE /api/cache/pdf/{id}
func (h *ArtifactHandler) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := PathID(r.URL.Path, "/api/cache/pdf/")
	if err := h.artifacts.Invalidate(r.Context(), id); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to invalidate cache")
		return
	}
	WriteSuccess(w, "Cache PDF dihapus")
}

// CacheStatsHandler handles GET /api/cache/stats
func (h *ArtifactHandler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.artifacts.CacheStats())
}
