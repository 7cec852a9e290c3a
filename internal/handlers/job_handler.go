package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/queue"
)

// QueueControl pauses and resumes job processing
type QueueControl interface {
	Pause()
	Resume()
	IsPaused() bool
}

// JobHandler handles job-related API requests
type JobHandler struct {
	jobs       JobQueue
	control    QueueControl
	jobStorage interfaces.JobStorage
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobQueue, control QueueControl, jobStorage interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:       jobs,
		control:    control,
		jobStorage: jobStorage,
		logger:     logger,
	}
}

var emailStatusMessages = map[models.JobState]string{
	models.JobStateCompleted: "Email berhasil dikirim",
	models.JobStateFailed:    "Pengiriman email gagal",
	models.JobStateActive:    "Email sedang dikirim",
	models.JobStateWaiting:   "Email dalam antrian",
	models.JobStateDelayed:   "Pengiriman email ditunda",
	models.JobStatePaused:    "Pengiriman email dijeda",
}

var pdfStatusMessages = map[models.JobState]string{
	models.JobStateCompleted: "Surat berhasil dibuat",
	models.JobStateFailed:    "Pembuatan surat gagal",
	models.JobStateActive:    "Surat sedang dibuat",
	models.JobStateWaiting:   "Surat dalam antrian",
	models.JobStateDelayed:   "Pembuatan surat ditunda",
	models.JobStatePaused:    "Pembuatan surat dijeda",
}

// statusMessage returns the human-readable message for a job state
func statusMessage(jobType string, state models.JobState) string {
	messages := emailStatusMessages
	if jobType == queue.JobTypeGeneratePDF {
		messages = pdfStatusMessages
	}
	if msg, ok := messages[state]; ok {
		return msg
	}
	return "Status tidak diketahui"
}

func jobResponse(job *models.QueueJob) map[string]interface{} {
	response := map[string]interface{}{
		"jobId":       job.ID,
		"type":        job.Type,
		"recordId":    job.RecordID,
		"state":       job.State,
		"progress":    job.Progress,
		"attempts":    job.Attempts,
		"maxAttempts": job.MaxAttempts,
		"message":     statusMessage(job.Type, job.State),
		"createdAt":   job.CreatedAt,
	}
	if job.LastError != "" {
		response["error"] = job.LastError
	}
	if len(job.Result) > 0 {
		response["result"] = job.Result
	}
	if job.FinishedAt != nil {
		response["finishedAt"] = job.FinishedAt
	}
	if job.NextRunAt != nil && job.State == models.JobStateDelayed {
		response["nextRunAt"] = job.NextRunAt
	}
	return response
}

// GetJobHandler returns a single job by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathID(r.URL.Path, "/api/jobs/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, jobResponse(job))
}

// ListJobsHandler returns recent jobs
// GET /api/jobs?type=send_email&state=failed&limit=50
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query()
	jobs, err := h.jobStorage.ListJobs(r.Context(), &interfaces.JobListOptions{
		Type:  query.Get("type"),
		State: models.JobState(query.Get("state")),
		Limit: GetLimitParam(r, 50, 500),
	})
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list jobs")
		return
	}

	items := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobResponse(job))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   items,
		"paused": h.control.IsPaused(),
	})
}

// PauseHandler handles POST /api/jobs/pause
func (h *JobHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	h.control.Pause()
	WriteSuccess(w, "Antrian dijeda")
}

// ResumeHandler handles POST /api/jobs/resume
func (h *JobHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	h.control.Resume()
	WriteSuccess(w, "Antrian dilanjutkan")
}
