package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/queue"
	"github.com/ternarybob/sicknote/internal/services/artifacts"
	"github.com/ternarybob/sicknote/internal/services/cache"
	"github.com/ternarybob/sicknote/internal/services/limiter"
)

type fakePipeline struct {
	mu        sync.Mutex
	handles   map[string]*models.ArtifactHandle
	genErr    error
	delivered []string
}

func (f *fakePipeline) Generate(ctx context.Context, recordID string) (*models.ArtifactHandle, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[recordID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifacts.ErrRecordNotFound, recordID)
	}
	return h, nil
}

func (f *fakePipeline) Cached(ctx context.Context, recordID string) (*models.ArtifactHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[recordID]
	if !ok || !h.Cached {
		return nil, false
	}
	return h, true
}

func (f *fakePipeline) Invalidate(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.handles[recordID]; ok {
		h.Cached = false
	}
	return nil
}

func (f *fakePipeline) Deliver(ctx context.Context, recordID, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, recordID+"->"+recipient)
	return nil
}

func (f *fakePipeline) DeliverCached(ctx context.Context, recordID, recipient string) error {
	return f.Deliver(ctx, recordID, recipient)
}

func (f *fakePipeline) CacheStats() interfaces.CacheStats {
	return interfaces.CacheStats{Hits: 2, Misses: 1, KeyCount: 1}
}

type fakeQueue struct {
	mu    sync.Mutex
	added []*models.QueueJob
	opts  []*models.JobOptions
	jobs  map[string]*models.QueueJob
}

func (q *fakeQueue) Add(ctx context.Context, jobType string, payload interface{}, opts *models.JobOptions) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, _ := json.Marshal(payload)
	job := &models.QueueJob{
		ID:      fmt.Sprintf("job-%d", len(q.added)+1),
		Type:    jobType,
		Payload: data,
		State:   models.JobStateWaiting,
	}
	q.added = append(q.added, job)
	q.opts = append(q.opts, opts)
	return job, nil
}

func (q *fakeQueue) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, jobID)
}

func newArtifactFixture(t *testing.T) (*ArtifactHandler, *fakePipeline, *fakeQueue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "surat_rec-1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3 test"), 0644))

	pipeline := &fakePipeline{handles: map[string]*models.ArtifactHandle{
		"rec-1": {RecordID: "rec-1", FilePath: path, Cached: true, ExpiresAt: time.Now().Add(time.Hour)},
		"rec-2": {RecordID: "rec-2", FilePath: path},
	}}
	q := &fakeQueue{jobs: map[string]*models.QueueJob{}}
	return NewArtifactHandler(pipeline, q, "http://localhost:5000/", arbor.NewLogger()), pipeline, q, path
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"record not found", fmt.Errorf("wrap: %w", artifacts.ErrRecordNotFound), http.StatusNotFound},
		{"job not found", queue.ErrJobNotFound, http.StatusNotFound},
		{"rate limit", limiter.ErrRateLimitExceeded, http.StatusServiceUnavailable},
		{"not cached", artifacts.ErrArtifactNotCached, http.StatusBadRequest},
		{"invalid cache argument", fmt.Errorf("wrap: %w", cache.ErrInvalidCacheArgument), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestPathID(t *testing.T) {
	assert.Equal(t, "abc", PathID("/api/sick-leaves/abc/pdf/jobs", "/api/sick-leaves/"))
	assert.Equal(t, "abc", PathID("/api/jobs/abc", "/api/jobs/"))
	assert.Equal(t, "", PathID("/other/abc", "/api/jobs/"))
}

func TestGeneratePDFHandler(t *testing.T) {
	h, _, _, path := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.GeneratePDFHandler(rec, httptest.NewRequest("GET", "/api/sick-leaves/rec-1/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, path, body["path"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "http://localhost:5000/api/download/pdf/rec-1", body["pdfUrl"])
}

func TestGeneratePDFHandler_WithEmail(t *testing.T) {
	h, pipeline, _, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.GeneratePDFHandler(rec, httptest.NewRequest("GET", "/api/sick-leaves/rec-1/pdf?email=hr@example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"rec-1->hr@example.com"}, pipeline.delivered)
}

func TestGeneratePDFHandler_ErrorMapping(t *testing.T) {
	h, pipeline, _, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.GeneratePDFHandler(rec, httptest.NewRequest("GET", "/api/sick-leaves/missing/pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pipeline.genErr = fmt.Errorf("render: %w", limiter.ErrRateLimitExceeded)
	rec = httptest.NewRecorder()
	h.GeneratePDFHandler(rec, httptest.NewRequest("GET", "/api/sick-leaves/rec-1/pdf", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueuePDFHandler(t *testing.T) {
	h, _, q, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.QueuePDFHandler(rec, httptest.NewRequest("POST", "/api/sick-leaves/rec-1/pdf/jobs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, q.added)

	rec = httptest.NewRecorder()
	h.QueuePDFHandler(rec, httptest.NewRequest("POST", "/api/sick-leaves/rec-2/pdf/jobs", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.added, 1)
	assert.Equal(t, queue.JobTypeGeneratePDF, q.added[0].Type)
	assert.JSONEq(t, `{"recordId":"rec-2"}`, string(q.added[0].Payload))
}

func TestQueueEmailHandler(t *testing.T) {
	h, _, q, _ := newArtifactFixture(t)

	body := bytes.NewBufferString(`{"email":"hr@example.com"}`)
	rec := httptest.NewRecorder()
	h.QueueEmailHandler(rec, httptest.NewRequest("POST", "/api/sick-leaves/rec-1/email", body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, q.added, 1)
	assert.Equal(t, queue.JobTypeSendEmail, q.added[0].Type)
	require.NotNil(t, q.opts[0])
	assert.Equal(t, 3, q.opts[0].Attempts)
	assert.Equal(t, 2*time.Second, q.opts[0].BackoffDelay)
	assert.Equal(t, 5*time.Minute, q.opts[0].Timeout)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["jobId"])
	assert.Equal(t, "Email dalam antrian", resp["message"])
}

func TestQueueEmailHandler_RequiresCachedArtifact(t *testing.T) {
	h, _, q, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.QueueEmailHandler(rec, httptest.NewRequest("POST", "/api/sick-leaves/rec-2/email",
		bytes.NewBufferString(`{"email":"hr@example.com"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, q.added)

	rec = httptest.NewRecorder()
	h.QueueEmailHandler(rec, httptest.NewRequest("POST", "/api/sick-leaves/rec-1/email",
		bytes.NewBufferString(`{"email":"not-an-email"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadHandler(t *testing.T) {
	h, _, _, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest("GET", "/api/download/pdf/rec-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), artifacts.AttachmentFilename)
	assert.Equal(t, "%PDF-1.3 test", rec.Body.String())

	rec = httptest.NewRecorder()
	h.DownloadHandler(rec, httptest.NewRequest("GET", "/api/download/pdf/rec-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateAndStats(t *testing.T) {
	h, pipeline, _, _ := newArtifactFixture(t)

	rec := httptest.NewRecorder()
	h.InvalidateHandler(rec, httptest.NewRequest("DELETE", "/api/cache/pdf/rec-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, pipeline.handles["rec-1"].Cached)

	rec = httptest.NewRecorder()
	h.CacheStatsHandler(rec, httptest.NewRequest("GET", "/api/cache/stats", nil))
	assert.JSONEq(t, `{"hits":2,"misses":1,"keys":1}`, rec.Body.String())
}

type fakeControl struct{ paused bool }

func (c *fakeControl) Pause()         { c.paused = true }
func (c *fakeControl) Resume()        { c.paused = false }
func (c *fakeControl) IsPaused() bool { return c.paused }

func TestGetJobHandler(t *testing.T) {
	q := &fakeQueue{jobs: map[string]*models.QueueJob{
		"job-1": {ID: "job-1", Type: queue.JobTypeSendEmail, State: models.JobStateCompleted, Progress: 100},
		"job-2": {ID: "job-2", Type: queue.JobTypeGeneratePDF, State: models.JobStateFailed, LastError: "boom"},
	}}
	h := NewJobHandler(q, &fakeControl{}, nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest("GET", "/api/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Email berhasil dikirim", body["message"])
	assert.Equal(t, float64(100), body["progress"])

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest("GET", "/api/jobs/job-2", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Pembuatan surat gagal", body["message"])
	assert.Equal(t, "boom", body["error"])

	rec = httptest.NewRecorder()
	h.GetJobHandler(rec, httptest.NewRequest("GET", "/api/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Email sedang dikirim", statusMessage(queue.JobTypeSendEmail, models.JobStateActive))
	assert.Equal(t, "Pengiriman email ditunda", statusMessage(queue.JobTypeSendEmail, models.JobStateDelayed))
	assert.Equal(t, "Pengiriman email dijeda", statusMessage(queue.JobTypeSendEmail, models.JobStatePaused))
	assert.Equal(t, "Status tidak diketahui", statusMessage(queue.JobTypeSendEmail, models.JobState("weird")))
}

func TestPauseResumeHandlers(t *testing.T) {
	control := &fakeControl{}
	h := NewJobHandler(&fakeQueue{}, control, nil, arbor.NewLogger())

	h.PauseHandler(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/jobs/pause", nil))
	assert.True(t, control.paused)
	h.ResumeHandler(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/jobs/resume", nil))
	assert.False(t, control.paused)
}
