package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSickLeaveStorage_CreateFindSave(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	records := m.SickLeaveStorage()

	record := &models.SickLeave{Username: "Budi", Reason: "Demam"}
	require.NoError(t, records.Create(ctx, record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.SickLeaveStatusSubmitted, record.Status)

	found, err := records.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Budi", found.Username)

	found.Answers = []models.Answer{{QuestionID: "q1", Answer: "3 hari"}}
	require.NoError(t, records.Save(ctx, found))

	again, err := records.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, again.Answers, 1)
	assert.Equal(t, "3 hari", again.Answers[0].Answer)

	missing, err := records.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSickLeaveStorage_SaveAnalysisKeepsNewerAnswers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	records := m.SickLeaveStorage()

	record := &models.SickLeave{Username: "Budi", Reason: "Flu"}
	require.NoError(t, records.Create(ctx, record))

	snapshot, err := records.FindByID(ctx, record.ID)
	require.NoError(t, err)

	// answers land while the analysis is being generated from snapshot
	time.Sleep(2 * time.Millisecond)
	fresh, err := records.FindByID(ctx, record.ID)
	require.NoError(t, err)
	fresh.Answers = []models.Answer{{QuestionID: "q1", Answer: "3 hari"}}
	require.NoError(t, records.Save(ctx, fresh))

	applied, err := records.SaveAnalysis(ctx, record.ID, snapshot.UpdatedAt, &models.AnalysisResult{Summary: "s", Recommendation: "r"})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := records.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.Answers, 1)
	assert.Nil(t, stored.Analysis)

	applied, err = records.SaveAnalysis(ctx, record.ID, stored.UpdatedAt, &models.AnalysisResult{Summary: "s2", Recommendation: "r2"})
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err = records.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.Answers, 1)
	require.NotNil(t, stored.Analysis)
	assert.Equal(t, "r2", stored.Analysis.Recommendation)

	applied, err = records.SaveAnalysis(ctx, "missing", time.Now(), &models.AnalysisResult{Summary: "s"})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSickLeaveStorage_ListNewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	records := m.SickLeaveStorage()

	for _, name := range []string{"Ani", "Budi", "Citra"} {
		require.NoError(t, records.Create(ctx, &models.SickLeave{Username: name}))
		time.Sleep(2 * time.Millisecond)
	}

	list, err := records.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Citra", list[0].Username)
	assert.Equal(t, "Budi", list[1].Username)
}

func TestJobStorage_ListAndPurge(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	jobs := m.JobStorage()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	require.NoError(t, jobs.SaveJob(ctx, &models.QueueJob{ID: "a", Type: "generate_pdf", State: models.JobStateCompleted, CreatedAt: old, FinishedAt: &old}))
	require.NoError(t, jobs.SaveJob(ctx, &models.QueueJob{ID: "b", Type: "send_email", State: models.JobStateCompleted, CreatedAt: recent, FinishedAt: &recent}))
	require.NoError(t, jobs.SaveJob(ctx, &models.QueueJob{ID: "c", Type: "send_email", State: models.JobStateWaiting, CreatedAt: recent}))

	emails, err := jobs.ListJobs(ctx, &interfaces.JobListOptions{Type: "send_email"})
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	_, err = jobs.PurgeFinished(ctx, models.JobStateWaiting, time.Now())
	assert.Error(t, err)

	purged, err := jobs.PurgeFinished(ctx, models.JobStateCompleted, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	gone, err := jobs.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := jobs.GetJob(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestSecretStorage_CaseInsensitive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	secrets := m.KeyValueStorage()

	require.NoError(t, secrets.Set(ctx, "SMTP_Password", "s3cret", "test"))

	value, err := secrets.Get(ctx, "smtp_password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	names, err := secrets.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"smtp_password"}, names)

	require.NoError(t, secrets.Delete(ctx, "SMTP_PASSWORD"))
	_, err = secrets.Get(ctx, "smtp_password")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	assert.ErrorIs(t, secrets.Delete(ctx, "smtp_password"), interfaces.ErrKeyNotFound)
}

func TestLoadVariablesFromFiles(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables.toml"), []byte(`
[smtp_password]
value = "app-password"

[empty_key]
value = ""
`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "variables"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables", "llm.toml"), []byte(`
[gemini_api_key]
value = "gm-key"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables", "broken.toml"), []byte(`[[[`), 0644))

	loaded, err := m.LoadVariablesFromFiles(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	value, err := m.KeyValueStorage().Get(ctx, "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "gm-key", value)
}
