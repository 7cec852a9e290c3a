package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/extractor"
)

// stubLLM returns a fixed reply or error and records prompts
type stubLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	opts    []*interfaces.CompletionOptions

	// during runs while the completion is in flight
	during func()
}

func (s *stubLLM) Complete(ctx context.Context, prompt string, opts *interfaces.CompletionOptions) (*interfaces.Completion, error) {
	if s.during != nil {
		s.during()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.Completion{Text: s.reply, Provider: "stub"}, nil
}

func (s *stubLLM) Provider() string { return "stub" }

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// memoryStorage is an in-memory SickLeaveStorage
type memoryStorage struct {
	mu      sync.Mutex
	records map[string]*models.SickLeave
	saveErr error
	saves   int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{records: make(map[string]*models.SickLeave)}
}

func (m *memoryStorage) FindByID(ctx context.Context, id string) (*models.SickLeave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Clone(), nil
}

func (m *memoryStorage) Save(ctx context.Context, record *models.SickLeave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *memoryStorage) SaveAnalysis(ctx context.Context, id string, basedOn time.Time, analysis *models.AnalysisResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return false, m.saveErr
	}
	stored, ok := m.records[id]
	if !ok || !stored.UpdatedAt.Equal(basedOn) {
		return false, nil
	}
	m.saves++
	result := *analysis
	stored.Analysis = &result
	stored.UpdatedAt = stored.UpdatedAt.Add(time.Second)
	return true, nil
}

// seed stores record and returns the snapshot a caller would load
func (m *memoryStorage) seed(record *models.SickLeave) *models.SickLeave {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record.Clone()
	return record.Clone()
}

func (m *memoryStorage) Create(ctx context.Context, record *models.SickLeave) error {
	return m.Save(ctx, record)
}

func (m *memoryStorage) List(ctx context.Context, limit int) ([]*models.SickLeave, error) {
	return nil, nil
}

func fluRecord() *models.SickLeave {
	return &models.SickLeave{
		ID:          "rec-flu-001",
		Username:    "Budi Santoso",
		Position:    "Staf IT",
		Institution: "PT Contoh",
		Reason:      "Flu",
		Age:         30,
		Gender:      models.GenderMale,
		Date:        time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
}

func newTestService(llm interfaces.LLMService, storage interfaces.SickLeaveStorage) *Service {
	logger := arbor.NewLogger()
	svc := NewService(llm, storage, extractor.NewExtractor(nil, logger), logger)
	svc.now = func() time.Time { return time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnalyze_WrappedJSON(t *testing.T) {
	llm := &stubLLM{reply: `here is the result: {"summary":"...","recommendation":"rest 2 days"}`}
	storage := newMemoryStorage()
	svc := newTestService(llm, storage)

	record := storage.seed(fluRecord())
	result, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, "...", result.Summary)
	assert.Equal(t, "rest 2 days", result.Recommendation)
	assert.Equal(t, DefaultNote, result.Note)

	require.Len(t, llm.opts, 1)
	assert.Equal(t, 0.3, llm.opts[0].Temperature)
	assert.Equal(t, 1000, llm.opts[0].MaxTokens)
	assert.Contains(t, llm.prompts[0], "Keluhan Utama: Flu")
	assert.Contains(t, llm.prompts[0], "Jenis Kelamin: Laki-laki")

	saved, _ := storage.FindByID(context.Background(), record.ID)
	require.NotNil(t, saved.Analysis)
	assert.Equal(t, "rest 2 days", saved.Analysis.Recommendation)
}

func TestAnalyze_IndonesianKeys(t *testing.T) {
	llm := &stubLLM{reply: "```json\n{\"analisis\":\"Demam ringan\",\"rekomendasi\":\"Istirahat 2 hari\",\"catatan\":\"Minum air\"}\n```"}
	svc := newTestService(llm, newMemoryStorage())

	result, err := svc.Analyze(context.Background(), fluRecord())
	require.NoError(t, err)
	assert.Equal(t, "Demam ringan", result.Summary)
	assert.Equal(t, "Istirahat 2 hari", result.Recommendation)
	assert.Equal(t, "Minum air", result.Note)
}

func TestAnalyze_UpstreamErrorUsesFallback(t *testing.T) {
	llm := &stubLLM{err: errors.New("dial tcp: connection refused")}
	storage := newMemoryStorage()
	svc := newTestService(llm, storage)

	record := storage.seed(fluRecord())
	result, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "flu")
	assert.Equal(t, "Pasien Budi Santoso (30 tahun) melaporkan flu. Berdasarkan keluhan yang dilaporkan, diperlukan istirahat untuk pemulihan optimal.", result.Summary)
	assert.Equal(t, fallbackRecommendation, result.Recommendation)
	assert.Equal(t, fallbackNote, result.Note)
	assert.Equal(t, 1, storage.saves)
}

func TestAnalyze_UnparseableUsesFallback(t *testing.T) {
	for _, reply := range []string{"", "maaf, saya tidak bisa", `{"summary":"cut off`} {
		svc := newTestService(&stubLLM{reply: reply}, newMemoryStorage())

		result, err := svc.Analyze(context.Background(), fluRecord())
		require.NoError(t, err, reply)
		assert.True(t, result.Complete(), reply)
		assert.Contains(t, result.Summary, "flu", reply)
	}
}

func TestAnalyze_FallbackMentionsFirstAnswer(t *testing.T) {
	record := fluRecord()
	record.Answers = []models.Answer{{QuestionID: "q1", Answer: "3 hari"}}

	result := FallbackAnalysis(record)
	assert.True(t, strings.HasPrefix(result.Summary, "Pasien Budi Santoso (30 tahun) melaporkan flu yang telah berlangsung selama 3 hari."))
}

func TestAnalyze_Idempotent(t *testing.T) {
	llm := &stubLLM{reply: `{"summary":"s","recommendation":"r"}`}
	storage := newMemoryStorage()
	svc := newTestService(llm, storage)

	record := storage.seed(fluRecord())
	_, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)

	reloaded, _ := storage.FindByID(context.Background(), record.ID)
	again, err := svc.Analyze(context.Background(), reloaded)
	require.NoError(t, err)

	assert.Equal(t, "s", again.Summary)
	assert.Equal(t, 1, llm.calls())
	assert.Equal(t, 1, storage.saves)
}

func TestAnalyze_SaveErrorPropagates(t *testing.T) {
	storage := newMemoryStorage()
	storage.saveErr = errors.New("disk full")
	svc := newTestService(&stubLLM{reply: `{"summary":"s","recommendation":"r"}`}, storage)

	_, err := svc.Analyze(context.Background(), fluRecord())
	assert.ErrorIs(t, err, storage.saveErr)
}

func TestAnalyze_KeepsAnswersSavedDuringGeneration(t *testing.T) {
	storage := newMemoryStorage()
	record := storage.seed(fluRecord())

	llm := &stubLLM{reply: `{"summary":"s","recommendation":"r"}`}
	llm.during = func() {
		fresh, _ := storage.FindByID(context.Background(), record.ID)
		fresh.Answers = []models.Answer{{QuestionID: "q1", Answer: "3 hari"}}
		fresh.UpdatedAt = fresh.UpdatedAt.Add(time.Minute)
		_ = storage.Save(context.Background(), fresh)
	}
	svc := newTestService(llm, storage)

	result, err := svc.Analyze(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "r", result.Recommendation)

	stored, _ := storage.FindByID(context.Background(), record.ID)
	require.Len(t, stored.Answers, 1)
	assert.Equal(t, "3 hari", stored.Answers[0].Answer)
	assert.Nil(t, stored.Analysis)
}

func TestGenerateQuestions(t *testing.T) {
	tests := []struct {
		name  string
		llm   *stubLLM
		want  int
		first string
	}{
		{
			name:  "plain array",
			llm:   &stubLLM{reply: `["Sejak kapan?", "Apakah demam?", "Sudah minum obat?"]`},
			want:  3,
			first: "Sejak kapan?",
		},
		{
			name:  "capped at five",
			llm:   &stubLLM{reply: `Berikut: ["a?","b?","c?","d?","e?","f?"]`},
			want:  5,
			first: "a?",
		},
		{
			name:  "objects with text",
			llm:   &stubLLM{reply: `[{"text":"x?"},{"question":"y?"},{"text":"z?"}]`},
			want:  3,
			first: "x?",
		},
		{
			name:  "too few falls back",
			llm:   &stubLLM{reply: `["only one?"]`},
			want:  len(defaultQuestions),
			first: defaultQuestions[0],
		},
		{
			name:  "upstream error falls back",
			llm:   &stubLLM{err: errors.New("timeout")},
			want:  len(defaultQuestions),
			first: defaultQuestions[0],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.llm, newMemoryStorage())
			questions := svc.GenerateQuestions(context.Background(), fluRecord())

			require.Len(t, questions, tt.want)
			assert.Equal(t, tt.first, questions[0].Text)
			assert.Equal(t, "q1", questions[0].ID)
			assert.Equal(t, "open-ended", questions[0].Type)
			assert.Equal(t, "q2", questions[1].ID)
		})
	}
}

func TestComposeLetter_MergesOverDefaults(t *testing.T) {
	llm := &stubLLM{reply: `{"subject":"Permohonan Izin Sakit - Budi","emailContent":{"mainBody":{"paragraph1":"Paragraf satu."},"contactInfo":{"phone":""}}}`}
	svc := newTestService(llm, newMemoryStorage())

	record := fluRecord()
	record.PhoneNumber = "08123"
	record.ContactEmail = "budi@example.com"

	letter := svc.ComposeLetter(context.Background(), record, "hr@example.com")

	assert.Equal(t, "Permohonan Izin Sakit - Budi", letter.Subject)
	assert.True(t, strings.HasPrefix(letter.Body, "Kepada Yth.\nPimpinan/Atasan\nPT Contoh"))
	assert.Contains(t, letter.Body, "Paragraf satu.")
	assert.Contains(t, letter.Body, "terhitung mulai tanggal 2/3/2026 hingga 5/3/2026")
	assert.Contains(t, letter.Body, "No. Telepon: 08123")
	assert.Contains(t, letter.Body, "Email: budi@example.com")
	assert.Contains(t, letter.Body, "3 Maret 2026\n\nHormat saya,")
}

func TestComposeLetter_Fallback(t *testing.T) {
	svc := newTestService(&stubLLM{err: errors.New("offline")}, newMemoryStorage())
	record := fluRecord()
	record.Analysis = &models.AnalysisResult{Summary: "Pasien demam.", Recommendation: "istirahat 2 hari", Note: "Minum air."}

	letter := svc.ComposeLetter(context.Background(), record, "hr@example.com")

	assert.Equal(t, "Permohonan Izin Sakit - Budi Santoso - 2/3/2026", letter.Subject)
	assert.Contains(t, letter.Body, "Berdasarkan hasil pemeriksaan dokter, Pasien demam. Minum air.")
	assert.Contains(t, letter.Body, "Sesuai dengan rekomendasi dokter, istirahat 2 hari,")
	assert.Contains(t, letter.Body, "mengalami Flu yang membutuhkan perawatan medis")
}

func TestNormalizeAnswers(t *testing.T) {
	out, err := NormalizeAnswers([]models.Answer{{QuestionID: " q1 ", Answer: "  3 hari "}})
	require.NoError(t, err)
	assert.Equal(t, []models.Answer{{QuestionID: "q1", Answer: "3 hari"}}, out)

	_, err = NormalizeAnswers(nil)
	assert.ErrorIs(t, err, ErrInvalidAnswers)

	_, err = NormalizeAnswers([]models.Answer{{Answer: "x"}})
	assert.ErrorIs(t, err, ErrInvalidAnswers)
}

func TestGenderLabel(t *testing.T) {
	assert.Equal(t, "Laki-laki", GenderLabel("male"))
	assert.Equal(t, "Perempuan", GenderLabel("female"))
	assert.Equal(t, "Lainnya", GenderLabel("other"))
}
