package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/extractor"
)

const (
	minQuestions         = 3
	maxQuestions         = 5
	questionsTemperature = 0.7
	questionType         = "open-ended"
)

var defaultQuestions = []string{
	"Sejak kapan Anda mulai merasakan gejala ini?",
	"Seberapa berat gejala yang Anda rasakan (ringan, sedang, atau berat)?",
	"Apakah Anda sudah mengonsumsi obat untuk meredakan gejala tersebut?",
	"Apakah ada gejala lain yang menyertai keluhan utama Anda?",
}

// questionText accepts either a bare string or an object with a text field
type questionText string

func (q *questionText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = questionText(s)
		return nil
	}

	var obj struct {
		Text     string `json:"text"`
		Question string `json:"question"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*q = questionText(firstNonEmpty(obj.Text, obj.Question))
	return nil
}

func checkQuestions(items []questionText) error {
	n := 0
	for _, item := range items {
		if strings.TrimSpace(string(item)) != "" {
			n++
		}
	}
	if n < minQuestions {
		return fmt.Errorf("expected at least %d questions, got %d", minQuestions, n)
	}
	return nil
}

// GenerateQuestions returns 3 to 5 follow-up questions for the record
func (s *Service) GenerateQuestions(ctx context.Context, record *models.SickLeave) []models.Question {
	fallback := func() []questionText {
		out := make([]questionText, len(defaultQuestions))
		for i, q := range defaultQuestions {
			out[i] = questionText(q)
		}
		return out
	}

	var items []questionText
	completion, err := s.llm.Complete(ctx, buildQuestionsPrompt(record), &interfaces.CompletionOptions{
		System:      questionsSystemPrompt,
		Temperature: questionsTemperature,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Question generation failed, using default questions")
		items = fallback()
	} else {
		items, _ = extractor.Extract(s.extractor, "questions", completion.Text, checkQuestions, fallback)
	}

	return formatQuestions(items)
}

func formatQuestions(items []questionText) []models.Question {
	questions := make([]models.Question, 0, maxQuestions)
	for _, item := range items {
		text := strings.TrimSpace(string(item))
		if text == "" {
			continue
		}
		questions = append(questions, models.Question{
			ID:   fmt.Sprintf("q%d", len(questions)+1),
			Text: text,
			Type: questionType,
		})
		if len(questions) == maxQuestions {
			break
		}
	}
	return questions
}

// ErrInvalidAnswers is returned when submitted answers do not match the record
var ErrInvalidAnswers = errors.New("answers tidak valid")

// NormalizeAnswers trims answers and rejects empty submissions
func NormalizeAnswers(answers []models.Answer) ([]models.Answer, error) {
	if len(answers) == 0 {
		return nil, ErrInvalidAnswers
	}
	out := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		id := strings.TrimSpace(a.QuestionID)
		if id == "" {
			return nil, fmt.Errorf("%w: missing questionId", ErrInvalidAnswers)
		}
		out = append(out, models.Answer{QuestionID: id, Answer: strings.TrimSpace(a.Answer)})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
