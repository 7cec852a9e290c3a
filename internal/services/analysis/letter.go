package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/models"
	"github.com/ternarybob/sicknote/internal/services/extractor"
)

const (
	letterTemperature = 0.5
	defaultRecipient  = "Pimpinan/Atasan"
	defaultLeaveDays  = 3
)

type letterBody struct {
	Paragraph1 string `json:"paragraph1"`
	Paragraph2 string `json:"paragraph2"`
	Paragraph3 string `json:"paragraph3"`
}

type letterContact struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type letterContent struct {
	Recipient   string         `json:"recipient"`
	Name        string         `json:"name"`
	Position    string         `json:"position"`
	Institution string         `json:"institution"`
	MainBody    *letterBody    `json:"mainBody"`
	ContactInfo *letterContact `json:"contactInfo"`
}

type letterPayload struct {
	Subject      string         `json:"subject" validate:"required"`
	EmailContent *letterContent `json:"emailContent" validate:"required"`
}

// ComposeLetter builds the formal Indonesian letter sent with the artifact.
// Generated fields are merged over defaults derived from the record.
func (s *Service) ComposeLetter(ctx context.Context, record *models.SickLeave, recipient string) models.LetterContent {
	defaults := defaultLetter(record)
	fallback := func() letterPayload {
		return letterPayload{Subject: defaultSubject(record), EmailContent: &defaults}
	}

	var payload letterPayload
	completion, err := s.llm.Complete(ctx, buildLetterPrompt(record), &interfaces.CompletionOptions{
		System:      letterSystemPrompt,
		Temperature: letterTemperature,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", record.ID).Msg("Letter generation failed, using default letter")
		payload = fallback()
	} else {
		payload, _ = extractor.Extract(s.extractor, "letter", completion.Text, nil, fallback)
	}

	content := mergeLetter(payload.EmailContent, &defaults)

	s.logger.Debug().
		Str("record_id", record.ID).
		Str("recipient", recipient).
		Str("subject", payload.Subject).
		Msg("Letter composed")

	return models.LetterContent{
		Subject: strings.TrimSpace(payload.Subject),
		Body:    s.formatLetter(content),
	}
}

func defaultSubject(record *models.SickLeave) string {
	return fmt.Sprintf("Permohonan Izin Sakit - %s - %s", record.Username, common.FormatDateShort(record.Date))
}

func defaultLetter(record *models.SickLeave) letterContent {
	analysis := record.Analysis
	if analysis == nil {
		analysis = &models.AnalysisResult{}
	}

	start := record.Date
	end := start.AddDate(0, 0, defaultLeaveDays)

	reason := record.Reason
	if record.OtherReason != "" {
		reason += " (" + record.OtherReason + ")"
	}

	return letterContent{
		Recipient:   defaultRecipient,
		Name:        record.Username,
		Position:    record.Position,
		Institution: record.Institution,
		MainBody: &letterBody{
			Paragraph1: fmt.Sprintf(
				"Saya, %s, yang berjabatan sebagai %s di %s, dengan ini mengajukan permohonan izin sakit. Permohonan ini diajukan karena saya sedang mengalami %s yang membutuhkan perawatan medis.",
				record.Username, record.Position, record.Institution, reason),
			Paragraph2: fmt.Sprintf(
				"Berdasarkan hasil pemeriksaan dokter, %s. %s",
				strings.TrimSuffix(or(analysis.Summary, "kondisi kesehatan saya memerlukan istirahat untuk pemulihan optimal"), "."),
				or(analysis.Note, "Saya akan mengikuti semua anjuran medis yang diberikan untuk memastikan pemulihan yang cepat.")),
			Paragraph3: fmt.Sprintf(
				"Sesuai dengan rekomendasi dokter, %s, terhitung mulai tanggal %s hingga %s. Saya berkomitmen untuk kembali bekerja setelah kondisi kesehatan saya pulih sepenuhnya.",
				or(analysis.Recommendation, "saya memerlukan waktu istirahat untuk pemulihan"),
				common.FormatDateShort(start), common.FormatDateShort(end)),
		},
		ContactInfo: &letterContact{
			Phone: record.PhoneNumber,
			Email: record.ContactEmail,
		},
	}
}

// mergeLetter fills every empty generated field from defaults
func mergeLetter(generated, defaults *letterContent) letterContent {
	if generated == nil {
		return *defaults
	}

	out := letterContent{
		Recipient:   or(generated.Recipient, defaults.Recipient),
		Name:        or(generated.Name, defaults.Name),
		Position:    or(generated.Position, defaults.Position),
		Institution: or(generated.Institution, defaults.Institution),
		MainBody:    defaults.MainBody,
		ContactInfo: &letterContact{
			Phone: defaults.ContactInfo.Phone,
			Email: defaults.ContactInfo.Email,
		},
	}

	if b := generated.MainBody; b != nil {
		out.MainBody = &letterBody{
			Paragraph1: or(b.Paragraph1, defaults.MainBody.Paragraph1),
			Paragraph2: or(b.Paragraph2, defaults.MainBody.Paragraph2),
			Paragraph3: or(b.Paragraph3, defaults.MainBody.Paragraph3),
		}
	}
	if c := generated.ContactInfo; c != nil {
		out.ContactInfo.Phone = or(c.Phone, defaults.ContactInfo.Phone)
		out.ContactInfo.Email = or(c.Email, defaults.ContactInfo.Email)
	}

	return out
}

func (s *Service) formatLetter(content letterContent) string {
	parts := []string{
		fmt.Sprintf("Kepada Yth.\n%s\n%s", content.Recipient, content.Institution),
		"Dengan hormat,",
		content.MainBody.Paragraph1,
		content.MainBody.Paragraph2,
		content.MainBody.Paragraph3,
		"Untuk informasi lebih lanjut, saya dapat dihubungi melalui:\n" +
			fmt.Sprintf("\nNo. Telepon: %s", content.ContactInfo.Phone) +
			fmt.Sprintf("\nEmail: %s", content.ContactInfo.Email),
		"Demikian permohonan ini saya sampaikan. Atas perhatian dan kebijaksanaan Bapak/Ibu, saya ucapkan terima kasih.",
		fmt.Sprintf("%s\n\nHormat saya,\n\n\n\n%s\n%s\n%s",
			common.FormatDateLong(s.now()), content.Name, content.Position, content.Institution),
	}

	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func or(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
