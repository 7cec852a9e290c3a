package analysis

import (
	"fmt"
	"strings"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/models"
)

const (
	analysisSystemPrompt  = "Anda adalah dokter yang memberikan analisis medis profesional dalam format JSON yang valid dan terstruktur."
	questionsSystemPrompt = "Anda adalah asisten medis yang membantu menganalisis kondisi pasien yang mengajukan izin sakit."
	letterSystemPrompt    = "Anda adalah penulis surat profesional yang akan membuat surat izin sakit formal dalam format JSON dengan proper line breaks."
)

// GenderLabel returns the Indonesian label for a gender value
func GenderLabel(gender string) string {
	switch strings.ToLower(gender) {
	case models.GenderMale:
		return "Laki-laki"
	case models.GenderFemale:
		return "Perempuan"
	default:
		return "Lainnya"
	}
}

func formatAnswers(answers []models.Answer) string {
	if len(answers) == 0 {
		return "Tidak ada jawaban tambahan"
	}
	lines := make([]string, 0, len(answers))
	for _, a := range answers {
		lines = append(lines, fmt.Sprintf("%s: %s", a.QuestionID, a.Answer))
	}
	return strings.Join(lines, "\n")
}

func buildAnalysisPrompt(record *models.SickLeave) string {
	var b strings.Builder
	b.WriteString("Berikan analisis medis profesional untuk pasien dengan data berikut:\n\n")
	b.WriteString("INFORMASI PASIEN\n")
	fmt.Fprintf(&b, "Keluhan Utama: %s\n", record.Reason)
	if record.OtherReason != "" {
		fmt.Fprintf(&b, "Keluhan Tambahan: %s\n", record.OtherReason)
	}
	fmt.Fprintf(&b, "Usia: %d tahun\n", record.Age)
	fmt.Fprintf(&b, "Jenis Kelamin: %s\n\n", GenderLabel(record.Gender))
	b.WriteString("HASIL WAWANCARA MEDIS\n")
	b.WriteString(formatAnswers(record.Answers))
	b.WriteString(`

Berikan analisis dalam format JSON berikut:
{
  "analisis": "Analisis lengkap kondisi pasien berdasarkan keluhan dan jawaban (3-4 kalimat)",
  "rekomendasi": "Rekomendasi konkret termasuk durasi istirahat dan tindakan yang diperlukan (1-2 kalimat)",
  "catatan": "Catatan tambahan untuk pencegahan atau hal yang perlu diperhatikan (1 kalimat)"
}

PANDUAN ANALISIS:
1. Fokus pada korelasi antara gejala dan jawaban pasien
2. Pertimbangkan faktor usia dan gender
3. Berikan rekomendasi spesifik dan terukur
4. Sertakan langkah pencegahan yang relevan

Berikan respons dalam format JSON yang valid.`)
	return b.String()
}

func buildQuestionsPrompt(record *models.SickLeave) string {
	var b strings.Builder
	b.WriteString("Sebagai asisten medis, buatkan 3-5 pertanyaan lanjutan berdasarkan informasi pasien berikut:\n")
	fmt.Fprintf(&b, "- Gejala: %s\n", record.FullReason())
	fmt.Fprintf(&b, "- Jenis Kelamin: %s\n", GenderLabel(record.Gender))
	fmt.Fprintf(&b, "- Umur: %d\n\n", record.Age)
	b.WriteString("Berikan pertanyaan dalam format array JSON sederhana. Contoh:\n")
	b.WriteString(`["Pertanyaan 1?", "Pertanyaan 2?", "Pertanyaan 3?"]`)
	return b.String()
}

func buildLetterPrompt(record *models.SickLeave) string {
	analysis := record.Analysis
	if analysis == nil {
		analysis = &models.AnalysisResult{}
	}

	var b strings.Builder
	b.WriteString("Kamu adalah AI yang menghasilkan JSON valid untuk surat formal izin sakit. PENTING: Hasilkan HANYA JSON yang detail dan formal.\n\n")
	b.WriteString("Data:\n")
	fmt.Fprintf(&b, "- Nama: %s\n", record.Username)
	fmt.Fprintf(&b, "- Jabatan/Kelas: %s\n", record.Position)
	fmt.Fprintf(&b, "- Institusi: %s\n", record.Institution)
	fmt.Fprintf(&b, "- Diagnosis: %s\n", record.FullReason())
	fmt.Fprintf(&b, "- Tanggal Izin: %s\n", common.FormatDateShort(record.Date))
	fmt.Fprintf(&b, "- Hasil Pemeriksaan: %s\n", analysis.Summary)
	fmt.Fprintf(&b, "- Rekomendasi Medis: %s\n", analysis.Recommendation)
	fmt.Fprintf(&b, "- Catatan Medis: %s\n", analysis.Note)
	fmt.Fprintf(&b, "- Nomor Telepon: %s\n", record.PhoneNumber)
	fmt.Fprintf(&b, "- Email: %s\n", record.ContactEmail)
	b.WriteString(`
Format JSON yang diharapkan:
{
  "subject": "Permohonan Izin Sakit - [nama] - [tanggal]",
  "emailContent": {
    "recipient": "Pimpinan/Atasan",
    "name": "[nama lengkap]",
    "position": "[jabatan lengkap]",
    "institution": "[institusi lengkap]",
    "mainBody": {
      "paragraph1": "[Paragraf 1: Perkenalan dan tujuan surat - minimal 2 kalimat]",
      "paragraph2": "[Paragraf 2: Penjelasan kondisi sakit dan hasil pemeriksaan - minimal 2 kalimat]",
      "paragraph3": "[Paragraf 3: Durasi izin dan rekomendasi dokter - minimal 2 kalimat]"
    },
    "contactInfo": {
      "phone": "[nomor telepon]",
      "email": "[email]"
    }
  }
}

PENTING:
1. Gunakan bahasa Indonesia formal yang sopan dan profesional
2. Setiap paragraf harus menyatu dan mengalir dengan baik
3. Sertakan informasi konkret tentang durasi izin
4. Hindari penggunaan kata ganti '[Nama]' dll, langsung gunakan data yang diberikan
5. Pastikan tidak ada placeholder yang tersisa dalam konten`)
	return b.String()
}
