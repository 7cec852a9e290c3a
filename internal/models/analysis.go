package models

import (
	"encoding/json"
	"strings"
)

// AnalysisResult is the structured medical summary attached to a record
type AnalysisResult struct {
	Summary        string `json:"summary" validate:"required"`
	Recommendation string `json:"recommendation" validate:"required"`
	Note           string `json:"note"`
}

// Complete reports whether the required fields are populated
func (a *AnalysisResult) Complete() bool {
	return a != nil && strings.TrimSpace(a.Summary) != "" && strings.TrimSpace(a.Recommendation) != ""
}

// UnmarshalJSON accepts both the English keys and the Indonesian keys
// (analisis, rekomendasi, catatan) that text-generation output tends to use.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Summary        string `json:"summary"`
		Analisis       string `json:"analisis"`
		Recommendation string `json:"recommendation"`
		Rekomendasi    string `json:"rekomendasi"`
		Note           string `json:"note"`
		Catatan        string `json:"catatan"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	a.Summary = firstNonEmpty(wire.Summary, wire.Analisis)
	a.Recommendation = firstNonEmpty(wire.Recommendation, wire.Rekomendasi)
	a.Note = firstNonEmpty(wire.Note, wire.Catatan)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
