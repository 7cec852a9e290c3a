package models

import "time"

// ArtifactKindPDF namespaces cache keys for rendered sick-leave letters
const ArtifactKindPDF = "pdf"

// ArtifactHandle locates a rendered artifact for a record
type ArtifactHandle struct {
	RecordID  string    `json:"recordId"`
	FilePath  string    `json:"filePath"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Cached    bool      `json:"cached"`
	Pages     int       `json:"pages,omitempty"`
}

// LetterContent is the composed email that accompanies an artifact
type LetterContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RenderResult describes a document written by the renderer
type RenderResult struct {
	Path     string        `json:"path"`
	Pages    int           `json:"pages"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}
