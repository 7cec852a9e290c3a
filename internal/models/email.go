package models

// EmailAttachment references a file on disk that is streamed into the message
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
}

// EmailMessage is a single outbound delivery
type EmailMessage struct {
	To         string           `json:"to" validate:"required,email"`
	Subject    string           `json:"subject" validate:"required"`
	Body       string           `json:"body"`
	HTML       string           `json:"html,omitempty"`
	Attachment *EmailAttachment `json:"attachment,omitempty"`
}
