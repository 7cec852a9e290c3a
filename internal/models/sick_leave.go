package models

import (
	"strings"
	"time"
)

// SickLeaveStatus is the review state of a sick-leave request
type SickLeaveStatus string

const (
	SickLeaveStatusSubmitted SickLeaveStatus = "Diajukan"
	SickLeaveStatusApproved  SickLeaveStatus = "Disetujui"
	SickLeaveStatusRejected  SickLeaveStatus = "Ditolak"
)

// Gender values accepted on a sick-leave form
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Answer is a reply to one generated follow-up question
type Answer struct {
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
}

// Question is a generated follow-up question shown to the patient
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// SickLeave is the record an artifact is generated from
type SickLeave struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Position     string          `json:"position,omitempty"`
	Institution  string          `json:"institution,omitempty"`
	Reason       string          `json:"reason"`
	OtherReason  string          `json:"otherReason,omitempty"`
	Date         time.Time       `json:"date"`
	Status       SickLeaveStatus `json:"status" badgerhold:"index"`
	Gender       string          `json:"gender"`
	Age          int             `json:"age"`
	ContactEmail string          `json:"contactEmail,omitempty"`
	PhoneNumber  string          `json:"phoneNumber,omitempty"`
	Questions    []Question      `json:"questions,omitempty"`
	Answers      []Answer        `json:"answers,omitempty"`
	Analysis     *AnalysisResult `json:"analysis,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// HasAnalysis reports whether a usable analysis is already attached
func (s *SickLeave) HasAnalysis() bool {
	return s.Analysis != nil && s.Analysis.Complete()
}

// FullReason returns the reason with the free-text addition in parentheses
func (s *SickLeave) FullReason() string {
	reason := strings.TrimSpace(s.Reason)
	if other := strings.TrimSpace(s.OtherReason); other != "" {
		return reason + " (" + other + ")"
	}
	return reason
}

// Clone returns a deep copy so generation works on a stable snapshot
func (s *SickLeave) Clone() *SickLeave {
	if s == nil {
		return nil
	}
	c := *s
	c.Questions = append([]Question(nil), s.Questions...)
	c.Answers = append([]Answer(nil), s.Answers...)
	if s.Analysis != nil {
		a := *s.Analysis
		c.Analysis = &a
	}
	return &c
}
