package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OnboardingConfiguration document type a tenant requires from its clients.
type OnboardingConfiguration struct {
	ID               int64  `json:"id"`
	TenantID         string `json:"tenantID"`
	DocumentType     string `json:"documentType"`
	IsRequired       bool   `json:"isRequired"`
	VerificationType string `json:"verificationType"`
	Description      string `json:"description"`
	IsActive         bool   `json:"isActive"`
}

// OnboardingDocument uploaded KYC document.
type OnboardingDocument struct {
	ID                    int64   `json:"id"`
	TenantID              string  `json:"tenantID"`
	ClientID              string  `json:"clientID"`
	DocumentType          string  `json:"documentType"`
	DocumentPath          string  `json:"documentPath"`
	DocumentBase64        *string `json:"documentBase64,omitempty"`
	SubmissionDate        string  `json:"submissionDate,omitempty"`
	IsActive              bool    `json:"isActive"`
	ErrorMessage          string  `json:"errorMessage"`
	SuccessfullyRetrieved bool    `json:"successfullyRetrieved"`
	IncludeFile           bool    `json:"includeFile"`
}

// Submitted parses SubmissionDate, reporting false when absent or unparseable.
func (d OnboardingDocument) Submitted() (time.Time, bool) {
	if d.SubmissionDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, d.SubmissionDate); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// DocumentFile content sent in a multipart upload.
type DocumentFile struct {
	Name    string
	Content []byte
}

// AttestationRequest reviewer verdict on an uploaded document.
type AttestationRequest struct {
	Score        decimal.Decimal `json:"score"`
	Rationale    string          `json:"rationale"`
	DocumentID   int64           `json:"documentID"`
	Method       string          `json:"method"`
	Status       string          `json:"status"`
	VerifierID   string          `json:"verifierID"`
	VerifierName string          `json:"verifierName"`
}

// Validate reports missing fields.
func (a AttestationRequest) Validate() []string {
	var problems []string
	if a.DocumentID <= 0 {
		problems = append(problems, "documentID is required")
	}
	if a.Status == "" {
		problems = append(problems, "status is required")
	}
	if a.VerifierID == "" {
		problems = append(problems, "verifierID is required")
	}
	if a.Score.IsNegative() {
		problems = append(problems, "score cannot be negative")
	}
	return problems
}
