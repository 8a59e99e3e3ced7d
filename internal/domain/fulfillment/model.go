// Package fulfillment routes a completed intake to one of the IVR
// fulfillment strategies and drives it to a terminal state. One session
// carries at most one active submission at a time.
package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/woundcare/intake/internal/domain/intake"
)

// Status is the submission state machine position.
type Status string

const (
	StatusNotStarted    Status = "not_started"
	StatusRouting       Status = "routing"
	// StatusSkipped is the terminal sentinel meaning no IVR is required.
	StatusSkipped       Status = "skipped"
	StatusESignPending  Status = "e_sign_pending"
	StatusESignComplete Status = "e_sign_complete"
	StatusMLMapping     Status = "ml_mapping"
	StatusPDFReady      Status = "pdf_ready"
	StatusEmailPending  Status = "email_pending"
	StatusEmailSent     Status = "email_sent"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no further transitions apply. A failed
// submission is terminal until the caller explicitly resets it.
func (s Status) Terminal() bool {
	switch s {
	case StatusSkipped, StatusESignComplete, StatusEmailSent, StatusFailed:
		return true
	}
	return false
}

// StrategyName tags which fulfillment path a submission took.
type StrategyName string

const (
	StrategySkip           StrategyName = "skip"
	StrategyESign          StrategyName = "e_sign"
	StrategyMappedDocument StrategyName = "mapped_document"
)

// SubmissionRecord tracks the outcome of routing one intake.
type SubmissionRecord struct {
	SubmissionID   uuid.UUID    `json:"submission_id"`
	SessionID      uuid.UUID    `json:"session_id"`
	ManufacturerID string       `json:"manufacturer_id"`
	Strategy       StrategyName `json:"strategy"`
	Status         Status       `json:"status"`
	SigningURL     string       `json:"signing_url,omitempty"`
	DocumentID     string       `json:"document_id,omitempty"`
	PDFURL         string       `json:"pdf_url,omitempty"`
	Error          string       `json:"error,omitempty"`
	// Superseded marks a failed record replaced via Reset; superseded
	// records are kept for audit but no longer count for routing.
	Superseded  bool       `json:"superseded,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// -- Collaborator contracts (§ external interfaces) --

// MapRequest sends the full intake snapshot plus product and manufacturer
// context to the AI field-mapping service.
type MapRequest struct {
	ManufacturerID string                    `json:"manufacturer_id"`
	Snapshot       *intake.Snapshot          `json:"snapshot"`
	Products       []intake.ProductSelection `json:"products"`
}

// MapResult carries the mapped manufacturer-form fields.
type MapResult struct {
	MappedFields map[string]string  `json:"mapped_fields"`
	Confidence   map[string]float64 `json:"confidence_metadata,omitempty"`
}

// FieldMapper is the AI field-mapping service.
type FieldMapper interface {
	MapFields(ctx context.Context, req MapRequest) (*MapResult, error)
}

// RenderRequest asks for a PDF rendering of the mapped intake.
type RenderRequest struct {
	EpisodeID      string           `json:"episode_id"`
	ManufacturerID string           `json:"manufacturer_id"`
	Snapshot       *intake.Snapshot `json:"snapshot"`
}

type RenderResult struct {
	DocumentID string `json:"document_id"`
	PDFURL     string `json:"pdf_url"`
}

// PDFRenderer is the document-rendering service.
type PDFRenderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

// ESignRequest opens a hosted signing session for a manufacturer template.
type ESignRequest struct {
	EpisodeID        string `json:"episode_id"`
	ManufacturerName string `json:"manufacturer_name"`
	TemplateRef      string `json:"template_ref"`
}

type ESignSession struct {
	ProviderRef string `json:"submission_id"`
	SigningURL  string `json:"signing_url_or_slug"`
}

// ESignProvider is the hosted e-signature service.
type ESignProvider interface {
	CreateSession(ctx context.Context, req ESignRequest) (*ESignSession, error)
}

// DispatchRequest submits the structured intake to the manufacturer,
// including the rendered document and any insurance-card attachments.
type DispatchRequest struct {
	ManufacturerID string              `json:"manufacturer_id"`
	DispatchEmail  string              `json:"dispatch_email"`
	DocumentID     string              `json:"document_id"`
	Snapshot       *intake.Snapshot    `json:"snapshot"`
	Attachments    []intake.Attachment `json:"-"`
}

type DispatchResult struct {
	SubmissionRef string `json:"submission_id"`
	Status        string `json:"status"`
}

// Dispatcher is the manufacturer submission-dispatch service.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}
