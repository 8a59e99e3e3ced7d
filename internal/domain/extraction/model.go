// Package extraction uploads intake documents to the document-analysis
// service and merges the returned fields into the canonical form state
// under the provenance rules that protect user-entered data.
package extraction

import (
	"context"

	"github.com/woundcare/intake/internal/domain/intake"
)

// DocumentKind identifies what kind of document was uploaded.
type DocumentKind string

const (
	KindInsuranceCard DocumentKind = "insurance_card"
	KindClinicalNote  DocumentKind = "clinical_note"
)

// Slot distinguishes the two faces of an insurance card.
type Slot string

const (
	SlotFront Slot = "front"
	SlotBack  Slot = "back"
)

// Request is one document-analysis call. Insurance cards carry a front
// image and optionally a back image; clinical notes carry a single document.
type Request struct {
	Kind  DocumentKind
	Front *intake.Attachment
	Back  *intake.Attachment
	Note  *intake.Attachment
}

// Result is the analysis outcome. Ephemeral: the merger consumes it
// immediately and only a copy of the mapped fields survives.
type Result struct {
	Success    bool              `json:"success"`
	Fields     map[string]string `json:"data"`
	Confidence float64           `json:"confidence,omitempty"`
	// Applied lists canonical fields actually written into form state,
	// for the transient UI status.
	Applied []string `json:"applied,omitempty"`
}

// Client calls the external document-analysis service.
type Client interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}
