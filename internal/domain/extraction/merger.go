package extraction

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/woundcare/intake/internal/domain/intake"
	"github.com/woundcare/intake/internal/platform/faults"
)

// Attachment slot names inside the form state.
const (
	AttachmentCardFront    = "insurance_card_front"
	AttachmentCardBack     = "insurance_card_back"
	AttachmentClinicalNote = "clinical_note"
)

// cardFieldMap translates extraction keys from insurance-card analysis to
// canonical field names. Unknown keys are ignored, not rejected: the
// analysis service adds keys faster than clients update.
var cardFieldMap = map[string]string{
	"patient_first_name": "patient_first_name",
	"patient_last_name":  "patient_last_name",
	"patient_dob":        "patient_dob",
	"payer_name":         "primary_insurance_name",
	"insurer_name":       "primary_insurance_name",
	"member_id":          "primary_member_id",
	"group_number":       "primary_group_number",
	"payer_phone":        "primary_payer_phone",
	"plan_type":          "primary_plan_type",
}

// noteFieldMap covers clinical-note analysis keys. Alias lists coalesce the
// near-duplicate spellings different note formats produce; the first alias
// present wins.
var noteFieldMap = map[string]string{
	"patient_dob":    "patient_dob",
	"wound_location": "wound_location",
	"wound_duration": "wound_duration",
	"provider_name":  "provider_name",
	"provider_npi":   "provider_npi",
	"npi":            "provider_npi",
	"facility":       "facility_name",
	"facility_name":  "facility_name",
}

var noteFieldAliases = []struct {
	target  string
	sources []string
}{
	{"primary_diagnosis", []string{"primary_diagnosis", "diagnosis", "dx"}},
	{"wound_type", []string{"wound_type", "wound_description"}},
}

// Merger drives document extraction for one wizard session and applies the
// results to its form state.
type Merger struct {
	state  *intake.FormState
	client Client
	log    zerolog.Logger
}

func NewMerger(state *intake.FormState, client Client, log zerolog.Logger) *Merger {
	return &Merger{state: state, client: client, log: log}
}

// SubmitDocument stores the upload and, when enough material is present,
// runs extraction and merges the result. For insurance cards the call fires
// as soon as a front image exists; a back image uploaded later re-triggers
// extraction with both faces. A back image alone is held until the front
// arrives. Returns a nil Result when no extraction was attempted.
func (m *Merger) SubmitDocument(ctx context.Context, file intake.Attachment, kind DocumentKind, slot Slot) (*Result, error) {
	switch kind {
	case KindClinicalNote:
		m.state.PutAttachment(AttachmentClinicalNote, file)
		return m.extractNote(ctx, file)
	case KindInsuranceCard:
		switch slot {
		case SlotFront:
			m.state.PutAttachment(AttachmentCardFront, file)
		case SlotBack:
			m.state.PutAttachment(AttachmentCardBack, file)
		default:
			return nil, faults.New(faults.KindValidation, "extraction.submit", "insurance card requires slot front or back")
		}
		return m.extractCard(ctx)
	}
	return nil, faults.New(faults.KindValidation, "extraction.submit", "unknown document kind %q", kind)
}

func (m *Merger) extractCard(ctx context.Context) (*Result, error) {
	front, ok := m.state.Attachment(AttachmentCardFront)
	if !ok {
		// back-only upload: wait for the front
		m.log.Debug().Msg("insurance card back received before front; holding extraction")
		return nil, nil
	}
	req := Request{Kind: KindInsuranceCard, Front: &front}
	if back, ok := m.state.Attachment(AttachmentCardBack); ok {
		req.Back = &back
	}

	res, err := m.client.Extract(ctx, req)
	if err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "extraction.card", err)
	}
	if !res.Success {
		return nil, faults.New(faults.KindExtraction, "extraction.card", "could not extract insurance card")
	}

	res.Applied = m.mergeFields(res.Fields, cardFieldMap)
	m.log.Info().Int("fields", len(res.Applied)).Msg("insurance card extracted")
	return res, nil
}

func (m *Merger) extractNote(ctx context.Context, note intake.Attachment) (*Result, error) {
	res, err := m.client.Extract(ctx, Request{Kind: KindClinicalNote, Note: &note})
	if err != nil {
		return nil, faults.Wrap(faults.KindExtraction, "extraction.note", err)
	}
	if !res.Success {
		return nil, faults.New(faults.KindExtraction, "extraction.note", "could not extract clinical note")
	}

	fields := normalizeNoteFields(res.Fields)
	res.Applied = m.mergeFields(fields, noteFieldMap)
	m.log.Info().Int("fields", len(res.Applied)).Msg("clinical note extracted")
	return res, nil
}

// normalizeNoteFields splits a combined patient name and coalesces field
// aliases before the standard mapping runs.
func normalizeNoteFields(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if name, ok := out["patient_name"]; ok {
		first, last := splitName(name)
		if first != "" {
			out["__split_first"] = first
		}
		if last != "" {
			out["__split_last"] = last
		}
		delete(out, "patient_name")
	}

	for _, alias := range noteFieldAliases {
		for _, src := range alias.sources {
			if v, ok := out[src]; ok && strings.TrimSpace(v) != "" {
				out["__alias_"+alias.target] = v
				break
			}
		}
		for _, src := range alias.sources {
			delete(out, src)
		}
	}
	return out
}

// splitName takes the first whitespace token as the first name and the
// remainder as the last name. Best effort; single tokens become first names.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// mergeFields applies the mapping table and the provenance-guarded merge,
// returning the canonical fields that were actually written.
func (m *Merger) mergeFields(fields map[string]string, table map[string]string) []string {
	var applied []string
	for src, val := range fields {
		if strings.TrimSpace(val) == "" {
			continue
		}
		target := ""
		switch {
		case src == "__split_first":
			target = "patient_first_name"
		case src == "__split_last":
			target = "patient_last_name"
		case strings.HasPrefix(src, "__alias_"):
			target = strings.TrimPrefix(src, "__alias_")
		default:
			target = table[src]
		}
		if target == "" {
			continue // unknown key
		}
		if m.state.MergeExtracted(target, val) {
			applied = append(applied, target)
		}
	}
	sort.Strings(applied)
	return applied
}
