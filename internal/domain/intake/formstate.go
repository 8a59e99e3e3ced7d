// Package intake holds the canonical form state shared by every wizard
// step. All writes flow through this container so the provenance rules that
// protect user-entered data are enforced in one place.
package intake

import (
	"strings"
	"sync"
	"time"
)

// ProductSelection is one line of the ordered product list. At least one
// selection is required before an intake is eligible for submission.
type ProductSelection struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Product   string  `json:"product,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// Attachment is an uploaded document kept with the intake for the duration
// of the session (insurance card images, clinical notes).
type Attachment struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// fieldAliases maps dotted paths onto the flat legacy keys the state is
// stored under. Both spellings address the same slot, so the two views can
// never diverge.
var fieldAliases = map[string]string{
	"patient.first_name":          "patient_first_name",
	"patient.last_name":           "patient_last_name",
	"patient.dob":                 "patient_dob",
	"patient.gender":              "patient_gender",
	"patient.phone":               "patient_phone",
	"patient.email":               "patient_email",
	"patient.address_line1":       "patient_address_line1",
	"patient.city":                "patient_city",
	"patient.state":               "patient_state",
	"patient.zip":                 "patient_zip",
	"insurance.primary_name":      "primary_insurance_name",
	"insurance.primary_member_id": "primary_member_id",
	"insurance.primary_group":     "primary_group_number",
	"insurance.primary_payer_phone": "primary_payer_phone",
	"insurance.secondary_name":    "secondary_insurance_name",
	"insurance.secondary_member_id": "secondary_member_id",
	"clinical.primary_diagnosis":  "primary_diagnosis",
	"clinical.wound_type":         "wound_type",
	"clinical.wound_location":     "wound_location",
	"clinical.wound_size_length":  "wound_size_length",
	"clinical.wound_size_width":   "wound_size_width",
	"clinical.wound_duration":     "wound_duration",
	"provider.name":               "provider_name",
	"provider.npi":                "provider_npi",
	"provider.facility":           "facility_name",
	"provider.ptan":               "provider_ptan",
	"shipping.address_line1":      "shipping_address_line1",
	"shipping.city":               "shipping_city",
	"shipping.state":              "shipping_state",
	"shipping.zip":                "shipping_zip",
	"shipping.speed":              "shipping_speed",
}

// ManufacturerFieldsKey is the sub-object holding AI-mapped manufacturer
// form fields. Mapped data lands here, never in top-level canonical fields.
const ManufacturerFieldsKey = "manufacturer_fields"

// CanonicalKey resolves a dotted alias to its storage key. Unknown names
// pass through unchanged.
func CanonicalKey(field string) string {
	if flat, ok := fieldAliases[field]; ok {
		return flat
	}
	return field
}

// FormState is the single source-of-truth record for one wizard session.
// Safe for use from concurrent handler goroutines.
type FormState struct {
	mu          sync.RWMutex
	values      map[string]interface{}
	extracted   map[string]bool
	products    []ProductSelection
	attachments map[string]Attachment
}

func NewFormState() *FormState {
	return &FormState{
		values:      make(map[string]interface{}),
		extracted:   make(map[string]bool),
		attachments: make(map[string]Attachment),
	}
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Set records a user-entered value. A user write always wins: it clears the
// extraction provenance flag so later extraction responses cannot replace
// the value.
func (f *FormState) Set(field string, value interface{}) {
	key := CanonicalKey(field)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	delete(f.extracted, key)
}

// MergeExtracted writes an extraction-derived value under the provenance
// rule: the slot must be empty or previously extraction-owned. Returns true
// when the value was written.
func (f *FormState) MergeExtracted(field string, value interface{}) bool {
	key := CanonicalKey(field)
	f.mu.Lock()
	defer f.mu.Unlock()
	current, present := f.values[key]
	if present && !isEmptyValue(current) && !f.extracted[key] {
		// user-owned value; never overwrite
		return false
	}
	f.values[key] = value
	f.extracted[key] = true
	return true
}

// MergeManufacturerFields merges AI-mapped fields into the manufacturer
// fields sub-object. Top-level canonical fields are never touched.
func (f *FormState) MergeManufacturerFields(fields map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, _ := f.values[ManufacturerFieldsKey].(map[string]interface{})
	if sub == nil {
		sub = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		sub[k] = v
	}
	f.values[ManufacturerFieldsKey] = sub
}

// Get returns the value stored under the field (flat or dotted spelling)
// and whether it is present and non-empty.
func (f *FormState) Get(field string) (interface{}, bool) {
	key := CanonicalKey(field)
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	if !ok || isEmptyValue(v) {
		return nil, false
	}
	return v, true
}

// GetString returns the string value of a field, or "" when absent.
func (f *FormState) GetString(field string) string {
	v, ok := f.Get(field)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Extracted reports whether the field is currently extraction-owned.
func (f *FormState) Extracted(field string) bool {
	key := CanonicalKey(field)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.extracted[key]
}

// SetProducts replaces the ordered product selection list.
func (f *FormState) SetProducts(products []ProductSelection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append([]ProductSelection(nil), products...)
}

// AddProduct appends one selection, preserving order.
func (f *FormState) AddProduct(p ProductSelection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append(f.products, p)
}

// Products returns a copy of the ordered product selections.
func (f *FormState) Products() []ProductSelection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]ProductSelection(nil), f.products...)
}

// PutAttachment stores an uploaded document under a slot name, e.g.
// "insurance_card_front".
func (f *FormState) PutAttachment(slot string, a Attachment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[slot] = a
}

// Attachment returns the document stored under the slot, if any.
func (f *FormState) Attachment(slot string) (Attachment, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, ok := f.attachments[slot]
	return a, ok
}

// Clear empties the state. Called on final submission or abandonment.
func (f *FormState) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]interface{})
	f.extracted = make(map[string]bool)
	f.products = nil
	f.attachments = make(map[string]Attachment)
}

// Restore rebuilds a form state from a previously captured snapshot, used
// when rehydrating a session from its store.
func Restore(snap *Snapshot) *FormState {
	f := NewFormState()
	if snap == nil {
		return f
	}
	for k, v := range snap.Values {
		if sub, ok := v.(map[string]interface{}); ok {
			cp := make(map[string]interface{}, len(sub))
			for sk, sv := range sub {
				cp[sk] = sv
			}
			f.values[k] = cp
			continue
		}
		f.values[k] = v
	}
	for k, v := range snap.Extracted {
		f.extracted[k] = v
	}
	f.products = append([]ProductSelection(nil), snap.Products...)
	for k, v := range snap.Documents {
		f.attachments[k] = v
	}
	return f
}

// Snapshot is an immutable copy of the form state handed to the fulfillment
// router and the review aggregator. It reflects the state at capture time;
// concurrent edits do not leak in.
type Snapshot struct {
	Values    map[string]interface{}      `json:"values"`
	Extracted map[string]bool             `json:"extracted"`
	Products  []ProductSelection          `json:"products"`
	Documents map[string]Attachment       `json:"-"`
}

// Snapshot captures a deep copy of the current state.
func (f *FormState) Snapshot() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	values := make(map[string]interface{}, len(f.values))
	for k, v := range f.values {
		if sub, ok := v.(map[string]interface{}); ok {
			cp := make(map[string]interface{}, len(sub))
			for sk, sv := range sub {
				cp[sk] = sv
			}
			values[k] = cp
			continue
		}
		values[k] = v
	}
	extracted := make(map[string]bool, len(f.extracted))
	for k, v := range f.extracted {
		extracted[k] = v
	}
	docs := make(map[string]Attachment, len(f.attachments))
	for k, v := range f.attachments {
		docs[k] = v
	}
	return &Snapshot{
		Values:    values,
		Extracted: extracted,
		Products:  append([]ProductSelection(nil), f.products...),
		Documents: docs,
	}
}

// Lookup resolves a flat or dotted path against the snapshot and reports
// whether a non-empty value is present. The special path "products" is
// satisfied by a non-empty selection list.
func (s *Snapshot) Lookup(path string) (interface{}, bool) {
	if path == "products" {
		if len(s.Products) == 0 {
			return nil, false
		}
		return s.Products, true
	}
	v, ok := s.Values[CanonicalKey(path)]
	if !ok || isEmptyValue(v) {
		return nil, false
	}
	return v, true
}

// String returns the string value at path, or "" when absent.
func (s *Snapshot) String(path string) string {
	v, ok := s.Lookup(path)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}
