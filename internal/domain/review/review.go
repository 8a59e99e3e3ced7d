// Package review derives a read-only, role-filtered view model from an
// intake snapshot for final review and audit display. The view model is
// always recomputed from the latest snapshot and never written back.
package review

import (
	"fmt"
	"strings"

	"github.com/woundcare/intake/internal/domain/intake"
)

// Roles recognized by the intake surfaces.
const (
	RoleProvider        = "provider"
	RoleOfficeAdmin     = "office_admin"
	RoleOrderManagement = "order_management"
	RoleAdmin           = "admin"
)

// Status is the three-tier completeness score of a section.
type Status string

const (
	StatusComplete Status = "complete"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
)

// Field is one displayed value with its extraction provenance.
type Field struct {
	Path      string      `json:"path"`
	Label     string      `json:"label"`
	Value     interface{} `json:"value,omitempty"`
	Extracted bool        `json:"extracted,omitempty"`
}

// Section groups related fields with a completeness score.
type Section struct {
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Fields  []Field  `json:"fields"`
}

// ProductLine is one product selection row. UnitPrice is zeroed out for
// roles that may not see pricing.
type ProductLine struct {
	ProductID string  `json:"product_id"`
	Product   string  `json:"product,omitempty"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// ViewModel is the aggregated review page.
type ViewModel struct {
	Sections []Section     `json:"sections"`
	Products []ProductLine `json:"products"`
	Complete bool          `json:"complete"`
}

type sectionDef struct {
	name     string
	title    string
	required []string
	display  []string
}

// display supersets required so optional values still show when present.
var sectionDefs = []sectionDef{
	{
		name: "patient", title: "Patient",
		required: []string{"patient.first_name", "patient.last_name", "patient.dob"},
		display: []string{"patient.first_name", "patient.last_name", "patient.dob",
			"patient.gender", "patient.phone", "patient.email"},
	},
	{
		name: "insurance", title: "Insurance",
		required: []string{"insurance.primary_name", "insurance.primary_member_id"},
		display: []string{"insurance.primary_name", "insurance.primary_member_id",
			"insurance.primary_group", "insurance.secondary_name",
			"insurance.secondary_member_id"},
	},
	{
		name: "clinical", title: "Clinical",
		required: []string{"clinical.primary_diagnosis", "clinical.wound_type", "clinical.wound_location"},
		display: []string{"clinical.primary_diagnosis", "clinical.wound_type",
			"clinical.wound_location", "clinical.wound_size_length",
			"clinical.wound_size_width", "clinical.wound_duration"},
	},
	{
		name: "shipping", title: "Shipping",
		required: []string{"shipping.address_line1", "shipping.city", "shipping.state", "shipping.zip"},
		display: []string{"shipping.address_line1", "shipping.city",
			"shipping.state", "shipping.zip", "shipping.speed"},
	},
}

// providerSection holds ordering-provider details. It is included only for
// roles other than order management, or in post-submission audit context.
var providerSection = sectionDef{
	name: "provider", title: "Provider",
	required: []string{"provider.name", "provider.npi"},
	display:  []string{"provider.name", "provider.npi", "provider.facility", "provider.ptan"},
}

// Build computes the review view model for the snapshot and role.
// postSubmission widens visibility for audit display after the order has
// been submitted.
func Build(snap *intake.Snapshot, role string, postSubmission bool) *ViewModel {
	vm := &ViewModel{Complete: true}

	defs := make([]sectionDef, 0, len(sectionDefs)+1)
	defs = append(defs, sectionDefs...)
	if role != RoleOrderManagement || postSubmission {
		defs = append(defs, providerSection)
	}

	for _, def := range defs {
		sec := buildSection(snap, def)
		if sec.Status != StatusComplete {
			vm.Complete = false
		}
		vm.Sections = append(vm.Sections, sec)
	}

	// Product selections, with pricing redacted for order management.
	redactPricing := role == RoleOrderManagement
	for _, p := range snap.Products {
		line := ProductLine{
			ProductID: p.ProductID,
			Product:   p.Product,
			Quantity:  p.Quantity,
			Size:      p.Size,
		}
		if !redactPricing {
			line.UnitPrice = p.UnitPrice
		}
		vm.Products = append(vm.Products, line)
	}

	prodSec := Section{Name: "product", Title: "Product Selection", Status: StatusComplete}
	if len(snap.Products) == 0 {
		prodSec.Status = StatusWarning
		prodSec.Missing = []string{"products"}
		prodSec.Message = "Missing: products"
		vm.Complete = false
	}
	vm.Sections = append(vm.Sections, prodSec)

	return vm
}

func buildSection(snap *intake.Snapshot, def sectionDef) Section {
	sec := Section{Name: def.name, Title: def.title}

	var missing []string
	for _, path := range def.required {
		if _, ok := snap.Lookup(path); !ok {
			missing = append(missing, fieldName(path))
		}
	}
	sec.Status, sec.Message = score(missing)
	if sec.Status == StatusWarning {
		sec.Missing = missing
	}

	for _, path := range def.display {
		v, ok := snap.Lookup(path)
		if !ok {
			continue
		}
		sec.Fields = append(sec.Fields, Field{
			Path:      path,
			Label:     label(path),
			Value:     v,
			Extracted: snap.Extracted[intake.CanonicalKey(path)],
		})
	}
	return sec
}

// score applies the three-tier completeness policy: zero missing is
// complete, exactly one missing is a warning naming the field, two or
// more is an error reporting only the count.
func score(missing []string) (Status, string) {
	switch n := len(missing); {
	case n == 0:
		return StatusComplete, ""
	case n == 1:
		return StatusWarning, "Missing: " + strings.Join(missing, ", ")
	default:
		return StatusError, fmt.Sprintf("%d fields missing", n)
	}
}

func fieldName(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func label(path string) string {
	words := strings.Split(fieldName(path), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "npi" || w == "dob" || w == "zip" || w == "id" {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
