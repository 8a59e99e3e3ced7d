package manufacturer

import (
	"context"
	"testing"
)

const sampleCatalog = `
manufacturers:
  - id: stratus
    name: Stratus Biologics
    signature_required: false
    has_order_form: true
  - id: meridian
    name: Meridian Wound Science
    signature_required: true
    supports_insurance_upload_in_ivr: true
    fulfillment_template_ref: meridian-ivr-v3
  - id: calyx
    name: Calyx Regenerative
    signature_required: true
    dispatch_email: ivr@calyx.example.com
`

func TestParseCatalog(t *testing.T) {
	repo, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := repo.GetByID(context.Background(), "meridian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.UsesESign() {
		t.Error("meridian should use the e-sign strategy")
	}

	m, err = repo.GetByID(context.Background(), "calyx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.UsesESign() {
		t.Error("calyx has no template ref and should not use e-sign")
	}

	items, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 manufacturers, got %d", len(items))
	}
}

func TestParseCatalog_DuplicateID(t *testing.T) {
	_, err := ParseCatalog([]byte(`
manufacturers:
  - {id: a, name: A}
  - {id: a, name: A again}
`))
	if err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestParseCatalog_MissingID(t *testing.T) {
	_, err := ParseCatalog([]byte("manufacturers:\n  - {name: Nameless}\n"))
	if err == nil {
		t.Error("expected error for missing id")
	}
}

func TestParseCatalog_SignatureNeedsRoute(t *testing.T) {
	_, err := ParseCatalog([]byte(`
manufacturers:
  - {id: x, name: X, signature_required: true}
`))
	if err == nil {
		t.Error("expected error: signature_required with no template or dispatch email")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown manufacturer")
	}
}
