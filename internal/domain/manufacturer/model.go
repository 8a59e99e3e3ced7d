// Package manufacturer holds the static per-manufacturer fulfillment
// configuration consulted by the IVR router. The intake service only reads
// this data; it is maintained out of band.
package manufacturer

// Config describes how a manufacturer expects its Insurance Verification
// Request to be fulfilled.
type Config struct {
	ID                    string `yaml:"id" json:"id"`
	Name                  string `yaml:"name" json:"name"`
	SignatureRequired     bool   `yaml:"signature_required" json:"signature_required"`
	SupportsInsuranceUpload bool `yaml:"supports_insurance_upload_in_ivr" json:"supports_insurance_upload_in_ivr"`
	HasOrderForm          bool   `yaml:"has_order_form" json:"has_order_form"`
	// FulfillmentTemplateRef is the hosted e-signature template slug. When
	// set (and a signature is required) the e-sign strategy is used;
	// otherwise the AI-mapped document strategy applies.
	FulfillmentTemplateRef string `yaml:"fulfillment_template_ref,omitempty" json:"fulfillment_template_ref,omitempty"`
	// DispatchEmail is the manufacturer inbox for AI-mapped submissions.
	DispatchEmail string `yaml:"dispatch_email,omitempty" json:"dispatch_email,omitempty"`
}

// UsesESign reports whether the e-signature strategy applies.
func (c *Config) UsesESign() bool {
	return c.SignatureRequired && c.FulfillmentTemplateRef != ""
}
