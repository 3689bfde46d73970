// Package pii detects and masks sensitive substrings in request
// parameters before they reach the audit trail or any response payload.
package pii

// EntityType classifies a detected sensitive value.
type EntityType string

// Detected entity types. The mask for each is "<TYPE>".
const (
	EntitySSN        EntityType = "SSN"
	EntityCreditCard EntityType = "CREDIT_CARD"
	EntityEmail      EntityType = "EMAIL"
	EntityPhone      EntityType = "PHONE"
	EntityIPAddress  EntityType = "IP_ADDRESS"
	EntityIBAN       EntityType = "IBAN"
	EntityPassport   EntityType = "PASSPORT"
)

// Mask returns the sentinel string substituted for a detected span.
func (e EntityType) Mask() string { return "<" + string(e) + ">" }

// Finding locates one detected entity inside the parameters mapping.
// Start/End are byte offsets into the original (pre-mask) string leaf.
// The original value itself is never carried on a Finding.
type Finding struct {
	// EntityType is the detected entity class.
	EntityType EntityType `json:"entity_type"`
	// Path is the dotted locator of the string leaf (e.g. "customer.email",
	// "recipients.0").
	Path string `json:"path"`
	// Start is the byte offset where the span begins.
	Start int `json:"start"`
	// End is the byte offset one past the span's last byte.
	End int `json:"end"`
	// Confidence is the detector's static confidence for this entity.
	Confidence float64 `json:"confidence"`
}

// EntityTypes returns the distinct entity types across findings, in
// first-seen order.
func EntityTypes(findings []Finding) []string {
	seen := make(map[EntityType]bool, len(findings))
	var out []string
	for _, f := range findings {
		if !seen[f.EntityType] {
			seen[f.EntityType] = true
			out = append(out, string(f.EntityType))
		}
	}
	return out
}
