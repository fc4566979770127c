package security

import (
	"github.com/radiant-labs/uep/pkg/compliance"
	"github.com/radiant-labs/uep/pkg/contracts"
)

// PolicyEnforcer applies the mandatory-encryption rule: payloads whose
// compliance verdict is sensitive must not leave the codec as plaintext
// inline or reference deliveries.
type PolicyEnforcer struct {
	// RequireEncryptionFor lifts additional classifications into the
	// mandatory set beyond the PII/PHI and confidential/restricted
	// defaults.
	RequireEncryptionFor map[string]bool
}

// NewPolicyEnforcer creates an enforcer with the default sensitivity rules.
func NewPolicyEnforcer() *PolicyEnforcer {
	return &PolicyEnforcer{}
}

// EncryptionRequired reports whether the verdict demands encryption.
func (p *PolicyEnforcer) EncryptionRequired(report compliance.Report) bool {
	if report.Sensitive() {
		return true
	}
	return p.RequireEncryptionFor[report.Classification]
}

// CheckPlaintextDelivery rejects a plaintext payload for content whose
// verdict demands encryption. Chunked shells are checked when the
// producer supplies the full content up front; a shell announced
// without its bytes cannot be classified here.
func (p *PolicyEnforcer) CheckPlaintextDelivery(report compliance.Report, delivery contracts.DeliveryMode) error {
	if !p.EncryptionRequired(report) {
		return nil
	}
	return secErr(CodePolicyViolation,
		"payload classification requires encrypted delivery; refusing plaintext "+string(delivery))
}
