package wire

import "encoding/json"

// EligibilityResult is the assessment payload of an eligibility_result
// frame. The server has shipped two generations of this payload; the
// legacy fields are kept so both decode.
type EligibilityResult struct {
	EligibilityStatus string  `json:"eligibility_status,omitempty"`
	EligibilityScore  float64 `json:"eligibility_score,omitempty"`
	RiskLevel         string  `json:"risk_level,omitempty"`
	CreditTier        string  `json:"credit_tier,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	DebtToIncomeRatio float64 `json:"debt_to_income_ratio,omitempty"`
	ApplicationID     int64   `json:"application_id,omitempty"`

	// Legacy payload shape.
	Eligible *bool   `json:"eligible,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Approved reports whether the assessment is an approval, whichever
// payload generation produced it.
func (r EligibilityResult) Approved() bool {
	if r.EligibilityStatus != "" {
		return r.EligibilityStatus == "approved"
	}
	return r.Eligible != nil && *r.Eligible
}

// VerificationRequest is the payload of a document_verification_required
// frame: the server pauses the conversation until the applicant's
// documents are checked against the captured data.
type VerificationRequest struct {
	ApplicationID  int64           `json:"application_id,omitempty"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"`
	Message        string          `json:"message,omitempty"`
}
