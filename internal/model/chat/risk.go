package chat

import "strings"

// RiskLevel is the classification attached to a model-generated reply.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	RiskCrisis RiskLevel = "crisis"
)

// Escalates reports whether the level should place the session in
// emergency mode.
func (r RiskLevel) Escalates() bool {
	return r == RiskHigh || r == RiskCrisis
}

// ParseRiskLevel normalizes a model-provided risk string. Unknown values
// collapse to RiskNone rather than failing the whole reply.
func ParseRiskLevel(raw string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	case RiskCrisis:
		return RiskCrisis
	default:
		return RiskNone
	}
}

// AIReply is the envelope returned by the remote model.
type AIReply struct {
	Response  string    `json:"response"`
	RiskLevel RiskLevel `json:"riskLevel"`
}
