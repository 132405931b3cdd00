package types

// Decision is the outcome of a single authorization request, whether it
// came from the owner or from an automation rule.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// RiskTier is the externally supplied risk classification of an action.
// The engine never computes tiers; it carries them through unchanged.
type RiskTier int

const (
	TierLow RiskTier = iota
	TierMedium
	TierHigh
	TierCritical
)

func (t RiskTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}
