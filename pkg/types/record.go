package types

import "time"

// DecisionRecord is one logged decision: the context it was made in,
// the outcome, and which rule (if any) made it. Records are append-only
// and never mutated once written.
type DecisionRecord struct {
	ID             string          `json:"id"`
	Context        DecisionContext `json:"context"`
	Decision       Decision        `json:"decision"`
	DecisionTimeMS int64           `json:"decision_time_ms"`
	Reason         string          `json:"reason,omitempty"`
	RuleID         string          `json:"rule_id,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// IsAuto reports whether the decision was made by an automation rule.
func (r DecisionRecord) IsAuto() bool { return r.RuleID != "" }

// IsApproval reports whether the decision approved the action.
func (r DecisionRecord) IsApproval() bool { return r.Decision == DecisionApproved }
