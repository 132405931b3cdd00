package types

import (
	"strings"
	"time"
)

// DecisionContext is an immutable snapshot of a requested agent action.
// All derived fields (operation, connector, target domain, day of week,
// hour of day) are computed once in NewDecisionContext and never set
// independently.
type DecisionContext struct {
	Capability  string `json:"capability"`
	OperationID string `json:"operation_id"`
	ConnectorID string `json:"connector_id"`

	RiskTier RiskTier `json:"risk_tier"`

	Target         string `json:"target"`
	TargetDomain   string `json:"target_domain"`
	TargetCategory string `json:"target_category"`
	Scope          string `json:"scope"`

	Timestamp time.Time `json:"timestamp"`
	DayOfWeek int       `json:"day_of_week"` // 0=Monday .. 6=Sunday
	HourOfDay int       `json:"hour_of_day"` // 0..23

	ContentHash string `json:"content_hash"`
	ContentSize int    `json:"content_size"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// ContextParams carries the caller-supplied parts of a decision context.
// Everything else is derived.
type ContextParams struct {
	Capability     string
	RiskTier       RiskTier
	Target         string
	TargetCategory string
	Scope          string
	Timestamp      time.Time
	ContentHash    string
	ContentSize    int
	Metadata       map[string]any
}

// NewDecisionContext builds a DecisionContext, deriving operation and
// connector ids from the capability, the target domain from the target,
// and the temporal fields from the single timestamp (UTC).
func NewDecisionContext(p ContextParams) DecisionContext {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	operation, connector := splitCapability(p.Capability)

	return DecisionContext{
		Capability:     p.Capability,
		OperationID:    operation,
		ConnectorID:    connector,
		RiskTier:       p.RiskTier,
		Target:         p.Target,
		TargetDomain:   deriveTargetDomain(p.Target),
		TargetCategory: p.TargetCategory,
		Scope:          p.Scope,
		Timestamp:      ts,
		DayOfWeek:      (int(ts.Weekday()) + 6) % 7,
		HourOfDay:      ts.Hour(),
		ContentHash:    p.ContentHash,
		ContentSize:    p.ContentSize,
		Metadata:       p.Metadata,
	}
}

// splitCapability derives the operation and connector ids from a
// dot-namespaced capability, e.g. "connector.email.send_message"
// yields operation "send_message" and connector "email".
func splitCapability(capability string) (operation, connector string) {
	if capability == "" {
		return "", ""
	}
	parts := strings.Split(capability, ".")
	operation = parts[len(parts)-1]
	switch {
	case len(parts) >= 3:
		connector = parts[1]
	case len(parts) == 2:
		connector = parts[0]
	}
	return operation, connector
}

// deriveTargetDomain extracts the domain portion of a target: the part
// after "@" for email-shaped targets, the dotted string itself for
// host-shaped targets, and empty for channel:-prefixed scopes or
// targets with no domain shape at all.
func deriveTargetDomain(target string) string {
	if target == "" || strings.HasPrefix(target, "channel:") {
		return ""
	}
	if i := strings.LastIndex(target, "@"); i >= 0 {
		return target[i+1:]
	}
	if strings.Contains(target, ".") {
		return target
	}
	return ""
}
