package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Type classifies a detected pattern by its majority decision.
type Type string

const (
	TypeApproval Type = "approval"
	TypeDenial   Type = "denial"
)

// Pattern is a detected behavioral regularity: a constraint set plus
// the aggregates observed over the records matching it. Patterns are
// ephemeral; every detection run regenerates them from the log.
type Pattern struct {
	ID         string     `json:"id"`
	Type       Type       `json:"pattern_type"`
	Conditions Conditions `json:"conditions"`

	TotalObservations   int       `json:"total_observations"`
	ConsistentDecisions int       `json:"consistent_decisions"`
	FirstObserved       time.Time `json:"first_observed"`
	LastObserved        time.Time `json:"last_observed"`
	AvgDecisionTimeMS   float64   `json:"avg_decision_time_ms"`
}

// Confidence is the fraction of consistent decisions, damped for small
// samples: (consistent/total) * min(1, total/30). Always in [0,1] and
// zero when nothing was observed.
func (p *Pattern) Confidence() float64 {
	if p.TotalObservations == 0 {
		return 0
	}
	ratio := float64(p.ConsistentDecisions) / float64(p.TotalObservations)
	damp := float64(p.TotalObservations) / 30.0
	if damp > 1 {
		damp = 1
	}
	return ratio * damp
}

// Specificity is the number of constrained dimensions.
func (p *Pattern) Specificity() int { return p.Conditions.Specificity() }

// Score ranks patterns for proposal ordering: more specific patterns
// win between equal confidences.
func (p *Pattern) Score() float64 {
	return p.Confidence() * (1 + 0.2*float64(p.Specificity()))
}

// NewID derives a stable pattern identity from the pattern type and
// constraint set. Detection regenerates patterns on every run, so the
// id must be content-derived for decline cooldowns to stick.
func NewID(t Type, c Conditions) string {
	canon := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		t,
		strDim(c.Capability),
		strDim(c.TargetDomain),
		strDim(c.TargetCategory),
		strDim(c.Scope),
		rangeDim(c.TimeRange),
		dayDim(c.DayRange),
	)
	sum := sha256.Sum256([]byte(canon))
	return "pat-" + hex.EncodeToString(sum[:8])
}

func strDim(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func rangeDim(r *HourRange) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d,%d", r.Start, r.End)
}

func dayDim(r *DayRange) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d,%d", r.Start, r.End)
}
