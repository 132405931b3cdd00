// Package rules owns the automation rule set: the persisted lifecycle
// state machine, guardrail counters, and the authorization check with
// deny-always-wins conflict resolution.
package rules

import (
	"time"

	"github.com/steward-sh/steward/internal/pattern"
	"github.com/steward-sh/steward/pkg/types"
)

// Status is the lifecycle state of an automation rule. Rules are
// created proposed, become active only on explicit owner confirmation,
// and move to paused or revoked by owner action.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusRevoked  Status = "revoked"
)

// Action is an authorization verdict.
type Action string

const (
	ActionAutoApprove Action = "auto_approve"
	ActionAutoDeny    Action = "auto_deny"
	ActionAskOwner    Action = "ask_owner"
)

const dateLayout = "2006-01-02"

// AutomationRule authorizes the agent to decide a class of actions
// without owner intervention. A cap of zero means unlimited.
type AutomationRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	PatternID  string             `json:"pattern_id"`
	Type       Action             `json:"pattern_type"` // auto_approve | auto_deny
	Conditions pattern.Conditions `json:"conditions"`
	Confidence float64            `json:"confidence"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`

	MaxAutoPerDay int `json:"max_auto_decisions_per_day"`
	MaxAutoTotal  int `json:"max_auto_decisions_total"`

	AutoDecisionsToday int    `json:"auto_decisions_today"`
	AutoDecisionsTotal int    `json:"auto_decisions_total"`
	LastResetDate      string `json:"last_reset_date,omitempty"`

	OwnerConfirmed bool `json:"owner_confirmed"`
}

// UsedToday returns the effective daily counter: a counter from a past
// UTC date counts as zero.
func (r *AutomationRule) UsedToday(now time.Time) int {
	if r.LastResetDate != now.UTC().Format(dateLayout) {
		return 0
	}
	return r.AutoDecisionsToday
}

// IsActiveAt reports whether the rule may decide right now: status
// active, owner confirmed, and both usage counters under their caps.
func (r *AutomationRule) IsActiveAt(now time.Time) bool {
	if r.Status != StatusActive || !r.OwnerConfirmed {
		return false
	}
	if r.MaxAutoPerDay > 0 && r.UsedToday(now) >= r.MaxAutoPerDay {
		return false
	}
	if r.MaxAutoTotal > 0 && r.AutoDecisionsTotal >= r.MaxAutoTotal {
		return false
	}
	return true
}

// IncrementUsage resets the daily counter on a UTC date change, then
// increments both counters.
func (r *AutomationRule) IncrementUsage(now time.Time) {
	today := now.UTC().Format(dateLayout)
	if r.LastResetDate != today {
		r.AutoDecisionsToday = 0
		r.LastResetDate = today
	}
	r.AutoDecisionsToday++
	r.AutoDecisionsTotal++
}

// MatchesContext reports whether the rule's conditions hold for ctx.
func (r *AutomationRule) MatchesContext(ctx types.DecisionContext) bool {
	return r.Conditions.Matches(ctx)
}

// Specificity is the number of constrained condition dimensions.
func (r *AutomationRule) Specificity() int { return r.Conditions.Specificity() }

// RuleCheckResult is the verdict of one authorization check. It is
// never persisted; the decision record written afterwards is the
// durable trace.
type RuleCheckResult struct {
	Action     Action  `json:"action"`
	RuleID     string  `json:"rule_id,omitempty"`
	RuleName   string  `json:"rule_name,omitempty"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
}
