// Package report renders the read-only owner-facing view: rule status
// counts, today's automation activity, tripped guardrails, and
// human-readable proposal descriptions.
package report

import (
	"fmt"
	"time"

	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

// Summary is the aggregate view served to the owner UI.
type Summary struct {
	RuleCounts map[rules.Status]int   `json:"rule_counts"`
	Today      decisionlog.TodayStats `json:"today"`

	TotalDecisions int     `json:"total_decisions"`
	AutomationRate float64 `json:"automation_rate"`

	Rules []RuleSummary `json:"rules"`

	CircuitBreakers     []RuleSummary `json:"circuit_breakers"`
	NeedsReconfirmation []RuleSummary `json:"needs_reconfirmation"`

	RecentDecisions []types.DecisionRecord `json:"recent_decisions"`
}

// RuleSummary is the per-rule slice of the summary.
type RuleSummary struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Status     rules.Status `json:"status"`
	Type       rules.Action `json:"type"`
	Conditions string       `json:"conditions"`
	UsedToday  int          `json:"used_today"`
	UsedTotal  int          `json:"used_total"`
	Confidence float64      `json:"confidence"`
}

// Proposal is one pending rule awaiting the owner's approve/decline.
type Proposal struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Conditions  string  `json:"conditions"`
	Confidence  float64 `json:"confidence"`
}

// Build assembles the summary from the journal and the rule engine.
func Build(log *decisionlog.Log, engine *rules.Engine, recentN int) Summary {
	stats := log.Stats()

	rate := 0.0
	if stats.Total > 0 {
		rate = float64(stats.Auto) / float64(stats.Total)
	}

	s := Summary{
		RuleCounts:          engine.StatusCounts(),
		Today:               log.Today(),
		TotalDecisions:      stats.Total,
		AutomationRate:      rate,
		Rules:               summarizeRules(engine.Rules()),
		CircuitBreakers:     summarizeRules(engine.CheckCircuitBreakers()),
		NeedsReconfirmation: summarizeRules(engine.CheckReconfirmation()),
		RecentDecisions:     log.Recent(recentN),
	}
	return s
}

// Proposals renders every pending proposal with its human-readable
// description for the owner's approve/decline action pair.
func Proposals(engine *rules.Engine) []Proposal {
	pending := engine.PendingProposals()
	out := make([]Proposal, 0, len(pending))
	for _, r := range pending {
		out = append(out, Proposal{
			ID:          r.ID,
			Name:        r.Name,
			Description: DescribeProposal(r),
			Conditions:  r.Conditions.Summary(),
			Confidence:  r.Confidence,
		})
	}
	return out
}

// DescribeProposal renders one proposal for owner review.
func DescribeProposal(r rules.AutomationRule) string {
	verb := "approve"
	if r.Type == rules.ActionAutoDeny {
		verb = "deny"
	}
	return fmt.Sprintf("Automatically %s actions matching %s. %s", verb, r.Conditions.Summary(), r.Description)
}

func summarizeRules(rs []rules.AutomationRule) []RuleSummary {
	now := time.Now().UTC()
	out := make([]RuleSummary, 0, len(rs))
	for _, r := range rs {
		out = append(out, RuleSummary{
			ID:         r.ID,
			Name:       r.Name,
			Status:     r.Status,
			Type:       r.Type,
			Conditions: r.Conditions.Summary(),
			UsedToday:  r.UsedToday(now),
			UsedTotal:  r.AutoDecisionsTotal,
			Confidence: r.Confidence,
		})
	}
	return out
}
