package report

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/pattern"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strp(s string) *string { return &s }

func newFixtures(t *testing.T) (*decisionlog.Log, *rules.Engine) {
	t.Helper()
	dir := t.TempDir()
	l, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	e, err := rules.NewEngine(filepath.Join(dir, "rules.json"), rules.EngineConfig{}, testLogger())
	require.NoError(t, err)
	return l, e
}

func TestBuildSummary(t *testing.T) {
	l, e := newFixtures(t)

	ctx := types.NewDecisionContext(types.ContextParams{
		Capability: "connector.email.send_message",
		Target:     "bob@client.com",
		Timestamp:  time.Now(),
	})
	l.Record(ctx, types.DecisionApproved, 1000, "", "")
	l.Record(ctx, types.DecisionApproved, 0, "", "rule-a")

	s := Build(l, e, 10)
	assert.Equal(t, 2, s.TotalDecisions)
	assert.InDelta(t, 0.5, s.AutomationRate, 1e-9)
	assert.Len(t, s.RecentDecisions, 2)
}

func TestSummaryDailyUsageIgnoresStaleCounter(t *testing.T) {
	l, e := newFixtures(t)
	now := time.Now().UTC()

	stale := &rules.AutomationRule{
		ID:                 "rule-stale",
		PatternID:          "pat-1",
		Type:               rules.ActionAutoApprove,
		Conditions:         pattern.Conditions{Capability: strp("connector.email.send_message")},
		Status:             rules.StatusProposed,
		CreatedAt:          now,
		AutoDecisionsToday: 7,
		AutoDecisionsTotal: 40,
		LastResetDate:      now.AddDate(0, 0, -1).Format("2006-01-02"),
	}
	fresh := &rules.AutomationRule{
		ID:                 "rule-fresh",
		PatternID:          "pat-2",
		Type:               rules.ActionAutoApprove,
		Conditions:         pattern.Conditions{Capability: strp("connector.slack.post")},
		Status:             rules.StatusProposed,
		CreatedAt:          now,
		AutoDecisionsToday: 3,
		AutoDecisionsTotal: 12,
		LastResetDate:      now.Format("2006-01-02"),
	}
	require.NoError(t, e.AddProposal(stale))
	require.NoError(t, e.AddProposal(fresh))

	s := Build(l, e, 10)
	require.Len(t, s.Rules, 2)
	byID := map[string]RuleSummary{}
	for _, r := range s.Rules {
		byID[r.ID] = r
	}

	// Yesterday's exhausted counter is not today's usage.
	assert.Equal(t, 0, byID["rule-stale"].UsedToday)
	assert.Equal(t, 40, byID["rule-stale"].UsedTotal)
	assert.Equal(t, 3, byID["rule-fresh"].UsedToday)
	assert.Equal(t, 12, byID["rule-fresh"].UsedTotal)
}

func TestDescribeProposal(t *testing.T) {
	r := rules.AutomationRule{
		Type:        rules.ActionAutoDeny,
		Conditions:  pattern.Conditions{TargetDomain: strp("evil.com")},
		Description: "10 of 10 decisions were consistent.",
	}
	got := DescribeProposal(r)
	assert.Contains(t, got, "deny")
	assert.Contains(t, got, "domain=evil.com")
}
