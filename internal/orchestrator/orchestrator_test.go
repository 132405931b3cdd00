package orchestrator

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

func TestInferTarget(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"recipient email", map[string]any{"to": "bob@client.com"}, "bob@client.com"},
		{"priority order", map[string]any{"url": "https://x.com", "to": "bob@client.com"}, "bob@client.com"},
		{"channel gets prefixed", map[string]any{"channel": "#general"}, "channel:#general"},
		{"channel already prefixed", map[string]any{"channel": "channel:#general"}, "channel:#general"},
		{"non-string skipped", map[string]any{"to": 42, "url": "https://x.com"}, "https://x.com"},
		{"empty string skipped", map[string]any{"to": "", "path": "/tmp/out"}, "/tmp/out"},
		{"nothing usable", map[string]any{"body": "hello"}, ""},
		{"nil params", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferTarget(tt.params))
		})
	}
}

func TestBuildDecisionContext(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC) // Monday
	step := StepInfo{
		Capability:  "connector.email.send_message",
		Params:      map[string]any{"to": "bob@client.com"},
		ContentHash: "abc123",
		ContentSize: 512,
	}
	cls := Classification{Tier: types.TierHigh, TargetCategory: "external_email", Scope: "workspace"}

	ctx := BuildDecisionContext(step, cls, at)
	assert.Equal(t, "connector.email.send_message", ctx.Capability)
	assert.Equal(t, "bob@client.com", ctx.Target)
	assert.Equal(t, "client.com", ctx.TargetDomain)
	assert.Equal(t, "external_email", ctx.TargetCategory)
	assert.Equal(t, "workspace", ctx.Scope)
	assert.Equal(t, types.TierHigh, ctx.RiskTier)
	assert.Equal(t, 0, ctx.DayOfWeek)
	assert.Equal(t, 14, ctx.HourOfDay)
	assert.Equal(t, "abc123", ctx.ContentHash)
	assert.Equal(t, 512, ctx.ContentSize)
}

func TestAuthorizerDisabled(t *testing.T) {
	e, err := rules.NewEngine(filepath.Join(t.TempDir(), "rules.json"), rules.EngineConfig{}, testLogger())
	require.NoError(t, err)

	rule := &rules.AutomationRule{
		ID:         "rule-a",
		PatternID:  "pat-1",
		Type:       rules.ActionAutoApprove,
		Conditions: pattern.Conditions{Capability: strp("connector.email.send_message")},
		Status:     rules.StatusProposed,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, e.AddProposal(rule))
	require.NoError(t, e.Activate("rule-a"))

	ctx := types.NewDecisionContext(types.ContextParams{
		Capability: "connector.email.send_message",
		Target:     "bob@client.com",
		Timestamp:  time.Now(),
	})

	on := NewAuthorizer(e, true)
	assert.Equal(t, rules.ActionAutoApprove, on.Check(ctx).Action)

	off := NewAuthorizer(e, false)
	res := off.Check(ctx)
	assert.Equal(t, rules.ActionAskOwner, res.Action)
	assert.Empty(t, res.RuleID)
}

func TestRecorderManualTicksCooldowns(t *testing.T) {
	dir := t.TempDir()
	l, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), testLogger())
	require.NoError(t, err)
	defer l.Close()

	e, err := rules.NewEngine(filepath.Join(dir, "rules.json"), rules.EngineConfig{CooldownAfterDecline: 2}, testLogger())
	require.NoError(t, err)

	declined := &rules.AutomationRule{
		ID:         "rule-a",
		PatternID:  "pat-1",
		Type:       rules.ActionAutoApprove,
		Conditions: pattern.Conditions{Capability: strp("connector.email.send_message")},
		Status:     rules.StatusProposed,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, e.AddProposal(declined))
	require.NoError(t, e.Decline("rule-a"))
	require.True(t, e.IsPatternDeclined("pat-1"))

	r := NewRecorder(l, e, nil, false, testLogger())
	ctx := types.NewDecisionContext(types.ContextParams{
		Capability: "shell.exec",
		Timestamp:  time.Now(),
	})

	rec := r.RecordManual(ctx, true, 900, "fine")
	assert.Equal(t, types.DecisionApproved, rec.Decision)
	assert.False(t, rec.IsAuto())
	assert.True(t, e.IsPatternDeclined("pat-1"))

	r.RecordManual(ctx, false, 0, "")
	assert.False(t, e.IsPatternDeclined("pat-1"))

	assert.Equal(t, 2, l.Stats().Total)
}

func TestRecorderAutomated(t *testing.T) {
	dir := t.TempDir()
	l, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), testLogger())
	require.NoError(t, err)
	defer l.Close()

	e, err := rules.NewEngine(filepath.Join(dir, "rules.json"), rules.EngineConfig{}, testLogger())
	require.NoError(t, err)

	r := NewRecorder(l, e, nil, true, testLogger())
	ctx := types.NewDecisionContext(types.ContextParams{
		Capability: "connector.email.send_message",
		Target:     "bob@client.com",
		Timestamp:  time.Now(),
	})

	rec := r.RecordAutomated(ctx, rules.RuleCheckResult{
		Action: rules.ActionAutoApprove,
		RuleID: "rule-a",
		Reason: "matched",
	})
	assert.Equal(t, types.DecisionApproved, rec.Decision)
	assert.Equal(t, "rule-a", rec.RuleID)
	assert.True(t, rec.IsAuto())

	rec = r.RecordAutomated(ctx, rules.RuleCheckResult{
		Action: rules.ActionAutoDeny,
		RuleID: "rule-b",
	})
	assert.Equal(t, types.DecisionDenied, rec.Decision)

	today := l.Today()
	assert.Equal(t, 1, today.AutoApproved)
	assert.Equal(t, 1, today.AutoDenied)
}
