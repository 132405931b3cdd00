package analyzer

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/detector"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	log      *decisionlog.Log
	engine   *rules.Engine
	analyzer *Analyzer
}

func newFixture(t *testing.T, detCfg detector.Config, engCfg rules.EngineConfig) *fixture {
	t.Helper()
	dir := t.TempDir()

	l, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	e, err := rules.NewEngine(filepath.Join(dir, "rules.json"), engCfg, testLogger())
	require.NoError(t, err)

	d, err := detector.New(detCfg, testLogger())
	require.NoError(t, err)

	return &fixture{
		log:      l,
		engine:   e,
		analyzer: New(l, e, d, 30, testLogger()),
	}
}

func learnableConfig() detector.Config {
	return detector.Config{
		MinObservations:         5,
		ConfidenceThreshold:     0.10,
		MaxPatternDimensions:    3,
		AnalysisTriggerInterval: 5,
		MaxAutoPerDay:           50,
		MaxAutoTotal:            500,
	}
}

func (f *fixture) approve(n int) {
	for i := 0; i < n; i++ {
		ctx := types.NewDecisionContext(types.ContextParams{
			Capability: "connector.email.send_message",
			Target:     "bob@client.com",
			Timestamp:  time.Now(),
		})
		f.log.Record(ctx, types.DecisionApproved, 1000, "", "")
	}
}

func TestAnalyzeBelowTriggerIsNoop(t *testing.T) {
	f := newFixture(t, learnableConfig(), rules.EngineConfig{})

	f.approve(4)
	f.analyzer.MaybeAnalyze()

	assert.Empty(t, f.engine.Rules())
	assert.Equal(t, 4, f.log.CountSinceLastAnalysis())
}

func TestAnalyzeCreatesProposals(t *testing.T) {
	f := newFixture(t, learnableConfig(), rules.EngineConfig{})

	f.approve(6)
	f.analyzer.MaybeAnalyze()

	pending := f.engine.PendingProposals()
	require.NotEmpty(t, pending)
	for _, p := range pending {
		assert.Equal(t, rules.StatusProposed, p.Status)
		assert.Equal(t, rules.ActionAutoApprove, p.Type)
		assert.False(t, p.OwnerConfirmed)
	}
	assert.Zero(t, f.log.CountSinceLastAnalysis())
}

func TestAnalyzeSkipsDeclinedPatterns(t *testing.T) {
	f := newFixture(t, learnableConfig(), rules.EngineConfig{CooldownAfterDecline: 100})

	f.approve(6)
	f.analyzer.MaybeAnalyze()
	pending := f.engine.PendingProposals()
	require.NotEmpty(t, pending)

	for _, p := range pending {
		require.NoError(t, f.engine.Decline(p.ID))
	}

	// The identical history must not resurface the declined patterns.
	f.approve(6)
	f.analyzer.MaybeAnalyze()
	assert.Empty(t, f.engine.PendingProposals())
}

func TestAnalyzeDuplicateProposalsSkipSilently(t *testing.T) {
	f := newFixture(t, learnableConfig(), rules.EngineConfig{})

	f.approve(6)
	f.analyzer.MaybeAnalyze()
	first := len(f.engine.PendingProposals())
	require.NotZero(t, first)

	f.approve(6)
	f.analyzer.MaybeAnalyze()
	assert.Equal(t, first, len(f.engine.PendingProposals()))
	assert.Zero(t, f.log.CountSinceLastAnalysis())
}

func TestAnalyzeConsumesCounterWhenNothingQualifies(t *testing.T) {
	cfg := learnableConfig()
	cfg.MinObservations = 100 // nothing can qualify
	f := newFixture(t, cfg, rules.EngineConfig{})

	f.approve(6)
	f.analyzer.MaybeAnalyze()

	assert.Empty(t, f.engine.Rules())
	assert.Zero(t, f.log.CountSinceLastAnalysis())
}

func TestSetDetectorSwapsThresholds(t *testing.T) {
	cfg := learnableConfig()
	cfg.AnalysisTriggerInterval = 1000
	f := newFixture(t, cfg, rules.EngineConfig{})

	f.approve(6)
	f.analyzer.MaybeAnalyze()
	assert.Empty(t, f.engine.PendingProposals())

	next, err := detector.New(learnableConfig(), testLogger())
	require.NoError(t, err)
	f.analyzer.SetDetector(next, 30)

	f.analyzer.MaybeAnalyze()
	assert.NotEmpty(t, f.engine.PendingProposals())
}
