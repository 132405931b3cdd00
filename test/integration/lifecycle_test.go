//go:build integration

package integration

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/steward-sh/steward/internal/analyzer"
	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/detector"
	"github.com/steward-sh/steward/internal/orchestrator"
	"github.com/steward-sh/steward/internal/rules"
)

// TestLearningLifecycle walks the full loop: manual decisions accumulate
// in the journal, the detector proposes a rule, the owner approves it,
// and the next identical step is decided automatically.
func TestLearningLifecycle(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	log, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), logger)
	if err != nil {
		t.Fatalf("open decision log: %v", err)
	}
	defer log.Close()

	engine, err := rules.NewEngine(filepath.Join(dir, "rules.json"), rules.EngineConfig{
		MaxActiveRules:       20,
		CooldownAfterDecline: 5,
	}, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	det, err := detector.New(detector.Config{
		MinObservations:         5,
		ConfidenceThreshold:     0.10,
		MaxPatternDimensions:    3,
		AnalysisTriggerInterval: 5,
		MaxAutoPerDay:           50,
		MaxAutoTotal:            500,
	}, logger)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	an := analyzer.New(log, engine, det, 30, logger)
	authorizer := orchestrator.NewAuthorizer(engine, true)
	recorder := orchestrator.NewRecorder(log, engine, an, true, logger)

	step := orchestrator.StepInfo{
		Capability: "connector.email.send_message",
		Params:     map[string]any{"to": "bob@client.com"},
	}
	cls := orchestrator.Classification{Scope: "workspace"}

	// Phase 1: every check goes to the owner, who approves.
	for i := 0; i < 6; i++ {
		ctx := orchestrator.BuildDecisionContext(step, cls, time.Now())
		res := authorizer.Check(ctx)
		if res.Action != rules.ActionAskOwner {
			t.Fatalf("check %d: got %s, want ask_owner", i, res.Action)
		}
		recorder.RecordManual(ctx, true, 1000, "")
	}

	// Phase 2: the analysis run must have produced proposals.
	pending := engine.PendingProposals()
	if len(pending) == 0 {
		t.Fatal("no proposals after consistent approvals")
	}

	// Phase 3: owner approves every proposal.
	for _, p := range pending {
		if p.OwnerConfirmed {
			t.Fatalf("proposal %s confirmed before owner action", p.ID)
		}
		if err := engine.Activate(p.ID); err != nil {
			t.Fatalf("activate %s: %v", p.ID, err)
		}
	}

	// Phase 4: the same step is now decided automatically and journaled.
	ctx := orchestrator.BuildDecisionContext(step, cls, time.Now())
	res := authorizer.Check(ctx)
	if res.Action != rules.ActionAutoApprove {
		t.Fatalf("post-activation check: got %s, want auto_approve", res.Action)
	}
	if res.RuleID == "" {
		t.Fatal("auto decision missing rule id")
	}
	rec := recorder.RecordAutomated(ctx, res)
	if !rec.IsAuto() {
		t.Fatal("automated record not marked auto")
	}

	// Phase 5: restart everything from disk; the rule still decides.
	if err := log.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	log2, err := decisionlog.Open(filepath.Join(dir, "decisions.jsonl"), logger)
	if err != nil {
		t.Fatalf("reopen decision log: %v", err)
	}
	defer log2.Close()
	engine2, err := rules.NewEngine(filepath.Join(dir, "rules.json"), rules.EngineConfig{}, logger)
	if err != nil {
		t.Fatalf("reopen engine: %v", err)
	}

	if got := log2.Stats().Auto; got != 1 {
		t.Fatalf("replayed auto decisions = %d, want 1", got)
	}
	res = engine2.Check(orchestrator.BuildDecisionContext(step, cls, time.Now()))
	if res.Action != rules.ActionAutoApprove {
		t.Fatalf("post-restart check: got %s, want auto_approve", res.Action)
	}
}
