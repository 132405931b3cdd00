package orchestrator

import (
	"log/slog"

	"github.com/steward-sh/steward/internal/analyzer"
	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

// Authorizer wraps the rule engine behind the engine's feature toggle.
// The toggle arrives as explicit configuration; nothing here reads
// ambient global state.
type Authorizer struct {
	engine  *rules.Engine
	enabled bool
}

func NewAuthorizer(engine *rules.Engine, enabled bool) *Authorizer {
	return &Authorizer{engine: engine, enabled: enabled}
}

// Check returns the authorization verdict for a context. With the
// engine disabled every action goes back to the owner.
func (a *Authorizer) Check(ctx types.DecisionContext) rules.RuleCheckResult {
	if !a.enabled {
		return rules.RuleCheckResult{Action: rules.ActionAskOwner, Reason: "automation disabled"}
	}
	return a.engine.Check(ctx)
}

// Recorder writes decisions into the journal. It must be invoked
// exactly once per decision of either origin: the journal is the
// detector's only input stream.
type Recorder struct {
	log      *decisionlog.Log
	engine   *rules.Engine
	analyzer *analyzer.Analyzer
	enabled  bool
	logger   *slog.Logger
}

func NewRecorder(log *decisionlog.Log, engine *rules.Engine, an *analyzer.Analyzer, enabled bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: log, engine: engine, analyzer: an, enabled: enabled, logger: logger}
}

// RecordManual logs an owner decision, ticks the decline cooldowns, and
// gives the analyzer a chance to run.
func (r *Recorder) RecordManual(ctx types.DecisionContext, approved bool, decisionTimeMS int64, reason string) types.DecisionRecord {
	decision := types.DecisionDenied
	if approved {
		decision = types.DecisionApproved
	}
	rec := r.log.Record(ctx, decision, decisionTimeMS, reason, "")
	r.engine.DecrementCooldowns()
	if r.enabled && r.analyzer != nil {
		r.analyzer.MaybeAnalyze()
	}
	return rec
}

// RecordAutomated logs a decision made by an automation rule.
func (r *Recorder) RecordAutomated(ctx types.DecisionContext, result rules.RuleCheckResult) types.DecisionRecord {
	decision := types.DecisionDenied
	if result.Action == rules.ActionAutoApprove {
		decision = types.DecisionApproved
	}
	return r.log.Record(ctx, decision, 0, result.Reason, result.RuleID)
}
