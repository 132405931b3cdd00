package server

import (
	"net/http"
	"time"

	"github.com/steward-sh/steward/internal/orchestrator"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

type stepPayload struct {
	Capability  string         `json:"capability"`
	Params      map[string]any `json:"params,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	ContentSize int            `json:"content_size,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type classificationPayload struct {
	RiskTier       int    `json:"risk_tier"`
	TargetCategory string `json:"target_category,omitempty"`
	Scope          string `json:"scope,omitempty"`
}

func (p stepPayload) toStep() orchestrator.StepInfo {
	return orchestrator.StepInfo{
		Capability:  p.Capability,
		Params:      p.Params,
		ContentHash: p.ContentHash,
		ContentSize: p.ContentSize,
		Metadata:    p.Metadata,
	}
}

func (p classificationPayload) toClassification() orchestrator.Classification {
	return orchestrator.Classification{
		Tier:           types.RiskTier(p.RiskTier),
		TargetCategory: p.TargetCategory,
		Scope:          p.Scope,
	}
}

// checkStep is the orchestrator's authorization entry point. An
// automated verdict is recorded immediately; ask_owner is not, because
// the owner's eventual decision arrives through recordManual.
func (a *App) checkStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step           stepPayload           `json:"step"`
		Classification classificationPayload `json:"classification"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Step.Capability == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "step.capability is required"})
		return
	}

	ctx := orchestrator.BuildDecisionContext(req.Step.toStep(), req.Classification.toClassification(), time.Now())
	result := a.authorizer.Check(ctx)

	var recorded *types.DecisionRecord
	if result.Action != rules.ActionAskOwner {
		rec := a.recorder.RecordAutomated(ctx, result)
		recorded = &rec
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"context": ctx,
		"record":  recorded,
	})
}

// recordManual logs the owner's decision for a step that came back
// ask_owner. This is also what drives cooldown ticks and analysis.
func (a *App) recordManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step           stepPayload           `json:"step"`
		Classification classificationPayload `json:"classification"`
		Approved       bool                  `json:"approved"`
		DecisionTimeMS int64                 `json:"decision_time_ms"`
		Reason         string                `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Step.Capability == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "step.capability is required"})
		return
	}

	ctx := orchestrator.BuildDecisionContext(req.Step.toStep(), req.Classification.toClassification(), time.Now())
	rec := a.recorder.RecordManual(ctx, req.Approved, req.DecisionTimeMS, req.Reason)
	writeJSON(w, http.StatusOK, rec)
}
