// Package orchestrator is the sole boundary adapter between the
// learning engine and the rest of the platform. The orchestrator hands
// over typed step and classification structs; everything downstream
// sees only DecisionContext.
package orchestrator

import (
	"strings"
	"time"

	"github.com/steward-sh/steward/pkg/types"
)

// StepInfo is the orchestrator's view of one plan step, already reduced
// to what the engine needs. Payloads never cross this boundary; only
// the content fingerprint does.
type StepInfo struct {
	Capability  string
	Params      map[string]any
	ContentHash string
	ContentSize int
	Metadata    map[string]any
}

// Classification is the external classifier's verdict for a step. The
// engine carries the tier through unchanged and never computes one.
type Classification struct {
	Tier           types.RiskTier
	TargetCategory string
	Scope          string
}

// Parameter names probed for a target, in priority order. The mapping
// of "which field is the target" lives here, on the orchestrator side
// of the boundary.
var targetParamKeys = []string{"to", "recipient", "email", "target", "channel", "url", "path", "address"}

// BuildDecisionContext is the single translation point from a plan step
// into a DecisionContext.
func BuildDecisionContext(step StepInfo, cls Classification, at time.Time) types.DecisionContext {
	return types.NewDecisionContext(types.ContextParams{
		Capability:     step.Capability,
		RiskTier:       cls.Tier,
		Target:         inferTarget(step.Params),
		TargetCategory: cls.TargetCategory,
		Scope:          cls.Scope,
		Timestamp:      at,
		ContentHash:    step.ContentHash,
		ContentSize:    step.ContentSize,
		Metadata:       step.Metadata,
	})
}

func inferTarget(params map[string]any) string {
	for _, key := range targetParamKeys {
		v, ok := params[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if key == "channel" && !strings.HasPrefix(s, "channel:") {
			return "channel:" + s
		}
		return s
	}
	return ""
}
