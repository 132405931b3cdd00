// Package analyzer decides when pattern detection re-runs and feeds the
// resulting proposals into the rule engine. It is invoked inline after
// manual decisions; there is no background scheduler.
package analyzer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/steward-sh/steward/internal/decisionlog"
	"github.com/steward-sh/steward/internal/detector"
	"github.com/steward-sh/steward/internal/rules"
)

type Analyzer struct {
	log    *decisionlog.Log
	engine *rules.Engine
	logger *slog.Logger

	mu         sync.Mutex
	detector   *detector.Detector
	windowDays int
}

func New(log *decisionlog.Log, engine *rules.Engine, det *detector.Detector, windowDays int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{log: log, engine: engine, detector: det, windowDays: windowDays, logger: logger}
}

// SetDetector swaps in reloaded learning thresholds.
func (a *Analyzer) SetDetector(det *detector.Detector, windowDays int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = det
	a.windowDays = windowDays
}

// MaybeAnalyze runs one detection pass when enough decisions have
// accumulated. Duplicate-pattern and rule-limit errors skip a single
// proposal rather than abort the batch, and the journal's counter is
// consumed even when nothing was added so the next decision does not
// immediately re-trigger a full run.
func (a *Analyzer) MaybeAnalyze() {
	a.mu.Lock()
	det, windowDays := a.detector, a.windowDays
	a.mu.Unlock()

	if !det.ShouldAnalyze(a.log) {
		return
	}
	window := a.log.Window(windowDays)
	if len(window) == 0 {
		return
	}

	patterns := det.DetectAll(window)
	proposals := det.GenerateProposals(patterns, window)

	added := 0
	for _, p := range proposals {
		if a.engine.IsPatternDeclined(p.PatternID) {
			a.logger.Debug("pattern in decline cooldown", "pattern", p.PatternID)
			continue
		}
		if err := a.engine.AddProposal(p); err != nil {
			if errors.Is(err, rules.ErrDuplicatePattern) || errors.Is(err, rules.ErrRuleLimit) {
				a.logger.Debug("proposal skipped", "pattern", p.PatternID, "reason", err)
			} else {
				a.logger.Warn("proposal rejected", "pattern", p.PatternID, "error", err)
			}
			continue
		}
		added++
	}
	a.log.MarkAnalysisComplete()
	a.logger.Info("analysis complete",
		"window", len(window), "patterns", len(patterns), "proposals", len(proposals), "added", added)
}
