// Package detector mines the decision journal for statistically
// consistent behavioral patterns and turns them into automation rule
// proposals. Detection is pure frequency and consistency counting over
// explicit dimensions; it performs no I/O and an empty input yields an
// empty result, never an error.
package detector

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/steward-sh/steward/internal/pattern"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

// Config carries the externally owned detection thresholds and the
// guardrail defaults stamped onto generated proposals.
type Config struct {
	MinObservations         int
	ConfidenceThreshold     float64
	MaxPatternDimensions    int
	AnalysisTriggerInterval int

	NeverAutomate []string
	MaxAutoPerDay int
	MaxAutoTotal  int
}

// Detector is a pure pattern-mining algorithm over decision records.
type Detector struct {
	cfg    Config
	never  *pattern.GlobSet
	logger *slog.Logger
}

// New compiles the never-automate globs and returns a detector.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	never, err := pattern.NewGlobSet(cfg.NeverAutomate)
	if err != nil {
		return nil, fmt.Errorf("never_automate: %w", err)
	}
	return &Detector{cfg: cfg, never: never, logger: logger}, nil
}

// AnalysisCounter is the slice of the decision log the trigger check
// needs.
type AnalysisCounter interface {
	CountSinceLastAnalysis() int
}

// ShouldAnalyze reports whether enough decisions accumulated since the
// last detection run.
func (d *Detector) ShouldAnalyze(log AnalysisCounter) bool {
	return log.CountSinceLastAnalysis() >= d.cfg.AnalysisTriggerInterval
}

// Fixed temporal grouping buckets. A record can fall into more than one
// hour bucket (business_hours overlaps morning and afternoon).
var hourBuckets = []struct {
	name string
	r    pattern.HourRange
}{
	{"morning", pattern.HourRange{Start: 6, End: 12}},
	{"afternoon", pattern.HourRange{Start: 12, End: 17}},
	{"evening", pattern.HourRange{Start: 17, End: 22}},
	{"night", pattern.HourRange{Start: 22, End: 6}},
	{"business_hours", pattern.HourRange{Start: 9, End: 17}},
}

var dayBuckets = []struct {
	name string
	r    pattern.DayRange
}{
	{"weekdays", pattern.DayRange{Start: 0, End: 4}},
	{"weekends", pattern.DayRange{Start: 5, End: 6}},
}

// DetectSingleDimension groups records along each dimension in
// isolation and keeps the groups that are large and consistent enough.
// Results are sorted by confidence, descending.
func (d *Detector) DetectSingleDimension(records []types.DecisionRecord) []*pattern.Pattern {
	var out []*pattern.Pattern

	keep := func(p *pattern.Pattern) {
		if p != nil && p.TotalObservations >= d.cfg.MinObservations && p.Confidence() >= d.cfg.ConfidenceThreshold {
			out = append(out, p)
		}
	}

	for value, group := range groupBy(records, func(r types.DecisionRecord) string { return r.Context.Capability }) {
		if value == "" {
			continue
		}
		v := value
		keep(summarize(group, pattern.Conditions{Capability: &v}))
	}
	for value, group := range groupBy(records, func(r types.DecisionRecord) string { return r.Context.TargetDomain }) {
		if value == "" {
			continue
		}
		v := value
		keep(summarize(group, pattern.Conditions{TargetDomain: &v}))
	}
	for value, group := range groupBy(records, func(r types.DecisionRecord) string { return r.Context.TargetCategory }) {
		if value == "" {
			continue
		}
		v := value
		keep(summarize(group, pattern.Conditions{TargetCategory: &v}))
	}
	for value, group := range groupBy(records, func(r types.DecisionRecord) string { return r.Context.Scope }) {
		if value == "" {
			continue
		}
		v := value
		keep(summarize(group, pattern.Conditions{Scope: &v}))
	}

	for _, bucket := range hourBuckets {
		r := bucket.r
		group := filterRecords(records, func(rec types.DecisionRecord) bool {
			return r.Contains(rec.Context.HourOfDay)
		})
		keep(summarize(group, pattern.Conditions{TimeRange: &r}))
	}
	for _, bucket := range dayBuckets {
		r := bucket.r
		group := filterRecords(records, func(rec types.DecisionRecord) bool {
			return r.Contains(rec.Context.DayOfWeek)
		})
		keep(summarize(group, pattern.Conditions{DayRange: &r}))
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Confidence(), out[j].Confidence()
		if ci != cj {
			return ci > cj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DetectMultiDimension refines base patterns by adding one
// unconstrained dimension at a time, for up to max_pattern_dimensions-1
// rounds. A candidate survives only if it keeps the minimum observation
// count and its confidence improves on (or equals) the base pattern's
// while staying over the global threshold.
func (d *Detector) DetectMultiDimension(records []types.DecisionRecord, basePatterns []*pattern.Pattern) []*pattern.Pattern {
	var all []*pattern.Pattern
	current := basePatterns

	for round := 0; round < d.cfg.MaxPatternDimensions-1; round++ {
		var next []*pattern.Pattern
		for _, base := range current {
			if base.Specificity() >= d.cfg.MaxPatternDimensions {
				continue
			}
			matched := filterRecords(records, func(rec types.DecisionRecord) bool {
				return base.Conditions.Matches(rec.Context)
			})
			if len(matched) < d.cfg.MinObservations {
				continue
			}
			for _, cand := range d.refine(base, matched) {
				if cand.TotalObservations < d.cfg.MinObservations {
					continue
				}
				if cand.Confidence() < base.Confidence() || cand.Confidence() < d.cfg.ConfidenceThreshold {
					continue
				}
				next = append(next, cand)
			}
		}
		if len(next) == 0 {
			break
		}
		all = append(all, next...)
		current = next
	}
	return all
}

// refine produces one candidate per sub-group along every dimension the
// base pattern leaves unconstrained.
func (d *Detector) refine(base *pattern.Pattern, matched []types.DecisionRecord) []*pattern.Pattern {
	var out []*pattern.Pattern
	cond := base.Conditions

	addString := func(get func(types.DecisionRecord) string, set func(*pattern.Conditions, *string)) {
		for value, group := range groupBy(matched, get) {
			if value == "" {
				continue
			}
			v := value
			c := cond
			set(&c, &v)
			if p := summarize(group, c); p != nil {
				out = append(out, p)
			}
		}
	}

	if cond.Capability == nil {
		addString(
			func(r types.DecisionRecord) string { return r.Context.Capability },
			func(c *pattern.Conditions, v *string) { c.Capability = v },
		)
	}
	if cond.TargetDomain == nil {
		addString(
			func(r types.DecisionRecord) string { return r.Context.TargetDomain },
			func(c *pattern.Conditions, v *string) { c.TargetDomain = v },
		)
	}
	if cond.TargetCategory == nil {
		addString(
			func(r types.DecisionRecord) string { return r.Context.TargetCategory },
			func(c *pattern.Conditions, v *string) { c.TargetCategory = v },
		)
	}
	if cond.Scope == nil {
		addString(
			func(r types.DecisionRecord) string { return r.Context.Scope },
			func(c *pattern.Conditions, v *string) { c.Scope = v },
		)
	}
	if cond.TimeRange == nil {
		for _, bucket := range hourBuckets {
			r := bucket.r
			group := filterRecords(matched, func(rec types.DecisionRecord) bool {
				return r.Contains(rec.Context.HourOfDay)
			})
			c := cond
			c.TimeRange = &r
			if p := summarize(group, c); p != nil {
				out = append(out, p)
			}
		}
	}
	if cond.DayRange == nil {
		for _, bucket := range dayBuckets {
			r := bucket.r
			group := filterRecords(matched, func(rec types.DecisionRecord) bool {
				return r.Contains(rec.Context.DayOfWeek)
			})
			c := cond
			c.DayRange = &r
			if p := summarize(group, c); p != nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// DetectAll runs single- then multi-dimension detection, deduplicates
// by identity and specificity subsumption, re-applies the confidence
// threshold, and ranks by score (ties by pattern id).
func (d *Detector) DetectAll(records []types.DecisionRecord) []*pattern.Pattern {
	if len(records) == 0 {
		return nil
	}
	single := d.DetectSingleDimension(records)
	multi := d.DetectMultiDimension(records, single)

	byID := make(map[string]*pattern.Pattern)
	var combined []*pattern.Pattern
	for _, p := range append(single, multi...) {
		if _, seen := byID[p.ID]; seen {
			continue
		}
		byID[p.ID] = p
		combined = append(combined, p)
	}

	var out []*pattern.Pattern
	for _, p := range combined {
		if subsumed(p, combined) {
			continue
		}
		if p.Confidence() < d.cfg.ConfidenceThreshold {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// subsumed reports whether a strictly more specific pattern of the same
// type covers the same observed population with a superset of p's
// constraints.
func subsumed(p *pattern.Pattern, all []*pattern.Pattern) bool {
	for _, q := range all {
		if q == p || q.Type != p.Type {
			continue
		}
		if q.Specificity() <= p.Specificity() {
			continue
		}
		if q.TotalObservations == p.TotalObservations && q.Conditions.Superset(p.Conditions) {
			return true
		}
	}
	return false
}

// GenerateProposals converts ranked patterns into proposed automation
// rules. A pattern is skipped when its capability constraint, or any
// capability in the records it was mined from, is on the never-automate
// list: a capability-free pattern over forbidden records must not
// become a rule either. Proposals are never owner-confirmed; activation
// is an explicit owner action.
func (d *Detector) GenerateProposals(patterns []*pattern.Pattern, records []types.DecisionRecord) []*rules.AutomationRule {
	now := time.Now().UTC()
	var out []*rules.AutomationRule
	for _, p := range patterns {
		if d.coversNeverAutomate(p, records) {
			d.logger.Debug("skipping never-automate pattern", "pattern", p.ID, "conditions", p.Conditions.Summary())
			continue
		}
		action := rules.ActionAutoApprove
		if p.Type == pattern.TypeDenial {
			action = rules.ActionAutoDeny
		}
		out = append(out, &rules.AutomationRule{
			ID:            "rule-" + uuid.NewString(),
			Name:          ruleName(action, p),
			Description:   describe(p),
			PatternID:     p.ID,
			Type:          action,
			Conditions:    p.Conditions,
			Confidence:    p.Confidence(),
			Status:        rules.StatusProposed,
			CreatedAt:     now,
			MaxAutoPerDay: d.cfg.MaxAutoPerDay,
			MaxAutoTotal:  d.cfg.MaxAutoTotal,
		})
	}
	return out
}

// coversNeverAutomate reports whether a pattern touches a forbidden
// capability, either through its own capability constraint or through
// any record in the population it matches.
func (d *Detector) coversNeverAutomate(p *pattern.Pattern, records []types.DecisionRecord) bool {
	if p.Conditions.Capability != nil && d.never.MatchAny(*p.Conditions.Capability) {
		return true
	}
	for _, r := range records {
		if p.Conditions.Matches(r.Context) && d.never.MatchAny(r.Context.Capability) {
			return true
		}
	}
	return false
}

func ruleName(action rules.Action, p *pattern.Pattern) string {
	verb := "Auto-approve"
	if action == rules.ActionAutoDeny {
		verb = "Auto-deny"
	}
	return fmt.Sprintf("%s: %s", verb, p.Conditions.Summary())
}

func describe(p *pattern.Pattern) string {
	return fmt.Sprintf(
		"%d of %d decisions were consistent between %s and %s (avg decision time %.0fms, confidence %.0f%%)",
		p.ConsistentDecisions,
		p.TotalObservations,
		p.FirstObserved.Format("2006-01-02"),
		p.LastObserved.Format("2006-01-02"),
		p.AvgDecisionTimeMS,
		p.Confidence()*100,
	)
}

// summarize computes a pattern over one group of records: majority
// decision (ties favor approval), consistency count, observation span,
// and average decision latency.
func summarize(records []types.DecisionRecord, cond pattern.Conditions) *pattern.Pattern {
	if len(records) == 0 {
		return nil
	}
	approvals := 0
	var first, last time.Time
	var totalMS int64
	for i, r := range records {
		if r.IsApproval() {
			approvals++
		}
		ts := r.Context.Timestamp
		if i == 0 || ts.Before(first) {
			first = ts
		}
		if i == 0 || ts.After(last) {
			last = ts
		}
		totalMS += r.DecisionTimeMS
	}

	denials := len(records) - approvals
	t := pattern.TypeApproval
	consistent := approvals
	if denials > approvals {
		t = pattern.TypeDenial
		consistent = denials
	}

	return &pattern.Pattern{
		ID:                  pattern.NewID(t, cond),
		Type:                t,
		Conditions:          cond,
		TotalObservations:   len(records),
		ConsistentDecisions: consistent,
		FirstObserved:       first,
		LastObserved:        last,
		AvgDecisionTimeMS:   float64(totalMS) / float64(len(records)),
	}
}

func groupBy(records []types.DecisionRecord, key func(types.DecisionRecord) string) map[string][]types.DecisionRecord {
	groups := make(map[string][]types.DecisionRecord)
	for _, r := range records {
		groups[key(r)] = append(groups[key(r)], r)
	}
	return groups
}

func filterRecords(records []types.DecisionRecord, keep func(types.DecisionRecord) bool) []types.DecisionRecord {
	var out []types.DecisionRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
