package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/steward-sh/steward/pkg/types"
)

var (
	// ErrRuleNotFound is returned for lifecycle operations on unknown ids.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrDuplicatePattern is returned when a proposed or active rule
	// already exists for the same source pattern.
	ErrDuplicatePattern = errors.New("pattern already has a rule")
	// ErrRuleLimit is returned when the active-rule cap is reached.
	ErrRuleLimit = errors.New("active rule limit reached")
)

// EngineConfig carries the externally owned guardrail settings.
type EngineConfig struct {
	MaxActiveRules         int
	CooldownAfterDecline   int
	ReConfirmationInterval int
}

// Engine is the sole mutator of the rule set. One mutex guards the rule
// map and the decline-cooldown map; Check holds it across match,
// increment and persist so concurrent checks against one rule produce
// an exact usage count.
type Engine struct {
	path   string
	cfg    EngineConfig
	logger *slog.Logger

	mu       sync.Mutex
	rules    map[string]*AutomationRule
	declined map[string]int
}

type persistedState struct {
	Rules            map[string]*AutomationRule `json:"rules"`
	DeclinedPatterns map[string]int             `json:"declined_patterns"`
}

// NewEngine loads the rule store from path. A corrupt store logs a
// warning and starts empty rather than crashing: rules are
// reconstructible from the decision journal plus owner review.
func NewEngine(path string, cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("rules store path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir rules dir: %w", err)
	}

	e := &Engine{
		path:     path,
		cfg:      cfg,
		logger:   logger,
		rules:    make(map[string]*AutomationRule),
		declined: make(map[string]int),
	}
	e.load()
	return e, nil
}

func (e *Engine) load() {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("read rules store", "path", e.path, "error", err)
		}
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		e.logger.Warn("corrupt rules store, starting empty", "path", e.path, "error", err)
		return
	}
	if state.Rules != nil {
		e.rules = state.Rules
	}
	if state.DeclinedPatterns != nil {
		e.declined = state.DeclinedPatterns
	}
}

// saveLocked persists both maps as one JSON document. Persistence
// failures are logged, not returned: a decision must never block on
// disk I/O, and the in-memory state stays correct.
func (e *Engine) saveLocked() {
	state := persistedState{Rules: e.rules, DeclinedPatterns: e.declined}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		e.logger.Warn("marshal rules store", "error", err)
		return
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		e.logger.Warn("write rules store", "path", e.path, "error", err)
		return
	}
	if err := os.Rename(tmp, e.path); err != nil {
		e.logger.Warn("rename rules store", "path", e.path, "error", err)
	}
}

func (e *Engine) activeCountLocked() int {
	n := 0
	for _, r := range e.rules {
		if r.Status == StatusActive {
			n++
		}
	}
	return n
}

// AddProposal registers a detector-proposed rule. It fails when the
// active-rule cap is reached or a proposed/active rule already covers
// the same source pattern.
func (e *Engine) AddProposal(rule *AutomationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.MaxActiveRules > 0 && e.activeCountLocked() >= e.cfg.MaxActiveRules {
		return fmt.Errorf("%w (max %d)", ErrRuleLimit, e.cfg.MaxActiveRules)
	}
	for _, existing := range e.rules {
		if existing.PatternID == rule.PatternID &&
			(existing.Status == StatusProposed || existing.Status == StatusActive) {
			return fmt.Errorf("%w: pattern %s (rule %s)", ErrDuplicatePattern, rule.PatternID, existing.ID)
		}
	}

	cp := *rule
	if cp.Status == "" {
		cp.Status = StatusProposed
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.OwnerConfirmed = false
	e.rules[cp.ID] = &cp
	e.saveLocked()
	return nil
}

// Activate confirms a rule: the one transition that sets
// owner_confirmed. Only the owner-facing surface calls it.
func (e *Engine) Activate(id string) error {
	return e.mutate(id, func(r *AutomationRule) error {
		now := time.Now().UTC()
		r.Status = StatusActive
		r.OwnerConfirmed = true
		r.ActivatedAt = &now
		return nil
	})
}

// Pause suspends an active rule without losing its counters.
func (e *Engine) Pause(id string) error {
	return e.mutate(id, func(r *AutomationRule) error {
		r.Status = StatusPaused
		return nil
	})
}

// Resume reactivates a paused rule.
func (e *Engine) Resume(id string) error {
	return e.mutate(id, func(r *AutomationRule) error {
		if r.Status != StatusPaused {
			return fmt.Errorf("rule %s is %s, not paused", r.ID, r.Status)
		}
		r.Status = StatusActive
		return nil
	})
}

// Revoke permanently retires a rule.
func (e *Engine) Revoke(id string) error {
	return e.mutate(id, func(r *AutomationRule) error {
		now := time.Now().UTC()
		r.Status = StatusRevoked
		r.RevokedAt = &now
		return nil
	})
}

// Decline rejects a proposal and starts the decline cooldown for its
// source pattern so the analyzer does not immediately re-propose it.
func (e *Engine) Decline(id string) error {
	return e.mutate(id, func(r *AutomationRule) error {
		now := time.Now().UTC()
		r.Status = StatusRevoked
		r.RevokedAt = &now
		if e.cfg.CooldownAfterDecline > 0 {
			e.declined[r.PatternID] = e.cfg.CooldownAfterDecline
		}
		return nil
	})
}

func (e *Engine) mutate(id string, fn func(*AutomationRule) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err := fn(r); err != nil {
		return err
	}
	e.saveLocked()
	return nil
}

// Check evaluates a context against every currently active rule. Any
// matching deny rule wins outright, regardless of relative specificity;
// otherwise the most specific matching approve rule wins, ties broken
// by lexicographic rule id. The winner's usage is incremented and
// persisted under the same lock. No internal failure may escape: a
// panic degrades to ask_owner.
func (e *Engine) Check(ctx types.DecisionContext) (result RuleCheckResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule check panic", "error", rec)
			result = RuleCheckResult{Action: ActionAskOwner, Reason: "internal error during rule check"}
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	var denies, approves []*AutomationRule
	for _, r := range e.rules {
		if !r.IsActiveAt(now) || !r.MatchesContext(ctx) {
			continue
		}
		if r.Type == ActionAutoDeny {
			denies = append(denies, r)
		} else {
			approves = append(approves, r)
		}
	}

	if winner := mostSpecific(denies); winner != nil {
		winner.IncrementUsage(now)
		e.saveLocked()
		return RuleCheckResult{
			Action:     ActionAutoDeny,
			RuleID:     winner.ID,
			RuleName:   winner.Name,
			Reason:     fmt.Sprintf("matched auto-deny rule %q (%s)", winner.Name, winner.Conditions.Summary()),
			Confidence: winner.Confidence,
		}
	}
	if winner := mostSpecific(approves); winner != nil {
		winner.IncrementUsage(now)
		e.saveLocked()
		return RuleCheckResult{
			Action:     ActionAutoApprove,
			RuleID:     winner.ID,
			RuleName:   winner.Name,
			Reason:     fmt.Sprintf("matched auto-approve rule %q (%s)", winner.Name, winner.Conditions.Summary()),
			Confidence: winner.Confidence,
		}
	}
	return RuleCheckResult{Action: ActionAskOwner, Reason: "no matching automation rule"}
}

// mostSpecific picks the rule with the highest specificity; equal
// specificity falls back to the lexicographically smallest id so the
// outcome never depends on map iteration order.
func mostSpecific(candidates []*AutomationRule) *AutomationRule {
	var best *AutomationRule
	for _, r := range candidates {
		switch {
		case best == nil:
			best = r
		case r.Specificity() > best.Specificity():
			best = r
		case r.Specificity() == best.Specificity() && r.ID < best.ID:
			best = r
		}
	}
	return best
}

// CheckCircuitBreakers lists active, confirmed rules that have hit
// their daily cap.
func (e *Engine) CheckCircuitBreakers() []AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	var out []AutomationRule
	for _, r := range e.rules {
		if r.Status != StatusActive || !r.OwnerConfirmed {
			continue
		}
		if r.MaxAutoPerDay > 0 && r.UsedToday(now) >= r.MaxAutoPerDay {
			out = append(out, *r)
		}
	}
	sortRules(out)
	return out
}

// CheckReconfirmation lists active, confirmed rules whose lifetime
// usage has reached the re-confirmation interval (the lifetime cap when
// no interval is configured).
func (e *Engine) CheckReconfirmation() []AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []AutomationRule
	for _, r := range e.rules {
		if r.Status != StatusActive || !r.OwnerConfirmed {
			continue
		}
		threshold := e.cfg.ReConfirmationInterval
		if threshold <= 0 {
			threshold = r.MaxAutoTotal
		}
		if threshold > 0 && r.AutoDecisionsTotal >= threshold {
			out = append(out, *r)
		}
	}
	sortRules(out)
	return out
}

// IsPatternDeclined reports whether a pattern is inside its decline
// cooldown.
func (e *Engine) IsPatternDeclined(patternID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.declined[patternID] > 0
}

// DecrementCooldowns ticks every decline cooldown down by one, removing
// entries that reach zero. Called once per manual decision. Safe to
// repeat: an entry already at zero is simply removed.
func (e *Engine) DecrementCooldowns() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.declined) == 0 {
		return
	}
	for id, remaining := range e.declined {
		remaining--
		if remaining <= 0 {
			delete(e.declined, id)
		} else {
			e.declined[id] = remaining
		}
	}
	e.saveLocked()
}

// Get returns a copy of one rule.
func (e *Engine) Get(id string) (AutomationRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return AutomationRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return *r, nil
}

// Rules returns copies of every rule, sorted by creation time then id.
func (e *Engine) Rules() []AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AutomationRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	sortRules(out)
	return out
}

// PendingProposals returns copies of rules awaiting owner review.
func (e *Engine) PendingProposals() []AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []AutomationRule
	for _, r := range e.rules {
		if r.Status == StatusProposed {
			out = append(out, *r)
		}
	}
	sortRules(out)
	return out
}

// StatusCounts returns the number of rules in each lifecycle state.
func (e *Engine) StatusCounts() map[Status]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make(map[Status]int)
	for _, r := range e.rules {
		counts[r.Status]++
	}
	return counts
}

func sortRules(rs []AutomationRule) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
