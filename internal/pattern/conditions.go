// Package pattern provides the constraint model shared by detected
// approval patterns and automation rules: up to six optional dimensions
// over a decision context, with glob matching for capabilities and
// wraparound hour/day ranges for the temporal dimensions.
package pattern

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/steward-sh/steward/pkg/types"
)

// HourRange is a half-open hour-of-day range [Start, End). When
// Start > End the range wraps midnight, e.g. (22,6) covers 22..23 and
// 0..5. Start == End covers the whole day.
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour h (0..23) falls inside the range.
func (r HourRange) Contains(h int) bool {
	if r.Start == r.End {
		return true
	}
	if r.Start < r.End {
		return h >= r.Start && h < r.End
	}
	return h >= r.Start || h < r.End
}

func (r HourRange) String() string { return fmt.Sprintf("%02d:00-%02d:00", r.Start, r.End) }

// MarshalJSON encodes the range as a two-element array.
func (r HourRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

func (r *HourRange) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("time_range: %w", err)
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// DayRange is an inclusive day-of-week range [Start, End] with 0=Monday.
// When Start > End the range wraps the week, e.g. (5,1) covers
// Sat, Sun and Mon.
type DayRange struct {
	Start int
	End   int
}

// Contains reports whether day d (0=Mon..6=Sun) falls inside the range.
func (r DayRange) Contains(d int) bool {
	if r.Start <= r.End {
		return d >= r.Start && d <= r.End
	}
	return d >= r.Start || d <= r.End
}

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (r DayRange) String() string {
	if r.Start >= 0 && r.Start < 7 && r.End >= 0 && r.End < 7 {
		return dayNames[r.Start] + "-" + dayNames[r.End]
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// MarshalJSON encodes the range as a two-element array.
func (r DayRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

func (r *DayRange) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("day_range: %w", err)
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// Conditions is the constraint set of a pattern or rule. A nil field
// places no constraint on that dimension.
type Conditions struct {
	Capability     *string    `json:"capability,omitempty"`
	TargetDomain   *string    `json:"target_domain,omitempty"`
	TargetCategory *string    `json:"target_category,omitempty"`
	Scope          *string    `json:"scope,omitempty"`
	TimeRange      *HourRange `json:"time_range,omitempty"`
	DayRange       *DayRange  `json:"day_range,omitempty"`
}

// Specificity is the number of constrained dimensions (0..6).
func (c Conditions) Specificity() int {
	n := 0
	if c.Capability != nil {
		n++
	}
	if c.TargetDomain != nil {
		n++
	}
	if c.TargetCategory != nil {
		n++
	}
	if c.Scope != nil {
		n++
	}
	if c.TimeRange != nil {
		n++
	}
	if c.DayRange != nil {
		n++
	}
	return n
}

// Matches reports whether every constrained dimension holds for ctx.
// The capability constraint supports glob wildcards; the other string
// dimensions are exact matches.
func (c Conditions) Matches(ctx types.DecisionContext) bool {
	if c.Capability != nil && !matchCapability(*c.Capability, ctx.Capability) {
		return false
	}
	if c.TargetDomain != nil && ctx.TargetDomain != *c.TargetDomain {
		return false
	}
	if c.TargetCategory != nil && ctx.TargetCategory != *c.TargetCategory {
		return false
	}
	if c.Scope != nil && ctx.Scope != *c.Scope {
		return false
	}
	if c.TimeRange != nil && !c.TimeRange.Contains(ctx.HourOfDay) {
		return false
	}
	if c.DayRange != nil && !c.DayRange.Contains(ctx.DayOfWeek) {
		return false
	}
	return true
}

// Superset reports whether c constrains every dimension other does,
// with equal values. Used for subsumption checks between patterns.
func (c Conditions) Superset(other Conditions) bool {
	if other.Capability != nil && (c.Capability == nil || *c.Capability != *other.Capability) {
		return false
	}
	if other.TargetDomain != nil && (c.TargetDomain == nil || *c.TargetDomain != *other.TargetDomain) {
		return false
	}
	if other.TargetCategory != nil && (c.TargetCategory == nil || *c.TargetCategory != *other.TargetCategory) {
		return false
	}
	if other.Scope != nil && (c.Scope == nil || *c.Scope != *other.Scope) {
		return false
	}
	if other.TimeRange != nil && (c.TimeRange == nil || *c.TimeRange != *other.TimeRange) {
		return false
	}
	if other.DayRange != nil && (c.DayRange == nil || *c.DayRange != *other.DayRange) {
		return false
	}
	return true
}

// Summary renders the constraint set for owner-facing output, e.g.
// "capability=connector.email.send_message, domain=client.com".
func (c Conditions) Summary() string {
	var parts []string
	if c.Capability != nil {
		parts = append(parts, "capability="+*c.Capability)
	}
	if c.TargetDomain != nil {
		parts = append(parts, "domain="+*c.TargetDomain)
	}
	if c.TargetCategory != nil {
		parts = append(parts, "category="+*c.TargetCategory)
	}
	if c.Scope != nil {
		parts = append(parts, "scope="+*c.Scope)
	}
	if c.TimeRange != nil {
		parts = append(parts, "hours="+c.TimeRange.String())
	}
	if c.DayRange != nil {
		parts = append(parts, "days="+c.DayRange.String())
	}
	if len(parts) == 0 {
		return "any action"
	}
	return strings.Join(parts, ", ")
}

// matchCapability matches a capability against a constraint that may
// contain glob wildcards. Plain constraints fall through to equality.
func matchCapability(constraint, capability string) bool {
	if !strings.ContainsAny(constraint, "*?[") {
		return constraint == capability
	}
	g, err := glob.Compile(constraint)
	if err != nil {
		return false
	}
	return g.Match(capability)
}
