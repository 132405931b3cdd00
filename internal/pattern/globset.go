package pattern

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobSet is a compiled list of capability globs, used for the
// never-automate enumeration supplied by the platform constitution.
type GlobSet struct {
	raw      []string
	compiled []glob.Glob
}

// NewGlobSet compiles the given glob patterns. An invalid pattern is a
// configuration error and fails the whole set.
func NewGlobSet(patterns []string) (*GlobSet, error) {
	s := &GlobSet{
		raw:      make([]string, 0, len(patterns)),
		compiled: make([]glob.Glob, 0, len(patterns)),
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile glob %q: %w", p, err)
		}
		s.raw = append(s.raw, p)
		s.compiled = append(s.compiled, g)
	}
	return s, nil
}

// MatchAny reports whether any pattern in the set matches s.
func (gs *GlobSet) MatchAny(s string) bool {
	if gs == nil {
		return false
	}
	for _, g := range gs.compiled {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Patterns returns the raw pattern strings.
func (gs *GlobSet) Patterns() []string {
	if gs == nil {
		return nil
	}
	out := make([]string, len(gs.raw))
	copy(out, gs.raw)
	return out
}
