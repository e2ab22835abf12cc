package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// PadFilter filters pads using glob patterns
type PadFilter struct {
	includeGlobs []glob.Glob
	excludeGlobs []glob.Glob
}

// NewPadFilter creates a new glob-based pad filter.
// No include patterns means every pad is included; exclude always wins.
func NewPadFilter(includePatterns, excludePatterns []string) (*PadFilter, error) {
	filter := &PadFilter{
		includeGlobs: make([]glob.Glob, 0, len(includePatterns)),
		excludeGlobs: make([]glob.Glob, 0, len(excludePatterns)),
	}

	for _, pattern := range includePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		filter.includeGlobs = append(filter.includeGlobs, g)
	}

	for _, pattern := range excludePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		filter.excludeGlobs = append(filter.excludeGlobs, g)
	}

	return filter, nil
}

// Match returns true if changes on padID should be reported
func (f *PadFilter) Match(padID string) bool {
	for _, g := range f.excludeGlobs {
		if g.Match(padID) {
			return false
		}
	}

	if len(f.includeGlobs) == 0 {
		return true
	}

	for _, g := range f.includeGlobs {
		if g.Match(padID) {
			return true
		}
	}
	return false
}
