// Package filter decides which paths are admitted as dedup candidates:
// ordered include/exclude glob rules plus size and age bounds.
package filter

import "time"

// Reason explains why a path was rejected. The empty Reason admits it.
type Reason string

const (
	Admitted  Reason = ""
	Excluded  Reason = "excluded by pattern"
	TooSmall  Reason = "below minimum size"
	TooLarge  Reason = "above maximum size"
	TooYoung  Reason = "younger than minimum age"
	EmptyFile Reason = "empty file"
)

type rule struct {
	glob    *glob
	include bool
}

// Chain holds ordered pattern rules and the size and age bounds applied to
// regular files. The zero value admits everything except empty files.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
	minAge  time.Duration
	now     time.Time
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude appends an include rule. Rules are evaluated in order and the
// first match decides, so an include must precede the exclude it overrides.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{glob: g, include: include})
	return nil
}

// SetMinSize rejects files smaller than n bytes.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize rejects files larger than n bytes. Zero disables the bound.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// SetMinAge rejects files modified less than d before now.
func (c *Chain) SetMinAge(d time.Duration, now time.Time) {
	c.minAge = d
	c.now = now
}

// MinAge returns the configured minimum age.
func (c *Chain) MinAge() time.Duration { return c.minAge }

// Empty reports whether the chain has no rules and no bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0 && c.minAge == 0
}

// Dir reports whether the traversal should descend into the directory at
// rel, a path relative to the traversal root.
func (c *Chain) Dir(rel string) bool {
	return c.matchRules(rel, true)
}

// File checks a regular file. rel is relative to the traversal root (or the
// path as given, without a leading slash, for listed paths).
func (c *Chain) File(rel string, size int64, mtime time.Time) Reason {
	if size == 0 {
		return EmptyFile
	}
	if c.minSize > 0 && size < c.minSize {
		return TooSmall
	}
	if c.maxSize > 0 && size > c.maxSize {
		return TooLarge
	}
	if c.minAge > 0 && c.now.Sub(mtime) < c.minAge {
		return TooYoung
	}
	if !c.matchRules(rel, false) {
		return Excluded
	}
	return Admitted
}

func (c *Chain) matchRules(rel string, isDir bool) bool {
	for _, r := range c.rules {
		if r.glob.match(rel, isDir) {
			return r.include
		}
	}
	return true
}
