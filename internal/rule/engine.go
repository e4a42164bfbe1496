// Package rule implements ordered pattern matching of item text against
// category rules.
package rule

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jstall/pennywise/internal/model"
)

// Engine evaluates rules against lowercase item text. Matching is
// deterministic: rules are ordered by descending pattern length before the
// scan, so longer (more specific) patterns win ties regardless of input
// ordering. Safe for concurrent use; batch categorization calls Match from
// multiple goroutines.
type Engine struct {
	mu            sync.RWMutex
	compiledRegex map[int]*regexp.Regexp
}

// NewEngine creates a rule engine.
func NewEngine() *Engine {
	return &Engine{
		compiledRegex: make(map[int]*regexp.Regexp),
	}
}

// Match returns the first rule whose pattern matches the text, or nil when
// none match. Disabled rules are skipped. An invalid regex pattern is
// logged and skipped rather than aborting the scan.
func (e *Engine) Match(text string, rules []model.Rule) *model.Rule {
	if text == "" || len(rules) == 0 {
		return nil
	}
	text = strings.ToLower(text)

	ordered := make([]model.Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Pattern) > len(ordered[j].Pattern)
	})

	for i := range ordered {
		r := &ordered[i]
		if !r.Enabled {
			continue
		}
		if e.matches(text, r) {
			return r
		}
	}

	return nil
}

// matches tests a single rule against already-lowercased text.
func (e *Engine) matches(text string, r *model.Rule) bool {
	pattern := strings.ToLower(r.Pattern)

	switch r.MatchKind {
	case model.MatchExact:
		return text == pattern
	case model.MatchContains:
		return strings.Contains(text, pattern)
	case model.MatchStartsWith:
		return strings.HasPrefix(text, pattern)
	case model.MatchEndsWith:
		return strings.HasSuffix(text, pattern)
	case model.MatchRegex:
		re, err := e.compile(r)
		if err != nil {
			slog.Warn("Skipping rule with invalid regex",
				"rule", r.Name,
				"pattern", r.Pattern,
				"error", err)
			return false
		}
		return re.MatchString(text)
	}

	return false
}

// compile returns the cached case-insensitive regex for a rule.
func (e *Engine) compile(r *model.Rule) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.compiledRegex[r.ID]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return nil, err
	}

	if r.ID != 0 {
		e.mu.Lock()
		e.compiledRegex[r.ID] = re
		e.mu.Unlock()
	}
	return re, nil
}
