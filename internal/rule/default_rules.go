package rule

import "github.com/jstall/pennywise/internal/model"

// DefaultRules returns the built-in merchant rules seeded into a fresh
// database. Confidence values follow the categories they feed, not the
// merchants themselves; ambiguous merchants stay at the default.
func DefaultRules() []model.Rule {
	return []model.Rule{
		{
			Name:       "Amazon purchases",
			Pattern:    "amazon",
			MatchKind:  model.MatchContains,
			Category:   "Shopping",
			Confidence: 0.90,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Whole Foods",
			Pattern:    "whole foods",
			MatchKind:  model.MatchContains,
			Category:   "Groceries",
			Confidence: 0.92,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Ride share",
			Pattern:    `\b(uber|lyft)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Transportation",
			Confidence: 0.92,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Streaming services",
			Pattern:    `\b(netflix|spotify|hulu|disney\+)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Entertainment",
			Confidence: 0.95,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Coffee shops",
			Pattern:    `\b(starbucks|dunkin|peet's|blue bottle)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Dining Out",
			Confidence: 0.92,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Gas stations",
			Pattern:    `\b(shell|chevron|exxon|mobil|76|arco)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Transportation",
			Confidence: 0.90,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Utilities payments",
			Pattern:    `\b(pg&e|con ?edison|comcast|xfinity|at&t|verizon)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Utilities",
			Confidence: 0.95,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
		{
			Name:       "Payroll deposit",
			Pattern:    `\b(payroll|direct dep|dir dep|salary)\b`,
			MatchKind:  model.MatchRegex,
			Category:   "Income",
			Confidence: 0.95,
			Enabled:    true,
			Origin:     model.OriginUser,
		},
	}
}
