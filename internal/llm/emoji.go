package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/jstall/pennywise/internal/service"
)

// The keyword→emoji table lives in a data asset so it can be extended and
// tested independently of the suggestion logic.
//
//go:embed data/emoji_keywords.json
var emojiKeywordsJSON []byte

// defaultEmoji is used when neither the model nor the keyword table
// produces a glyph.
const defaultEmoji = "📋"

// EmojiSuggester produces a short emoji for a category name, asking the
// generative backend first and falling back to the keyword table.
type EmojiSuggester struct {
	client   service.GenerativeClient
	logger   *slog.Logger
	keywords map[string]string
}

// NewEmojiSuggester creates a suggester over the given backend.
func NewEmojiSuggester(client service.GenerativeClient, logger *slog.Logger) (*EmojiSuggester, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var keywords map[string]string
	if err := json.Unmarshal(emojiKeywordsJSON, &keywords); err != nil {
		return nil, err
	}

	return &EmojiSuggester{
		client:   client,
		logger:   logger,
		keywords: keywords,
	}, nil
}

// Suggest returns one to three emoji for the category name. Never errors:
// an unreachable backend or a glyph-free response degrades to the keyword
// table, and the table degrades to a neutral default.
func (s *EmojiSuggester) Suggest(ctx context.Context, categoryName string) string {
	if s.client != nil && s.client.IsAvailable(ctx) {
		prompt := "Suggest a single emoji (at most three) that best represents the spending category " +
			"\"" + categoryName + "\". Respond with ONLY the emoji, no words."

		raw, err := s.client.Generate(ctx, prompt, service.GenerateOptions{Temperature: 0.2, MaxTokens: 20})
		if err == nil {
			if emoji := filterEmoji(raw); emoji != "" {
				return emoji
			}
			s.logger.Debug("model returned no valid emoji glyphs", "category", categoryName, "raw", raw)
		}
	}

	return s.fromKeywords(categoryName)
}

// fromKeywords scans the keyword table for the longest keyword contained in
// the category name.
func (s *EmojiSuggester) fromKeywords(categoryName string) string {
	name := strings.ToLower(categoryName)

	keys := make([]string, 0, len(s.keywords))
	for k := range s.keywords {
		keys = append(keys, k)
	}
	// Longest keyword first so "fast food" beats "food"; equal lengths
	// fall back to lexical order so the pick is stable.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if strings.Contains(name, k) {
			return s.keywords[k]
		}
	}

	return defaultEmoji
}

// filterEmoji keeps only emoji glyphs from a model response, capped at
// three.
func filterEmoji(raw string) string {
	var b strings.Builder
	count := 0
	for _, r := range raw {
		if !isEmojiRune(r) {
			continue
		}
		// Variation selectors and joiners ride along with their glyph.
		if r == 0xFE0F || r == 0x200D {
			b.WriteRune(r)
			continue
		}
		if count == 3 {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// isEmojiRune reports whether r belongs in an emoji sequence.
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, transport, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case unicode.Is(unicode.So, r):
		return true
	default:
		return false
	}
}
