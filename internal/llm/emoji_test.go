package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmojiSuggester_ModelGlyph(t *testing.T) {
	backend := &fakeBackend{available: true, response: "🍕"}
	s, err := NewEmojiSuggester(backend, nil)
	require.NoError(t, err)

	assert.Equal(t, "🍕", s.Suggest(context.Background(), "Pizza Nights"))
}

func TestEmojiSuggester_ModelProseStripped(t *testing.T) {
	backend := &fakeBackend{available: true, response: "Sure! I'd suggest ☕ for that."}
	s, err := NewEmojiSuggester(backend, nil)
	require.NoError(t, err)

	assert.Equal(t, "☕", s.Suggest(context.Background(), "Coffee"))
}

func TestEmojiSuggester_GlyphFreeResponseUsesKeywords(t *testing.T) {
	backend := &fakeBackend{available: true, response: "shopping cart"}
	s, err := NewEmojiSuggester(backend, nil)
	require.NoError(t, err)

	assert.Equal(t, "🛒", s.Suggest(context.Background(), "Groceries"))
}

func TestEmojiSuggester_BackendDownUsesKeywords(t *testing.T) {
	backend := &fakeBackend{available: false}
	s, err := NewEmojiSuggester(backend, nil)
	require.NoError(t, err)

	// "vacation" outranks "travel": the longer keyword wins.
	assert.Equal(t, "🏖️", s.Suggest(context.Background(), "Travel & Vacations"))
	assert.Equal(t, "✈️", s.Suggest(context.Background(), "Travel"))
	assert.Empty(t, backend.prompts)
}

func TestEmojiSuggester_GenerateErrorUsesKeywords(t *testing.T) {
	backend := &fakeBackend{available: true, generateErr: errors.New("timeout")}
	s, err := NewEmojiSuggester(backend, nil)
	require.NoError(t, err)

	assert.Equal(t, "☕", s.Suggest(context.Background(), "Coffee Shops"))
}

func TestEmojiSuggester_UnknownNameGetsDefault(t *testing.T) {
	s, err := NewEmojiSuggester(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultEmoji, s.Suggest(context.Background(), "Zzyzx"))
}

func TestFilterEmoji(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare glyph", input: "🏠", want: "🏠"},
		{name: "glyph in prose", input: "How about 🏠?", want: "🏠"},
		{name: "caps at three", input: "🏠🚗☕🍕", want: "🏠🚗☕"},
		{name: "no glyphs", input: "house", want: ""},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterEmoji(tt.input))
		})
	}
}
