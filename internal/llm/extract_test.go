package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got, err := ExtractJSON(`{"a": 1}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1}`, got)
	})

	t.Run("fenced code block", func(t *testing.T) {
		got, err := ExtractJSON("Here you go:\n```json\n{\"a\": 1}\n```\nDone.")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1}`, got)
	})

	t.Run("object surrounded by prose", func(t *testing.T) {
		got, err := ExtractJSON(`Sure! The result is {"results": [{"ruleId": "7"}]} as requested.`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"results": [{"ruleId": "7"}]}`, got)
	})

	t.Run("top-level array", func(t *testing.T) {
		got, err := ExtractJSON(`[{"a": 1}, {"a": 2}]`)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"a": 1}, {"a": 2}]`, got)
	})

	t.Run("braces inside string values do not confuse the scanner", func(t *testing.T) {
		got, err := ExtractJSON(`{"text": "clause } with { braces"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"text": "clause } with { braces"}`, got)
	})

	t.Run("escaped quotes inside strings", func(t *testing.T) {
		got, err := ExtractJSON(`{"text": "the \"Company\""}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"text": "the \"Company\""}`, got)
	})

	t.Run("repairs trailing commas", func(t *testing.T) {
		got, err := ExtractJSON(`{"a": [1, 2,], "b": "x",}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": [1, 2], "b": "x"}`, got)
	})

	t.Run("skips an invalid candidate for a later valid one", func(t *testing.T) {
		got, err := ExtractJSON(`{"broken": } then {"ok": true}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok": true}`, got)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ExtractJSON("I could not produce a classification.")
		assert.Error(t, err)
	})
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		NoChanges bool `json:"noChanges"`
	}
	err := DecodeJSON("```json\n{\"noChanges\": true}\n```", &out)
	require.NoError(t, err)
	assert.True(t, out.NoChanges)

	err = DecodeJSON("nothing here", &out)
	assert.Error(t, err)
}
