// ABOUTME: Tests for survey content loading and option matching
// ABOUTME: Covers embedded defaults, validation failures, matching rules, keyboard layout

package survey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	q, err := Default()
	require.NoError(t, err)

	assert.NotEmpty(t, q.Categories)
	assert.Len(t, q.Moods, 4)
	for _, m := range q.Moods {
		assert.Len(t, q.MoodQuestions[m.Key], 3, "mood %s", m.Key)
	}
	assert.NotEmpty(t, q.Prompts.Category)
	assert.NotEmpty(t, q.Prompts.Apology)
}

func TestLoadFile_Override(t *testing.T) {
	content := `
intro: hi
categories:
  - { key: a, label: Alpha, emoji: "🅰️" }
moods:
  - { key: ok, label: Okay, emoji: "🙂" }
mood_questions:
  ok: [q1, q2, q3]
prompts:
  category: pick one
  name: your name?
  mood: how do you feel?
`
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	q, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", q.Categories[0].Label)
	assert.Equal(t, "pick one", q.Prompts.Category)
}

func TestLoadFile_MissingQuestions(t *testing.T) {
	content := `
categories:
  - { key: a, label: Alpha }
moods:
  - { key: ok, label: Okay }
mood_questions:
  ok: [only one]
prompts:
  category: c
  name: n
  mood: m
`
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "exactly 3 follow-up questions")
}

func TestLoadFile_DuplicateKey(t *testing.T) {
	content := `
categories:
  - { key: dup, label: One }
  - { key: dup, label: Two }
moods:
  - { key: ok, label: Okay }
mood_questions:
  ok: [a, b, c]
prompts:
  category: c
  name: n
  mood: m
`
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "duplicate choice key")
}

func TestMatch(t *testing.T) {
	choices := []Choice{
		{Key: "bad", Label: "Bad", Emoji: "🌧️"},
		{Key: "good", Label: "Good", Emoji: "☀️"},
	}

	tests := []struct {
		name string
		text string
		want string // expected key, "" for no match
	}{
		{"button form", "🌧️ Bad", "bad"},
		{"bare label", "Good", "good"},
		{"surrounding whitespace", "  ☀️ Good  ", "good"},
		{"unknown text", "hello", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"case sensitive", "good", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.text, choices)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Key)
		})
	}
}

func TestButtons(t *testing.T) {
	choices := []Choice{
		{Key: "a", Label: "Alpha", Emoji: "🅰️"},
		{Key: "b", Label: "Beta"},
	}
	assert.Equal(t, []string{"🅰️ Alpha", "Beta"}, Buttons(choices))
}

func TestKeyboardRows(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		KeyboardRows([]string{"a", "b", "c", "d", "e"}))
	assert.Nil(t, KeyboardRows(nil))
}

func TestQuestionAt(t *testing.T) {
	q, err := Default()
	require.NoError(t, err)

	qs := q.QuestionsFor("bad")
	require.Len(t, qs, 3)
	assert.Equal(t, qs[0], q.QuestionAt("bad", 1))
	assert.Equal(t, qs[2], q.QuestionAt("bad", 3))
	assert.Equal(t, "", q.QuestionAt("bad", 4))
	assert.Equal(t, "", q.QuestionAt("nope", 1))
}
