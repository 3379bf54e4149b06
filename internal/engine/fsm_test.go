// ABOUTME: Tests for the survey state machine transition table.

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
)

func TestAdvance(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		current string
		event   string
		want    string
	}{
		{store.StateCategory, eventAnswerCategory, store.StateName},
		{store.StateName, eventAnswerName, store.StateMood},
		{store.StateMood, eventAnswerMood, store.StateMoodQ1},
		{store.StateMoodQ1, eventAnswerQ1, store.StateMoodQ2},
		{store.StateMoodQ2, eventAnswerQ2, store.StateMoodQ3},
		{store.StateMoodQ3, eventAnswerQ3, store.StateChat},
	}

	for _, tt := range tests {
		got, err := advance(ctx, tt.current, tt.event)
		require.NoError(t, err, "event %s from %s", tt.event, tt.current)
		assert.Equal(t, tt.want, got)
	}
}

func TestAdvance_RejectsWrongState(t *testing.T) {
	_, err := advance(context.Background(), store.StateCategory, eventAnswerMood)
	assert.Error(t, err)
}

func TestAdvance_ChatIsTerminal(t *testing.T) {
	for _, event := range []string{
		eventAnswerCategory, eventAnswerName, eventAnswerMood,
		eventAnswerQ1, eventAnswerQ2, eventAnswerQ3,
	} {
		_, err := advance(context.Background(), store.StateChat, event)
		assert.Error(t, err, "event %s must not leave chat", event)
	}
}
