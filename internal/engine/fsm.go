// ABOUTME: Survey state machine built on looplab/fsm.
// ABOUTME: One linear path from category selection to free chat.

package engine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
)

// Survey events. Each accepted answer fires exactly one.
const (
	eventAnswerCategory = "answer_category"
	eventAnswerName     = "answer_name"
	eventAnswerMood     = "answer_mood"
	eventAnswerQ1       = "answer_q1"
	eventAnswerQ2       = "answer_q2"
	eventAnswerQ3       = "answer_q3"
)

// surveyFSM builds the survey machine seeded at a conversation's current
// state. Conversations persist only the state string, so a fresh machine is
// constructed per transition.
func surveyFSM(current string) *fsm.FSM {
	return fsm.NewFSM(
		current,
		fsm.Events{
			{Name: eventAnswerCategory, Src: []string{store.StateCategory}, Dst: store.StateName},
			{Name: eventAnswerName, Src: []string{store.StateName}, Dst: store.StateMood},
			{Name: eventAnswerMood, Src: []string{store.StateMood}, Dst: store.StateMoodQ1},
			{Name: eventAnswerQ1, Src: []string{store.StateMoodQ1}, Dst: store.StateMoodQ2},
			{Name: eventAnswerQ2, Src: []string{store.StateMoodQ2}, Dst: store.StateMoodQ3},
			{Name: eventAnswerQ3, Src: []string{store.StateMoodQ3}, Dst: store.StateChat},
		},
		fsm.Callbacks{},
	)
}

// advance applies one event to the survey machine and returns the next state.
func advance(ctx context.Context, current, event string) (string, error) {
	m := surveyFSM(current)
	if err := m.Event(ctx, event); err != nil {
		return "", fmt.Errorf("advancing survey from %s on %s: %w", current, event, err)
	}
	return m.Current(), nil
}
