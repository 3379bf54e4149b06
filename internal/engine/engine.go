// ABOUTME: Conversation engine: survey flow, chat relay, and operator handling.
// ABOUTME: Always delivers before persisting so stored state never outruns sends.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/export"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/survey"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/topic"
)

const (
	commandStart  = "/start"
	commandFinish = "/finish"
)

// Transport is the slice of the Telegram client the engine sends through
// directly: private messages to clients.
type Transport interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	CopyMessage(ctx context.Context, req telegram.CopyMessageRequest) (*telegram.MessageRef, error)
}

// TopicSender delivers into a client's forum topic with misroute recovery.
type TopicSender interface {
	SendText(ctx context.Context, clientID int64, text string) (*telegram.Message, error)
	Forward(ctx context.Context, clientID, fromChatID, messageID int64) (*telegram.Message, error)
}

// ExportScheduler requests conversation exports without blocking.
type ExportScheduler interface {
	Schedule(key export.Key, tag string)
}

// Engine routes every conversation event: the client-side survey state
// machine, bidirectional chat relay, and operator commands in the group.
type Engine struct {
	store   store.Store
	tg      Transport
	topics  TopicSender
	exports ExportScheduler
	q       *survey.Questionnaire
	logger  *slog.Logger
}

// New creates an Engine.
func New(st store.Store, tg Transport, topics TopicSender, exports ExportScheduler, q *survey.Questionnaire, logger *slog.Logger) *Engine {
	return &Engine{
		store:   st,
		tg:      tg,
		topics:  topics,
		exports: exports,
		q:       q,
		logger:  logger.With("component", "engine"),
	}
}

// HandlePrivate processes one message from a client's private chat.
func (e *Engine) HandlePrivate(ctx context.Context, m *telegram.Message) error {
	if m.From == nil {
		return nil
	}
	clientID := m.From.ID

	isNew, err := e.refreshProfile(ctx, m.From)
	if err != nil {
		return err
	}

	if strings.TrimSpace(m.Text) == commandStart {
		return e.startConversation(ctx, m, isNew)
	}

	conv, err := e.store.GetActiveConversation(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		// Anything sent without an active conversation begins a new one.
		return e.startConversation(ctx, m, isNew)
	}
	if err != nil {
		return fmt.Errorf("loading active conversation: %w", err)
	}

	switch conv.State {
	case store.StateCategory:
		return e.handleCategory(ctx, conv, m)
	case store.StateName:
		return e.handleName(ctx, conv, m)
	case store.StateMood:
		return e.handleMood(ctx, conv, m)
	case store.StateMoodQ1:
		return e.handleMoodQuestion(ctx, conv, m, 1)
	case store.StateMoodQ2:
		return e.handleMoodQuestion(ctx, conv, m, 2)
	case store.StateMoodQ3:
		return e.handleMoodQuestion(ctx, conv, m, 3)
	case store.StateChat:
		return e.relayClientMessage(ctx, conv, m)
	default:
		e.logger.Warn("conversation in unknown state, treating as chat",
			"client_id", clientID,
			"state", conv.State)
		return e.relayClientMessage(ctx, conv, m)
	}
}

// refreshProfile records the client's current identity and reports whether
// this is the first time the bot has seen them.
func (e *Engine) refreshProfile(ctx context.Context, u *telegram.User) (bool, error) {
	_, err := e.store.GetProfile(ctx, u.ID)
	isNew := errors.Is(err, store.ErrNotFound)
	if err != nil && !isNew {
		return false, fmt.Errorf("loading profile: %w", err)
	}

	if err := e.store.UpsertProfile(ctx, &store.Profile{
		ClientID:     u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}); err != nil {
		return false, fmt.Errorf("saving profile: %w", err)
	}
	return isNew, nil
}

// startConversation opens a fresh conversation, announces it in the topic,
// and asks the first survey question.
func (e *Engine) startConversation(ctx context.Context, m *telegram.Message, isNew bool) error {
	clientID := m.From.ID

	conv, err := e.store.StartConversation(ctx, clientID)
	if err != nil {
		return fmt.Errorf("starting conversation: %w", err)
	}

	header := fmt.Sprintf("\U0001f9fe SURVEY\n\U0001f464 %s\n\U0001f195 conversation #%d", userLabel(m.From), conv.ID)
	if isNew {
		header = "\U0001f31f first contact\n" + header
	}
	if _, err := e.topics.SendText(ctx, clientID, header); err != nil {
		return fmt.Errorf("announcing conversation: %w", err)
	}

	if err := e.askClient(ctx, conv, e.q.Intro, nil); err != nil {
		return err
	}
	return e.askCategory(ctx, conv)
}

func (e *Engine) askCategory(ctx context.Context, conv *store.Conversation) error {
	markup := telegram.OptionKeyboard(survey.KeyboardRows(survey.Buttons(e.q.Categories)))
	return e.askClient(ctx, conv, e.q.Prompts.Category, markup)
}

func (e *Engine) askMood(ctx context.Context, conv *store.Conversation) error {
	markup := telegram.OptionKeyboard(survey.KeyboardRows(survey.Buttons(e.q.Moods)))
	return e.askClient(ctx, conv, e.q.Prompts.Mood, markup)
}

func (e *Engine) handleCategory(ctx context.Context, conv *store.Conversation, m *telegram.Message) error {
	choice := survey.Match(m.Text, e.q.Categories)
	if choice == nil {
		e.relayUnmatched(ctx, conv, m)
		return e.askCategory(ctx, conv)
	}

	answer := choice.Button()
	if err := e.acceptAnswer(ctx, conv, m, e.q.Prompts.Category, answer); err != nil {
		return err
	}

	next, err := advance(ctx, conv.State, eventAnswerCategory)
	if err != nil {
		return err
	}
	if err := e.askClient(ctx, conv, e.q.Prompts.Name, telegram.RemoveKeyboard()); err != nil {
		return err
	}

	if err := e.store.UpdateConversation(ctx, conv.ClientID, conv.ID, store.ConversationPatch{
		State:         &next,
		CategoryKey:   &choice.Key,
		CategoryLabel: &answer,
	}); err != nil {
		return fmt.Errorf("saving category: %w", err)
	}
	e.scheduleLive(conv)
	return nil
}

func (e *Engine) handleName(ctx context.Context, conv *store.Conversation, m *telegram.Message) error {
	name := strings.TrimSpace(m.Text)
	if name == "" {
		e.relayUnmatched(ctx, conv, m)
		return e.askClient(ctx, conv, e.q.Prompts.Name, telegram.RemoveKeyboard())
	}

	// The short form of the name question labels the mirrored answer.
	if err := e.acceptAnswer(ctx, conv, m, e.q.Prompts.NameShort, name); err != nil {
		return err
	}

	next, err := advance(ctx, conv.State, eventAnswerName)
	if err != nil {
		return err
	}
	if err := e.askMood(ctx, conv); err != nil {
		return err
	}

	if err := e.store.UpdateConversation(ctx, conv.ClientID, conv.ID, store.ConversationPatch{
		State:       &next,
		DisplayName: &name,
	}); err != nil {
		return fmt.Errorf("saving name: %w", err)
	}
	e.scheduleLive(conv)
	return nil
}

func (e *Engine) handleMood(ctx context.Context, conv *store.Conversation, m *telegram.Message) error {
	choice := survey.Match(m.Text, e.q.Moods)
	if choice == nil {
		e.relayUnmatched(ctx, conv, m)
		return e.askMood(ctx, conv)
	}

	answer := choice.Button()
	if err := e.acceptAnswer(ctx, conv, m, e.q.Prompts.Mood, answer); err != nil {
		return err
	}

	// Responders get the full follow-up list up front, the client gets the
	// questions one at a time.
	qs := e.q.QuestionsFor(choice.Key)
	preview := fmt.Sprintf("\U0001f9fe 3 QUESTIONS (in order)\n1) %s\n2) %s\n3) %s", qs[0], qs[1], qs[2])
	if _, err := e.topics.SendText(ctx, conv.ClientID, preview); err != nil {
		return fmt.Errorf("posting question preview: %w", err)
	}

	next, err := advance(ctx, conv.State, eventAnswerMood)
	if err != nil {
		return err
	}
	if err := e.askClient(ctx, conv, e.q.QuestionAt(choice.Key, 1), telegram.RemoveKeyboard()); err != nil {
		return err
	}

	if err := e.store.UpdateConversation(ctx, conv.ClientID, conv.ID, store.ConversationPatch{
		State:     &next,
		MoodKey:   &choice.Key,
		MoodLabel: &answer,
	}); err != nil {
		return fmt.Errorf("saving mood: %w", err)
	}
	e.scheduleLive(conv)
	return nil
}

// handleMoodQuestion records a free-text answer to follow-up question step
// (1-based). The answer is taken verbatim, empty included, so a sticker or a
// shrug never stalls the survey. The final answer promotes the conversation
// to chat and produces the start export.
func (e *Engine) handleMoodQuestion(ctx context.Context, conv *store.Conversation, m *telegram.Message, step int) error {
	question := e.q.QuestionAt(conv.MoodKey, step)
	answer := strings.TrimSpace(m.Text)

	if err := e.acceptAnswer(ctx, conv, m, question, answer); err != nil {
		return err
	}

	events := [...]string{eventAnswerQ1, eventAnswerQ2, eventAnswerQ3}
	next, err := advance(ctx, conv.State, events[step-1])
	if err != nil {
		return err
	}

	if step < 3 {
		if err := e.askClient(ctx, conv, e.q.QuestionAt(conv.MoodKey, step+1), nil); err != nil {
			return err
		}
	} else {
		done := e.q.Prompts.SurveyDone + "\n\n" + e.q.Prompts.ChatNotice
		if err := e.askClient(ctx, conv, done, nil); err != nil {
			return err
		}
	}

	patch := store.ConversationPatch{State: &next}
	switch step {
	case 1:
		patch.MoodAnswer1 = &answer
	case 2:
		patch.MoodAnswer2 = &answer
	case 3:
		patch.MoodAnswer3 = &answer
	}
	if err := e.store.UpdateConversation(ctx, conv.ClientID, conv.ID, patch); err != nil {
		return fmt.Errorf("saving answer %d: %w", step, err)
	}

	if step < 3 {
		e.scheduleLive(conv)
		return nil
	}

	e.exports.Schedule(export.Key{ClientID: conv.ClientID, ConversationID: conv.ID}, export.TagStart)

	// Tell the responders the topic is live now. The client-side flow is
	// already complete, so a failure here only loses the notice.
	notice := "ℹ️ free chat started. Psychologists reply in this topic. /finish to close."
	if _, err := e.topics.SendText(ctx, conv.ClientID, notice); err != nil {
		e.logger.Warn("failed to announce chat phase in topic",
			"client_id", conv.ClientID,
			"error", err)
	}
	return nil
}

// relayClientMessage forwards a chat-phase client message into the topic.
func (e *Engine) relayClientMessage(ctx context.Context, conv *store.Conversation, m *telegram.Message) error {
	fwd, err := e.topics.Forward(ctx, conv.ClientID, m.Chat.ID, m.MessageID)
	if err != nil {
		return fmt.Errorf("relaying client message: %w", err)
	}

	kind, label := m.Classify()
	e.logMessage(ctx, &store.MessageRecord{
		ClientID:       conv.ClientID,
		ConversationID: conv.ID,
		Role:           store.RoleClient,
		Direction:      store.DirectionIn,
		Kind:           kind,
		Text:           label,
		SrcChatID:      m.Chat.ID,
		SrcMessageID:   m.MessageID,
		DstMessageID:   fwd.MessageID,
	})
	e.scheduleLive(conv)
	return nil
}

// HandleGroup processes one operator message from the admin group. The
// caller has already checked the sender is allowed to operate.
func (e *Engine) HandleGroup(ctx context.Context, m *telegram.Message) error {
	if m.ThreadID <= topic.GeneralThreadID {
		return nil
	}

	clientID, err := e.store.GetClientIDByThread(ctx, m.ThreadID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Debug("message in unbound thread ignored", "thread_id", m.ThreadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving thread %d: %w", m.ThreadID, err)
	}

	if strings.TrimSpace(m.Text) == commandFinish {
		return e.finishConversation(ctx, clientID)
	}

	conv, err := e.store.GetActiveConversation(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		// Operator writes into a dormant topic: open a chat-phase
		// conversation so the exchange is logged and exportable.
		conv, err = e.autoSession(ctx, clientID)
	}
	if err != nil {
		return fmt.Errorf("loading conversation for thread %d: %w", m.ThreadID, err)
	}

	ref, err := e.tg.CopyMessage(ctx, telegram.CopyMessageRequest{
		ChatID:     clientID,
		FromChatID: m.Chat.ID,
		MessageID:  m.MessageID,
	})
	if err != nil {
		return fmt.Errorf("relaying operator message: %w", err)
	}

	kind, label := m.Classify()
	e.logMessage(ctx, &store.MessageRecord{
		ClientID:       conv.ClientID,
		ConversationID: conv.ID,
		Role:           store.RoleOperator,
		Direction:      store.DirectionOut,
		Kind:           kind,
		Text:           label,
		SrcChatID:      m.Chat.ID,
		SrcThreadID:    m.ThreadID,
		SrcMessageID:   m.MessageID,
		DstChatID:      clientID,
		DstMessageID:   ref.MessageID,
	})
	e.scheduleLive(conv)
	return nil
}

// autoSession opens a conversation already in the chat phase.
func (e *Engine) autoSession(ctx context.Context, clientID int64) (*store.Conversation, error) {
	conv, err := e.store.StartConversation(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("starting auto session: %w", err)
	}
	state := store.StateChat
	if err := e.store.UpdateConversation(ctx, clientID, conv.ID, store.ConversationPatch{State: &state}); err != nil {
		return nil, fmt.Errorf("promoting auto session: %w", err)
	}
	conv.State = state
	return conv, nil
}

// finishConversation closes the client's active conversation on operator
// request and produces the final export.
func (e *Engine) finishConversation(ctx context.Context, clientID int64) error {
	conv, err := e.store.GetActiveConversation(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := e.topics.SendText(ctx, clientID, "ℹ️ no active conversation"); err != nil {
			return err
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading conversation to finish: %w", err)
	}

	if err := e.askClient(ctx, conv, e.q.Prompts.Finished, telegram.RemoveKeyboard()); err != nil {
		return err
	}
	if err := e.store.CloseConversation(ctx, clientID, conv.ID); err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}
	if _, err := e.topics.SendText(ctx, clientID, fmt.Sprintf("✅ conversation #%d closed", conv.ID)); err != nil {
		e.logger.Warn("failed to confirm finish in topic", "client_id", clientID, "error", err)
	}

	e.exports.Schedule(export.Key{ClientID: clientID, ConversationID: conv.ID}, export.TagEnd)
	return nil
}

// acceptAnswer mirrors an accepted survey answer into the topic and logs it.
func (e *Engine) acceptAnswer(ctx context.Context, conv *store.Conversation, m *telegram.Message, question, answer string) error {
	mirror := fmt.Sprintf("✅ Answer\n❓ %s\n\U0001f464 %s", question, answer)
	sent, err := e.topics.SendText(ctx, conv.ClientID, mirror)
	if err != nil {
		return fmt.Errorf("mirroring answer: %w", err)
	}

	kind, _ := m.Classify()
	e.logMessage(ctx, &store.MessageRecord{
		ClientID:       conv.ClientID,
		ConversationID: conv.ID,
		Role:           store.RoleClient,
		Direction:      store.DirectionIn,
		Kind:           kind,
		Text:           answer,
		SrcChatID:      m.Chat.ID,
		SrcMessageID:   m.MessageID,
		DstMessageID:   sent.MessageID,
		Payload:        answerPayload(question),
	})
	return nil
}

// askClient sends a prompt to the client's private chat and logs it.
func (e *Engine) askClient(ctx context.Context, conv *store.Conversation, text string, markup *telegram.ReplyMarkup) error {
	sent, err := e.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      conv.ClientID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("sending to client %d: %w", conv.ClientID, err)
	}

	e.logMessage(ctx, &store.MessageRecord{
		ClientID:       conv.ClientID,
		ConversationID: conv.ID,
		Role:           store.RoleBot,
		Direction:      store.DirectionOut,
		Kind:           telegram.KindText,
		Text:           text,
		DstChatID:      conv.ClientID,
		DstMessageID:   sent.MessageID,
	})
	return nil
}

// relayUnmatched forwards input that did not advance the survey into the
// topic so responders still see it, then logs it. The relay is best effort:
// the client is re-prompted either way.
func (e *Engine) relayUnmatched(ctx context.Context, conv *store.Conversation, m *telegram.Message) {
	fwd, err := e.topics.Forward(ctx, conv.ClientID, m.Chat.ID, m.MessageID)
	if err != nil {
		e.logger.Warn("failed to relay unmatched input",
			"client_id", conv.ClientID,
			"error", err)
	}

	kind, label := m.Classify()
	rec := &store.MessageRecord{
		ClientID:       conv.ClientID,
		ConversationID: conv.ID,
		Role:           store.RoleClient,
		Direction:      store.DirectionIn,
		Kind:           kind,
		Text:           label,
		SrcChatID:      m.Chat.ID,
		SrcMessageID:   m.MessageID,
	}
	if fwd != nil {
		rec.DstMessageID = fwd.MessageID
	}
	e.logMessage(ctx, rec)
}

// logMessage persists a record, filling in id and timestamp. Log failures
// never interrupt relay.
func (e *Engine) logMessage(ctx context.Context, rec *store.MessageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := e.store.LogMessage(ctx, rec); err != nil {
		e.logger.Error("failed to log message",
			"client_id", rec.ClientID,
			"conversation_id", rec.ConversationID,
			"error", err)
	}
}

func (e *Engine) scheduleLive(conv *store.Conversation) {
	e.exports.Schedule(export.Key{ClientID: conv.ClientID, ConversationID: conv.ID}, export.TagLive)
}

// answerPayload packs the question a message answered into the record's
// JSON payload column.
func answerPayload(question string) string {
	if question == "" {
		return ""
	}
	b, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return ""
	}
	return string(b)
}

// userLabel renders a client identity for topic headers: username when
// available, display name, and always the numeric id.
func userLabel(u *telegram.User) string {
	var parts []string
	if u.Username != "" {
		parts = append(parts, "@"+u.Username)
	}
	if name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName)); name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, fmt.Sprintf("id:%d", u.ID))
	return strings.Join(parts, " | ")
}
