// ABOUTME: Binds each client to a forum topic in the admin group.
// ABOUTME: Verifies delivery threads and heals bindings whose topic was deleted.

package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/store"
	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
)

// GeneralThreadID is the thread id of a forum supergroup's general channel.
// Any reported thread at or below it means the message left the topic system.
const GeneralThreadID = 1

// probeText is the throwaway message used to verify a topic still exists.
const probeText = "·"

// ErrMisrouted reports that a send landed outside the requested topic,
// which happens when the topic was deleted by an operator.
var ErrMisrouted = errors.New("message delivered outside the bound topic")

// BindingStore is the slice of the store the binder needs. The profile is
// read to introduce the client inside a freshly created topic.
type BindingStore interface {
	GetBinding(ctx context.Context, clientID int64) (*store.TopicBinding, error)
	SetBinding(ctx context.Context, clientID, threadID int64, title string) error
	GetProfile(ctx context.Context, clientID int64) (*store.Profile, error)
}

// Transport is the slice of the Telegram client the binder needs.
type Transport interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, req telegram.ForwardMessageRequest) (*telegram.Message, error)
	SendDocument(ctx context.Context, req telegram.SendDocumentRequest) (*telegram.Message, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Binder resolves and maintains the client-to-topic mapping for the admin
// group. Every group-bound send goes through it so a deleted topic is
// detected and replaced instead of leaking messages into the general channel.
type Binder struct {
	store   BindingStore
	tg      Transport
	cache   *Cache
	groupID int64
	logger  *slog.Logger
}

// NewBinder creates a Binder for the given admin group.
func NewBinder(st BindingStore, tg Transport, groupID int64, cacheTTL time.Duration, logger *slog.Logger) *Binder {
	return &Binder{
		store:   st,
		tg:      tg,
		cache:   NewCache(cacheTTL),
		groupID: groupID,
		logger:  logger.With("component", "topic"),
	}
}

func topicTitle(clientID int64) string {
	return fmt.Sprintf("client_%d", clientID)
}

// sameThread reports whether a delivered thread satisfies the requested one.
// Requests into the general channel accept any general-channel delivery.
func sameThread(want, got int64) bool {
	if want <= GeneralThreadID {
		return got <= GeneralThreadID
	}
	return got == want
}

// EnsureTopic returns a thread id for the client that is known to exist.
// A fresh cache hit is trusted as-is; a stored binding is verified with a
// silent probe before use, and a missing or dead binding gets a new topic.
func (b *Binder) EnsureTopic(ctx context.Context, clientID int64) (int64, error) {
	if threadID, ok := b.cache.Get(clientID); ok {
		return threadID, nil
	}

	binding, err := b.store.GetBinding(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return b.rebind(ctx, clientID)
	}
	if err != nil {
		return 0, fmt.Errorf("loading topic binding: %w", err)
	}

	alive, err := b.verifyTopic(ctx, binding.ThreadID)
	if err != nil {
		return 0, err
	}
	if !alive {
		b.logger.Warn("bound topic is gone, recreating",
			"client_id", clientID,
			"thread_id", binding.ThreadID)
		return b.rebind(ctx, clientID)
	}

	b.cache.Put(clientID, binding.ThreadID)
	return binding.ThreadID, nil
}

// verifyTopic sends a silent probe into the thread and checks where it
// actually landed. The probe is deleted either way.
func (b *Binder) verifyTopic(ctx context.Context, threadID int64) (bool, error) {
	m, err := b.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:              b.groupID,
		ThreadID:            threadID,
		Text:                probeText,
		DisableNotification: true,
	})
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			// "message thread not found" and friends
			return false, nil
		}
		return false, fmt.Errorf("probing topic %d: %w", threadID, err)
	}

	alive := sameThread(threadID, m.ThreadID)
	if derr := b.tg.DeleteMessage(ctx, b.groupID, m.MessageID); derr != nil {
		b.logger.Warn("failed to delete probe message",
			"thread_id", threadID,
			"message_id", m.MessageID,
			"error", derr)
	}
	return alive, nil
}

// rebind creates a fresh topic for the client and persists the binding,
// replacing any previous one.
func (b *Binder) rebind(ctx context.Context, clientID int64) (int64, error) {
	title := topicTitle(clientID)
	threadID, err := b.tg.CreateForumTopic(ctx, b.groupID, title)
	if err != nil {
		return 0, fmt.Errorf("creating forum topic for client %d: %w", clientID, err)
	}
	if err := b.store.SetBinding(ctx, clientID, threadID, title); err != nil {
		return 0, fmt.Errorf("saving topic binding: %w", err)
	}
	b.cache.Put(clientID, threadID)
	b.logger.Info("bound client to topic",
		"client_id", clientID,
		"thread_id", threadID)
	b.announceClient(ctx, clientID, threadID)
	return threadID, nil
}

// announceClient introduces the client inside a freshly created topic, so a
// recreated topic carries more identity than its title. Best effort.
func (b *Binder) announceClient(ctx context.Context, clientID, threadID int64) {
	label := fmt.Sprintf("id:%d", clientID)
	if p, err := b.store.GetProfile(ctx, clientID); err == nil {
		label = profileLabel(p)
	}

	_, err := b.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:   b.groupID,
		ThreadID: threadID,
		Text:     fmt.Sprintf("\U0001f195 new client: %s", label),
	})
	if err != nil {
		b.logger.Warn("failed to introduce client in new topic",
			"client_id", clientID,
			"thread_id", threadID,
			"error", err)
	}
}

// profileLabel renders a client identity line: username when available,
// display name, and always the numeric id.
func profileLabel(p *store.Profile) string {
	var parts []string
	if p.Username != "" {
		parts = append(parts, "@"+p.Username)
	}
	if name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName)); name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, fmt.Sprintf("id:%d", p.ClientID))
	return strings.Join(parts, " | ")
}

// SendText sends a text message into the client's topic.
func (b *Binder) SendText(ctx context.Context, clientID int64, text string) (*telegram.Message, error) {
	return b.send(ctx, clientID, func(threadID int64) (*telegram.Message, error) {
		return b.tg.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:   b.groupID,
			ThreadID: threadID,
			Text:     text,
		})
	})
}

// Forward forwards a client message into the client's topic, keeping the
// forwarded-from header so operators see the source.
func (b *Binder) Forward(ctx context.Context, clientID, fromChatID, messageID int64) (*telegram.Message, error) {
	return b.send(ctx, clientID, func(threadID int64) (*telegram.Message, error) {
		return b.tg.ForwardMessage(ctx, telegram.ForwardMessageRequest{
			ChatID:     b.groupID,
			FromChatID: fromChatID,
			MessageID:  messageID,
			ThreadID:   threadID,
		})
	})
}

// SendDocument uploads a file into the client's topic.
func (b *Binder) SendDocument(ctx context.Context, clientID int64, filePath, filename, caption string) (*telegram.Message, error) {
	return b.send(ctx, clientID, func(threadID int64) (*telegram.Message, error) {
		return b.tg.SendDocument(ctx, telegram.SendDocumentRequest{
			ChatID:   b.groupID,
			ThreadID: threadID,
			FilePath: filePath,
			Filename: filename,
			Caption:  caption,
		})
	})
}

// send resolves the client's topic, performs the send, and retries exactly
// once after a rebind if the delivery was misrouted. A topic can die between
// the probe and the send, or the cache can be stale; one rebind covers both.
func (b *Binder) send(ctx context.Context, clientID int64, do func(threadID int64) (*telegram.Message, error)) (*telegram.Message, error) {
	threadID, err := b.EnsureTopic(ctx, clientID)
	if err != nil {
		return nil, err
	}

	m, err := b.sendStrict(ctx, threadID, do)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrMisrouted) {
		return nil, err
	}

	b.logger.Warn("send misrouted, rebinding topic",
		"client_id", clientID,
		"thread_id", threadID)
	b.cache.Invalidate(clientID)
	threadID, err = b.rebind(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return b.sendStrict(ctx, threadID, do)
}

// sendStrict performs a send and verifies the reported delivery thread.
// A misrouted message is deleted before the error is returned so nothing
// lingers in the general channel.
func (b *Binder) sendStrict(ctx context.Context, wantThread int64, do func(threadID int64) (*telegram.Message, error)) (*telegram.Message, error) {
	m, err := do(wantThread)
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			return nil, fmt.Errorf("%w: %s", ErrMisrouted, apiErr.Description)
		}
		return nil, err
	}
	if sameThread(wantThread, m.ThreadID) {
		return m, nil
	}

	if derr := b.tg.DeleteMessage(ctx, b.groupID, m.MessageID); derr != nil {
		b.logger.Warn("failed to delete misrouted message",
			"message_id", m.MessageID,
			"error", derr)
	}
	return nil, fmt.Errorf("%w: wanted thread %d, delivered to %d", ErrMisrouted, wantThread, m.ThreadID)
}
