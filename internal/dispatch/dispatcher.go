// ABOUTME: Long-poll update loop: ordered dispatch with a persisted cursor.
// ABOUTME: Routes private chats to the survey engine and the admin group to relay.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nurmuhamm8d/psy-telegram-bot/internal/telegram"
)

const (
	pollTimeout = 25 // seconds of long-poll server-side wait
	pollLimit   = 50

	// pollErrorDelay spaces out retries when getUpdates itself keeps
	// failing after the client's own backoff is exhausted.
	pollErrorDelay = 3 * time.Second
)

// API is the slice of the Telegram client the dispatcher drives.
type API interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetChat(ctx context.Context, chatID int64) (*telegram.Chat, error)
	GetUpdates(ctx context.Context, offset int64, timeout, limit int) ([]telegram.Update, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// Handler consumes routed messages.
type Handler interface {
	HandlePrivate(ctx context.Context, m *telegram.Message) error
	HandleGroup(ctx context.Context, m *telegram.Message) error
}

// CursorStore persists the update cursor across restarts.
type CursorStore interface {
	GetCursor(ctx context.Context) (int64, bool, error)
	SetCursor(ctx context.Context, value int64) error
}

// Options configure a Dispatcher.
type Options struct {
	// GroupID is the admin forum supergroup.
	GroupID int64
	// Operators is the set of users allowed to act in the admin group.
	// Messages from anyone outside the set are ignored, so an empty set
	// disables group-side handling entirely.
	Operators map[int64]bool
	// DropPending discards the update backlog on startup.
	DropPending bool
	// Apology is sent to a client when handling their message fails.
	Apology string
}

// Dispatcher pulls updates in order and fans each one out to the handler.
// Updates are processed strictly one at a time; the cursor is persisted
// after every update so a restart never replays or skips one.
type Dispatcher struct {
	api     API
	handler Handler
	cursor  CursorStore
	opts    Options
	logger  *slog.Logger

	botID int64
}

// New creates a Dispatcher.
func New(api API, handler Handler, cursor CursorStore, opts Options, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		api:     api,
		handler: handler,
		cursor:  cursor,
		opts:    opts,
		logger:  logger.With("component", "dispatch"),
	}
}

// Run validates the environment and polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	me, err := d.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identifying bot: %w", err)
	}
	d.botID = me.ID
	d.logger.Info("bot identified", "username", me.Username, "id", me.ID)

	chat, err := d.api.GetChat(ctx, d.opts.GroupID)
	if err != nil {
		return fmt.Errorf("checking admin group: %w", err)
	}
	if chat.Type != telegram.ChatTypeSupergroup || !chat.IsForum {
		return fmt.Errorf("chat %d is not a forum supergroup (type=%s, forum=%v)",
			d.opts.GroupID, chat.Type, chat.IsForum)
	}

	if len(d.opts.Operators) == 0 {
		d.logger.Warn("no operators configured, group messages will be ignored")
	}

	// getUpdates and webhooks are mutually exclusive.
	if err := d.api.DeleteWebhook(ctx, d.opts.DropPending); err != nil {
		return fmt.Errorf("removing webhook: %w", err)
	}

	offset, err := d.bootstrapCursor(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("polling for updates", "offset", offset)

	for {
		updates, err := d.api.GetUpdates(ctx, offset, pollTimeout, pollLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("getUpdates failed", "error", err)
			if !sleepCtx(ctx, pollErrorDelay) {
				return nil
			}
			continue
		}

		for _, u := range updates {
			if ctx.Err() != nil {
				return nil
			}
			if u.Message != nil {
				d.route(ctx, u.Message)
			}
			offset = u.UpdateID + 1
			if err := d.cursor.SetCursor(ctx, offset); err != nil {
				d.logger.Error("failed to persist cursor", "offset", offset, "error", err)
			}
		}
	}
}

// bootstrapCursor loads the persisted cursor, or on first run snapshots the
// newest update id so a fresh deployment does not replay the backlog.
func (d *Dispatcher) bootstrapCursor(ctx context.Context) (int64, error) {
	offset, ok, err := d.cursor.GetCursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading cursor: %w", err)
	}
	if ok {
		return offset, nil
	}

	// offset -1 returns only the newest pending update, if any.
	updates, err := d.api.GetUpdates(ctx, -1, 0, 1)
	if err != nil {
		return 0, fmt.Errorf("snapshotting updates: %w", err)
	}
	if len(updates) > 0 {
		offset = updates[len(updates)-1].UpdateID + 1
	}
	if err := d.cursor.SetCursor(ctx, offset); err != nil {
		return 0, fmt.Errorf("persisting initial cursor: %w", err)
	}
	return offset, nil
}

// route delivers one message to the handler. Errors are contained here:
// a failing update never stops the loop or blocks later updates.
func (d *Dispatcher) route(ctx context.Context, m *telegram.Message) {
	if m.From == nil || m.From.ID == d.botID {
		return
	}

	switch {
	case m.Chat.Type == telegram.ChatTypePrivate:
		if err := d.handler.HandlePrivate(ctx, m); err != nil {
			d.logger.Error("private message handling failed",
				"client_id", m.From.ID,
				"error", err)
			d.apologize(ctx, m.Chat.ID)
		}
	case m.Chat.ID == d.opts.GroupID:
		if !d.opts.Operators[m.From.ID] {
			d.logger.Debug("ignoring non-operator group message", "user_id", m.From.ID)
			return
		}
		if err := d.handler.HandleGroup(ctx, m); err != nil {
			d.logger.Error("group message handling failed",
				"thread_id", m.ThreadID,
				"error", err)
		}
	}
}

// apologize tells the client something went wrong. Best effort only.
func (d *Dispatcher) apologize(ctx context.Context, chatID int64) {
	if d.opts.Apology == "" {
		return
	}
	_, err := d.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   d.opts.Apology,
	})
	if err != nil {
		d.logger.Warn("failed to send apology", "chat_id", chatID, "error", err)
	}
}

// sleepCtx waits for the duration unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
