// ABOUTME: Retrying Bot API client with an explicit backoff policy
// ABOUTME: Network failures back off exponentially; 429s honor retry_after; API errors return *APIError

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultBaseURL = "https://api.telegram.org"

// APIError is a non-retryable error response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: telegram API error %d: %s", e.Method, e.Code, e.Description)
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Client talks to the Bot API over HTTP. Transient network failures are
// retried with exponential backoff; rate limits sleep out the server-reported
// retry_after. Callers never see transport-level retries, only the final
// result or an *APIError.
type Client struct {
	httpClient *http.Client
	apiURL     string
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.apiURL = u }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		// Long polls run up to 25s; leave generous headroom for uploads.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		apiURL:     defaultBaseURL,
		logger:     slog.Default().With("component", "telegram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.apiURL = c.apiURL + "/bot" + token
	return c
}

// call posts a JSON request and decodes the result into out (skipped if nil).
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%s: encoding params: %w", method, err)
	}
	return c.post(ctx, method, out, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// post executes a request built by makeReq, retrying per the backoff policy.
// The request is rebuilt on every attempt so bodies can be re-read.
func (c *Client) post(ctx context.Context, method string, out any, makeReq func() (*http.Request, error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	bo.Reset()

	for {
		req, err := makeReq()
		if err != nil {
			return fmt.Errorf("%s: building request: %w", method, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			next := bo.NextBackOff()
			if next == backoff.Stop {
				return fmt.Errorf("%s: %w", method, err)
			}
			c.logger.Debug("transport error, retrying", "method", method, "delay", next, "error", err)
			if err := sleepCtx(ctx, next); err != nil {
				return err
			}
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			next := bo.NextBackOff()
			if next == backoff.Stop {
				return fmt.Errorf("%s: reading response: %w", method, err)
			}
			if err := sleepCtx(ctx, next); err != nil {
				return err
			}
			continue
		}

		var env apiResponse
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("%s: decoding response: %w", method, err)
		}

		if env.OK {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("%s: decoding result: %w", method, err)
			}
			return nil
		}

		if env.ErrorCode == http.StatusTooManyRequests && env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			delay := time.Duration(env.Parameters.RetryAfter+1) * time.Second
			c.logger.Warn("rate limited", "method", method, "retry_after", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue
		}

		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetMe returns the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetChat fetches chat metadata (used to verify the admin group is a forum).
func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var ch Chat
	params := struct {
		ChatID int64 `json:"chat_id"`
	}{chatID}
	if err := c.call(ctx, "getChat", params, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetUpdates long-polls for inbound message events starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout, limit int) ([]Update, error) {
	params := struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		Limit          int      `json:"limit"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{offset, timeout, limit, []string{"message"}}

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DeleteWebhook clears any webhook, optionally dropping the pending backlog.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	params := struct {
		DropPendingUpdates bool `json:"drop_pending_updates"`
	}{dropPending}
	return c.call(ctx, "deleteWebhook", params, nil)
}

// SendMessageRequest carries a text send. ThreadID targets a forum topic when
// sending into the admin group; zero means the chat's main timeline.
type SendMessageRequest struct {
	ChatID              int64        `json:"chat_id"`
	ThreadID            int64        `json:"message_thread_id,omitempty"`
	Text                string       `json:"text"`
	ReplyMarkup         *ReplyMarkup `json:"reply_markup,omitempty"`
	DisableNotification bool         `json:"disable_notification,omitempty"`
}

// SendMessage sends a text message. The returned Message reports the thread
// the transport actually delivered to.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var m Message
	if err := c.call(ctx, "sendMessage", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ForwardMessageRequest carries a forward into a forum topic.
type ForwardMessageRequest struct {
	ChatID              int64 `json:"chat_id"`
	FromChatID          int64 `json:"from_chat_id"`
	MessageID           int64 `json:"message_id"`
	ThreadID            int64 `json:"message_thread_id,omitempty"`
	DisableNotification bool  `json:"disable_notification,omitempty"`
}

// ForwardMessage forwards a message, preserving its origin header.
func (c *Client) ForwardMessage(ctx context.Context, req ForwardMessageRequest) (*Message, error) {
	var m Message
	if err := c.call(ctx, "forwardMessage", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CopyMessageRequest carries a verbatim copy (no origin header).
type CopyMessageRequest struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id"`
	MessageID  int64 `json:"message_id"`
}

// CopyMessage copies a message without the forwarded-from header.
func (c *Client) CopyMessage(ctx context.Context, req CopyMessageRequest) (*MessageRef, error) {
	var ref MessageRef
	if err := c.call(ctx, "copyMessage", req, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// CreateForumTopic creates a topic in a forum supergroup and returns its
// thread id.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	params := struct {
		ChatID int64  `json:"chat_id"`
		Name   string `json:"name"`
	}{chatID, name}

	var topic struct {
		ThreadID int64 `json:"message_thread_id"`
	}
	if err := c.call(ctx, "createForumTopic", params, &topic); err != nil {
		return 0, err
	}
	return topic.ThreadID, nil
}

// DeleteMessage removes a message the bot previously sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int64 `json:"message_id"`
	}{chatID, messageID}
	return c.call(ctx, "deleteMessage", params, nil)
}

// SendDocumentRequest carries a file upload into a chat or forum topic.
type SendDocumentRequest struct {
	ChatID              int64
	ThreadID            int64
	FilePath            string
	Filename            string
	Caption             string
	DisableNotification bool
}

// SendDocument uploads a local file as a document via multipart form data.
func (c *Client) SendDocument(ctx context.Context, req SendDocumentRequest) (*Message, error) {
	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("sendDocument: reading file: %w", err)
	}
	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.FilePath)
	}

	var m Message
	err = c.post(ctx, "sendDocument", &m, func() (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("chat_id", fmt.Sprint(req.ChatID)); err != nil {
			return nil, err
		}
		if req.ThreadID != 0 {
			if err := w.WriteField("message_thread_id", fmt.Sprint(req.ThreadID)); err != nil {
				return nil, err
			}
		}
		if req.Caption != "" {
			if err := w.WriteField("caption", req.Caption); err != nil {
				return nil, err
			}
		}
		if req.DisableNotification {
			if err := w.WriteField("disable_notification", "true"); err != nil {
				return nil, err
			}
		}
		part, err := w.CreateFormFile("document", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/sendDocument", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", w.FormDataContentType())
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}
