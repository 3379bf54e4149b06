// ABOUTME: Bot API wire types used by the router, plus message-kind classification
// ABOUTME: Media payloads are kept raw; only their presence matters for routing

package telegram

import "encoding/json"

// Chat types as reported by the Bot API.
const (
	ChatTypePrivate    = "private"
	ChatTypeSupergroup = "supergroup"
)

// Message kinds recognized by classification.
const (
	KindText      = "text"
	KindVoice     = "voice"
	KindVideo     = "video"
	KindPhoto     = "photo"
	KindDocument  = "document"
	KindSticker   = "sticker"
	KindAudio     = "audio"
	KindAnimation = "animation"
	KindVideoNote = "video_note"
	KindUnknown   = "unknown"
)

// Update is one inbound event from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// User is the Bot API user object, limited to the fields the bot stores.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat is the Bot API chat object.
type Chat struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	IsForum bool   `json:"is_forum,omitempty"`
}

// Message mirrors the Bot API message object. ThreadID is the forum topic the
// message was delivered to; send-family results carry it so callers can verify
// routing. Media payloads stay raw because the bot only forwards them.
type Message struct {
	MessageID int64           `json:"message_id"`
	ThreadID  int64           `json:"message_thread_id,omitempty"`
	From      *User           `json:"from,omitempty"`
	Chat      Chat            `json:"chat"`
	Date      int64           `json:"date,omitempty"`
	Text      string          `json:"text,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	Voice     json.RawMessage `json:"voice,omitempty"`
	Video     json.RawMessage `json:"video,omitempty"`
	Photo     json.RawMessage `json:"photo,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
	Sticker   json.RawMessage `json:"sticker,omitempty"`
	Audio     json.RawMessage `json:"audio,omitempty"`
	Animation json.RawMessage `json:"animation,omitempty"`
	VideoNote json.RawMessage `json:"video_note,omitempty"`
}

// Classify buckets a message into exactly one kind by payload presence.
// Non-text kinds get a placeholder label for logging; the payload itself is
// forwarded unmodified.
func (m *Message) Classify() (kind, label string) {
	switch {
	case m.Text != "":
		return KindText, m.Text
	case len(m.Voice) > 0:
		return KindVoice, "[voice]"
	case len(m.Video) > 0:
		return KindVideo, "[video]"
	case len(m.Photo) > 0:
		return KindPhoto, "[photo]"
	case len(m.Document) > 0:
		return KindDocument, "[document]"
	case len(m.Sticker) > 0:
		return KindSticker, "[sticker]"
	case len(m.Audio) > 0:
		return KindAudio, "[audio]"
	case len(m.Animation) > 0:
		return KindAnimation, "[animation]"
	case len(m.VideoNote) > 0:
		return KindVideoNote, "[video_note]"
	default:
		return KindUnknown, "[unknown]"
	}
}

// MessageRef is the reduced result returned by copyMessage.
type MessageRef struct {
	MessageID int64 `json:"message_id"`
}

// KeyboardButton is one reply keyboard button.
type KeyboardButton struct {
	Text string `json:"text"`
}

// ReplyMarkup covers the two keyboard shapes the bot uses: option keyboards
// during the survey and keyboard removal when free text is expected.
type ReplyMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard,omitempty"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
	RemoveKeyboard  bool               `json:"remove_keyboard,omitempty"`
}

// OptionKeyboard builds a one-time reply keyboard from pre-laid-out rows of
// button texts.
func OptionKeyboard(rows [][]string) *ReplyMarkup {
	kb := make([][]KeyboardButton, len(rows))
	for i, row := range rows {
		kb[i] = make([]KeyboardButton, len(row))
		for j, text := range row {
			kb[i][j] = KeyboardButton{Text: text}
		}
	}
	return &ReplyMarkup{
		Keyboard:        kb,
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

// RemoveKeyboard clears any reply keyboard on the client side.
func RemoveKeyboard() *ReplyMarkup {
	return &ReplyMarkup{RemoveKeyboard: true}
}
