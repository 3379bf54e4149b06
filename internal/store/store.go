// ABOUTME: Store interface and data types for the routing bot's persistence
// ABOUTME: Defines Profile, Conversation, TopicBinding, MessageRecord and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation states, in survey order. CHAT is terminal for the survey;
// free-form relay continues there.
const (
	StateCategory = "CATEGORY"
	StateName     = "NAME"
	StateMood     = "MOOD"
	StateMoodQ1   = "MOOD_Q1"
	StateMoodQ2   = "MOOD_Q2"
	StateMoodQ3   = "MOOD_Q3"
	StateChat     = "CHAT"
)

// Message roles and directions for the audit log.
const (
	RoleClient   = "client"
	RoleBot      = "bot"
	RoleOperator = "operator"

	DirectionIn  = "in"
	DirectionOut = "out"
)

// Profile is what the bot knows about an end user.
type Profile struct {
	ClientID     int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation is one survey-and-chat session for a client. At most one
// conversation per client is active at any time.
type Conversation struct {
	ID            int64
	ClientID      int64
	Active        bool
	State         string
	CategoryKey   string
	CategoryLabel string
	DisplayName   string
	MoodKey       string
	MoodLabel     string
	MoodAnswers   [3]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// ConversationPatch is a partial update applied through UpdateConversation.
// Nil fields are left untouched.
type ConversationPatch struct {
	State         *string
	CategoryKey   *string
	CategoryLabel *string
	DisplayName   *string
	MoodKey       *string
	MoodLabel     *string
	MoodAnswer1   *string
	MoodAnswer2   *string
	MoodAnswer3   *string
	Active        *bool
	ClosedAt      *time.Time
}

// TopicBinding maps a client to their forum topic in the admin group.
// Thread ids are unique across bindings: a topic belongs to exactly one client.
type TopicBinding struct {
	ClientID  int64
	ThreadID  int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is one logged message, inbound or outbound.
type MessageRecord struct {
	ID             string
	ClientID       int64
	ConversationID int64
	Role           string
	Direction      string
	Kind           string
	Text           string
	SrcChatID      int64
	SrcThreadID    int64
	SrcMessageID   int64
	DstChatID      int64
	DstMessageID   int64
	Payload        string // optional JSON context (question asked, mirror refs)
	CreatedAt      time.Time
}

// Store defines the persistence surface for profiles, conversations, topic
// bindings, the message log and the update cursor.
type Store interface {
	// Profiles
	GetProfile(ctx context.Context, clientID int64) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) error

	// Conversations
	StartConversation(ctx context.Context, clientID int64) (*Conversation, error)
	GetActiveConversation(ctx context.Context, clientID int64) (*Conversation, error)
	GetConversation(ctx context.Context, clientID, conversationID int64) (*Conversation, error)
	UpdateConversation(ctx context.Context, clientID, conversationID int64, patch ConversationPatch) error
	CloseConversation(ctx context.Context, clientID, conversationID int64) error

	// Message log
	LogMessage(ctx context.Context, rec *MessageRecord) error
	ListMessages(ctx context.Context, clientID, conversationID int64) ([]*MessageRecord, error)

	// Topic bindings
	GetBinding(ctx context.Context, clientID int64) (*TopicBinding, error)
	SetBinding(ctx context.Context, clientID, threadID int64, title string) error
	GetClientIDByThread(ctx context.Context, threadID int64) (int64, error)

	// Update cursor (next inbound sequence number to fetch)
	GetCursor(ctx context.Context) (int64, bool, error)
	SetCursor(ctx context.Context, value int64) error

	// Close releases any resources held by the store
	Close() error
}
