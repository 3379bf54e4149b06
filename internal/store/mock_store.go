// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	profiles      map[int64]*Profile
	conversations map[int64]*Conversation // keyed by conversation ID
	nextConvID    int64
	messages      []*MessageRecord
	bindings      map[int64]*TopicBinding // keyed by client ID
	threadIndex   map[int64]int64         // thread ID -> client ID
	cursor        int64
	cursorSet     bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		profiles:      make(map[int64]*Profile),
		conversations: make(map[int64]*Conversation),
		bindings:      make(map[int64]*TopicBinding),
		threadIndex:   make(map[int64]int64),
	}
}

// GetProfile retrieves a profile by client ID.
func (m *MockStore) GetProfile(ctx context.Context, clientID int64) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// UpsertProfile stores a profile, keeping the original created_at on update.
func (m *MockStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := *profile
	p.UpdatedAt = time.Now()
	if existing, ok := m.profiles[p.ClientID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = p.UpdatedAt
	}
	m.profiles[p.ClientID] = &p
	return nil
}

// StartConversation deactivates any active conversation and creates a new one.
func (m *MockStore) StartConversation(ctx context.Context, clientID int64) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, c := range m.conversations {
		if c.ClientID == clientID && c.Active {
			c.Active = false
			if c.ClosedAt == nil {
				closed := now
				c.ClosedAt = &closed
			}
			c.UpdatedAt = now
		}
	}

	m.nextConvID++
	conv := &Conversation{
		ID:        m.nextConvID,
		ClientID:  clientID,
		Active:    true,
		State:     StateCategory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv

	result := *conv
	return &result, nil
}

// GetActiveConversation returns the client's active conversation.
func (m *MockStore) GetActiveConversation(ctx context.Context, clientID int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Conversation
	for _, c := range m.conversations {
		if c.ClientID == clientID && c.Active {
			if latest == nil || c.ID > latest.ID {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	result := *latest
	return &result, nil
}

// GetConversation retrieves a conversation by client and id.
func (m *MockStore) GetConversation(ctx context.Context, clientID, conversationID int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[conversationID]
	if !ok || c.ClientID != clientID {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// UpdateConversation applies a partial update.
func (m *MockStore) UpdateConversation(ctx context.Context, clientID, conversationID int64, patch ConversationPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok || c.ClientID != clientID {
		return ErrNotFound
	}

	if patch.State != nil {
		c.State = *patch.State
	}
	if patch.CategoryKey != nil {
		c.CategoryKey = *patch.CategoryKey
	}
	if patch.CategoryLabel != nil {
		c.CategoryLabel = *patch.CategoryLabel
	}
	if patch.DisplayName != nil {
		c.DisplayName = *patch.DisplayName
	}
	if patch.MoodKey != nil {
		c.MoodKey = *patch.MoodKey
	}
	if patch.MoodLabel != nil {
		c.MoodLabel = *patch.MoodLabel
	}
	if patch.MoodAnswer1 != nil {
		c.MoodAnswers[0] = *patch.MoodAnswer1
	}
	if patch.MoodAnswer2 != nil {
		c.MoodAnswers[1] = *patch.MoodAnswer2
	}
	if patch.MoodAnswer3 != nil {
		c.MoodAnswers[2] = *patch.MoodAnswer3
	}
	if patch.Active != nil {
		c.Active = *patch.Active
	}
	if patch.ClosedAt != nil {
		t := *patch.ClosedAt
		c.ClosedAt = &t
	}
	c.UpdatedAt = time.Now()
	return nil
}

// CloseConversation deactivates a conversation.
func (m *MockStore) CloseConversation(ctx context.Context, clientID, conversationID int64) error {
	active := false
	closedAt := time.Now()
	return m.UpdateConversation(ctx, clientID, conversationID, ConversationPatch{
		Active:   &active,
		ClosedAt: &closedAt,
	})
}

// LogMessage appends a message record.
func (m *MockStore) LogMessage(ctx context.Context, rec *MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.messages = append(m.messages, &r)
	return nil
}

// ListMessages returns a conversation's messages in insertion order.
func (m *MockStore) ListMessages(ctx context.Context, clientID, conversationID int64) ([]*MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MessageRecord
	for _, rec := range m.messages {
		if rec.ClientID == clientID && rec.ConversationID == conversationID {
			r := *rec
			out = append(out, &r)
		}
	}
	return out, nil
}

// Messages returns every logged record (test helper).
func (m *MockStore) Messages() []*MessageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MessageRecord, len(m.messages))
	copy(out, m.messages)
	return out
}

// GetBinding retrieves the topic binding for a client.
func (m *MockStore) GetBinding(ctx context.Context, clientID int64) (*TopicBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bindings[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *b
	return &result, nil
}

// SetBinding creates or replaces a client's topic binding.
func (m *MockStore) SetBinding(ctx context.Context, clientID, threadID int64, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if old, ok := m.bindings[clientID]; ok {
		delete(m.threadIndex, old.ThreadID)
	}
	m.bindings[clientID] = &TopicBinding{
		ClientID:  clientID,
		ThreadID:  threadID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.threadIndex[threadID] = clientID
	return nil
}

// GetClientIDByThread resolves a thread back to its client.
func (m *MockStore) GetClientIDByThread(ctx context.Context, threadID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clientID, ok := m.threadIndex[threadID]
	if !ok {
		return 0, ErrNotFound
	}
	return clientID, nil
}

// GetCursor reads the stored cursor.
func (m *MockStore) GetCursor(ctx context.Context) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, m.cursorSet, nil
}

// SetCursor stores the cursor.
func (m *MockStore) SetCursor(ctx context.Context, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = value
	m.cursorSet = true
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
