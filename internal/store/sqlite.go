// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Applies a versioned migration list once at open; no column probing at call time

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// migrations is the ordered, versioned schema history. Each entry runs at
// most once; the current version is tracked in schema_migrations.
var migrations = []struct {
	version int
	sql     string
}{
	{1, `
		CREATE TABLE IF NOT EXISTS client_profiles (
			client_id     INTEGER PRIMARY KEY,
			username      TEXT,
			first_name    TEXT,
			last_name     TEXT,
			language_code TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id       INTEGER NOT NULL,
			active          INTEGER NOT NULL DEFAULT 1,
			state           TEXT NOT NULL,
			category_key    TEXT,
			category_label  TEXT,
			display_name    TEXT,
			mood_key        TEXT,
			mood_label      TEXT,
			mood_q1         TEXT,
			mood_q2         TEXT,
			mood_q3         TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			closed_at       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_client_active
			ON conversations(client_id, active, conversation_id);

		CREATE TABLE IF NOT EXISTS client_topics (
			client_id  INTEGER PRIMARY KEY,
			thread_id  INTEGER NOT NULL,
			title      TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_client_topics_thread
			ON client_topics(thread_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			client_id       INTEGER NOT NULL,
			conversation_id INTEGER,
			role            TEXT NOT NULL,
			direction       TEXT NOT NULL,
			kind            TEXT NOT NULL,
			text            TEXT,
			src_chat_id     INTEGER,
			src_thread_id   INTEGER,
			src_message_id  INTEGER,
			dst_chat_id     INTEGER,
			dst_message_id  INTEGER,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_client_conversation
			ON messages(client_id, conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS bot_meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`},
	{2, `
		ALTER TABLE messages ADD COLUMN payload TEXT;
	`},
}

// metaCursorKey is the bot_meta key holding the next update offset.
const metaCursorKey = "update_cursor"

// NewSQLiteStore creates a new SQLite store at the given path.
// Parent directories are created if needed; the schema is migrated to the
// latest version before the store is returned.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// runMigrations applies the versioned migration list. Everything the rest of
// the store does assumes the fully-migrated schema.
func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && m.version <= int(current.Int64) {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
		s.logger.Info("applied migration", "version", m.version)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetProfile retrieves a client profile.
// Returns ErrNotFound if the client has never been seen.
func (s *SQLiteStore) GetProfile(ctx context.Context, clientID int64) (*Profile, error) {
	query := `
		SELECT client_id, username, first_name, last_name, language_code, created_at, updated_at
		FROM client_profiles
		WHERE client_id = ?
	`

	var p Profile
	var username, firstName, lastName, langCode sql.NullString
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&p.ClientID, &username, &firstName, &lastName, &langCode,
		&createdAtStr, &updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.Username = username.String
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.LanguageCode = langCode.String
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

// UpsertProfile inserts or refreshes a client profile. created_at is kept
// from the first insert.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO client_profiles (client_id, username, first_name, last_name, language_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			username      = excluded.username,
			first_name    = excluded.first_name,
			last_name     = excluded.last_name,
			language_code = excluded.language_code,
			updated_at    = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		profile.ClientID,
		nullString(profile.Username),
		nullString(profile.FirstName),
		nullString(profile.LastName),
		nullString(profile.LanguageCode),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("upserted profile", "client_id", profile.ClientID)
	return nil
}

// StartConversation deactivates any active conversation for the client and
// creates a fresh one in CATEGORY state. Both steps run in one transaction so
// the single-active invariant holds across crashes.
func (s *SQLiteStore) StartConversation(ctx context.Context, clientID int64) (*Conversation, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET active = 0,
		    closed_at = COALESCE(closed_at, ?),
		    updated_at = ?
		WHERE client_id = ? AND active = 1
	`, nowStr, nowStr, clientID)
	if err != nil {
		return nil, fmt.Errorf("deactivating previous conversation: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (client_id, active, state, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?)
	`, clientID, StateCategory, nowStr, nowStr)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading conversation id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conversation start: %w", err)
	}

	s.logger.Debug("started conversation", "client_id", clientID, "conversation_id", id)
	return &Conversation{
		ID:        id,
		ClientID:  clientID,
		Active:    true,
		State:     StateCategory,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const conversationColumns = `
	conversation_id, client_id, active, state,
	category_key, category_label, display_name,
	mood_key, mood_label, mood_q1, mood_q2, mood_q3,
	created_at, updated_at, closed_at
`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var active int
	var catKey, catLabel, name, moodKey, moodLabel, q1, q2, q3 sql.NullString
	var createdAtStr, updatedAtStr string
	var closedAtStr sql.NullString

	err := row.Scan(
		&c.ID, &c.ClientID, &active, &c.State,
		&catKey, &catLabel, &name,
		&moodKey, &moodLabel, &q1, &q2, &q3,
		&createdAtStr, &updatedAtStr, &closedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.Active = active != 0
	c.CategoryKey = catKey.String
	c.CategoryLabel = catLabel.String
	c.DisplayName = name.String
	c.MoodKey = moodKey.String
	c.MoodLabel = moodLabel.String
	c.MoodAnswers = [3]string{q1.String, q2.String, q3.String}

	c.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if closedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, closedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		c.ClosedAt = &t
	}
	return &c, nil
}

// GetActiveConversation returns the client's active conversation.
// Returns ErrNotFound if none is active.
func (s *SQLiteStore) GetActiveConversation(ctx context.Context, clientID int64) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE client_id = ? AND active = 1
		ORDER BY conversation_id DESC
		LIMIT 1
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, clientID))
}

// GetConversation retrieves a conversation by client and id.
func (s *SQLiteStore) GetConversation(ctx context.Context, clientID, conversationID int64) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE client_id = ? AND conversation_id = ?
	`
	return scanConversation(s.db.QueryRowContext(ctx, query, clientID, conversationID))
}

// UpdateConversation applies a partial update. Returns ErrNotFound if the
// conversation does not exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, clientID, conversationID int64, patch ConversationPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.State != nil {
		add("state", *patch.State)
	}
	if patch.CategoryKey != nil {
		add("category_key", *patch.CategoryKey)
	}
	if patch.CategoryLabel != nil {
		add("category_label", *patch.CategoryLabel)
	}
	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.MoodKey != nil {
		add("mood_key", *patch.MoodKey)
	}
	if patch.MoodLabel != nil {
		add("mood_label", *patch.MoodLabel)
	}
	if patch.MoodAnswer1 != nil {
		add("mood_q1", *patch.MoodAnswer1)
	}
	if patch.MoodAnswer2 != nil {
		add("mood_q2", *patch.MoodAnswer2)
	}
	if patch.MoodAnswer3 != nil {
		add("mood_q3", *patch.MoodAnswer3)
	}
	if patch.Active != nil {
		v := 0
		if *patch.Active {
			v = 1
		}
		add("active", v)
	}
	if patch.ClosedAt != nil {
		add("closed_at", patch.ClosedAt.UTC().Format(time.RFC3339))
	}

	query := "UPDATE conversations SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE client_id = ? AND conversation_id = ?"
	args = append(args, clientID, conversationID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation", "client_id", clientID, "conversation_id", conversationID)
	return nil
}

// CloseConversation deactivates a conversation and stamps its closed_at.
func (s *SQLiteStore) CloseConversation(ctx context.Context, clientID, conversationID int64) error {
	active := false
	closedAt := time.Now().UTC()
	return s.UpdateConversation(ctx, clientID, conversationID, ConversationPatch{
		Active:   &active,
		ClosedAt: &closedAt,
	})
}

// LogMessage appends a message record to the audit log.
func (s *SQLiteStore) LogMessage(ctx context.Context, rec *MessageRecord) error {
	query := `
		INSERT INTO messages (
			id, client_id, conversation_id, role, direction, kind, text,
			src_chat_id, src_thread_id, src_message_id,
			dst_chat_id, dst_message_id, payload, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ClientID,
		nullInt(rec.ConversationID),
		rec.Role,
		rec.Direction,
		rec.Kind,
		nullString(rec.Text),
		nullInt(rec.SrcChatID),
		nullInt(rec.SrcThreadID),
		nullInt(rec.SrcMessageID),
		nullInt(rec.DstChatID),
		nullInt(rec.DstMessageID),
		nullString(rec.Payload),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("logged message", "id", rec.ID, "client_id", rec.ClientID, "kind", rec.Kind)
	return nil
}

// ListMessages returns a conversation's message log in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, clientID, conversationID int64) ([]*MessageRecord, error) {
	query := `
		SELECT id, client_id, conversation_id, role, direction, kind, text,
		       src_chat_id, src_thread_id, src_message_id,
		       dst_chat_id, dst_message_id, payload, created_at
		FROM messages
		WHERE client_id = ? AND conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, clientID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var records []*MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var convID, srcChat, srcThread, srcMsg, dstChat, dstMsg sql.NullInt64
		var text, payload sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&rec.ID, &rec.ClientID, &convID, &rec.Role, &rec.Direction, &rec.Kind, &text,
			&srcChat, &srcThread, &srcMsg, &dstChat, &dstMsg, &payload, &createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		rec.ConversationID = convID.Int64
		rec.Text = text.String
		rec.SrcChatID = srcChat.Int64
		rec.SrcThreadID = srcThread.Int64
		rec.SrcMessageID = srcMsg.Int64
		rec.DstChatID = dstChat.Int64
		rec.DstMessageID = dstMsg.Int64
		rec.Payload = payload.String

		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return records, nil
}

// GetBinding retrieves the topic binding for a client.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetBinding(ctx context.Context, clientID int64) (*TopicBinding, error) {
	query := `
		SELECT client_id, thread_id, title, created_at, updated_at
		FROM client_topics
		WHERE client_id = ?
	`

	var b TopicBinding
	var title sql.NullString
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&b.ClientID, &b.ThreadID, &title, &createdAtStr, &updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying binding: %w", err)
	}

	b.Title = title.String
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &b, nil
}

// SetBinding creates or replaces a client's topic binding. An old thread id
// is abandoned, never reassigned to another client.
func (s *SQLiteStore) SetBinding(ctx context.Context, clientID, threadID int64, title string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO client_topics (client_id, thread_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			thread_id  = excluded.thread_id,
			title      = excluded.title,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, clientID, threadID, nullString(title), now, now)
	if err != nil {
		return fmt.Errorf("setting binding: %w", err)
	}

	s.logger.Debug("set binding", "client_id", clientID, "thread_id", threadID)
	return nil
}

// GetClientIDByThread resolves a forum thread back to its client.
// Returns ErrNotFound if the thread is not bound.
func (s *SQLiteStore) GetClientIDByThread(ctx context.Context, threadID int64) (int64, error) {
	var clientID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id FROM client_topics WHERE thread_id = ?`, threadID,
	).Scan(&clientID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying client by thread: %w", err)
	}
	return clientID, nil
}

// GetCursor reads the persisted update cursor. The second return is false if
// no cursor has ever been stored.
func (s *SQLiteStore) GetCursor(ctx context.Context) (int64, bool, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_meta WHERE key = ?`, metaCursorKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying cursor: %w", err)
	}
	return value, true, nil
}

// SetCursor persists the update cursor.
func (s *SQLiteStore) SetCursor(ctx context.Context, value int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO bot_meta (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, metaCursorKey, value, now); err != nil {
		return fmt.Errorf("setting cursor: %w", err)
	}
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt returns nil for zero values, otherwise the int64
func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
