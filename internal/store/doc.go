// Package store provides persistent storage for the bot using SQLite.
//
// # Architecture
//
// The Store interface covers everything the bot persists:
//
//   - Client profiles: last-seen username and name per client
//   - Conversations: survey state machine rows, one active per client
//   - Topic bindings: client-to-forum-thread routing
//   - Messages: full relay log for exports
//   - Update cursor: last processed Telegram update id
//
// SQLiteStore implements the interface on modernc.org/sqlite; MockStore is
// an in-memory implementation for tests.
//
// # Data Models
//
//   - Profile: client identity snapshot (username, first/last name)
//   - Conversation: survey progress (state, category, name, mood, answers)
//   - TopicBinding: clientID <-> threadID mapping with topic title
//   - MessageRecord: one relayed or bot-sent message with routing metadata
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
// ErrNotFound is returned when a requested entity does not exist. All
// methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore with a temp path
// for integration tests with real SQLite.
//
// # Migrations
//
// Migrations are versioned in-code and run automatically on store
// initialization, tracked in the schema_migrations table.
package store
