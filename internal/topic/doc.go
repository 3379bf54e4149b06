// Package topic maps each anonymous client to a forum topic in the admin
// group and keeps that mapping honest.
//
// # Why verification matters
//
// Telegram does not fail a send into a deleted topic. It silently delivers
// the message to the group's general channel and reports the actual thread
// in the response. Trusting a stored binding therefore leaks client
// messages where operators will miss them.
//
// The Binder treats every group-bound send as verifiable: it compares the
// requested thread with the one the transport reports, deletes anything
// that landed in the wrong place, creates a replacement topic, and retries
// the send exactly once.
//
// # Resolution order
//
//  1. TTL cache (default 10 minutes) - trusted as-is
//  2. Stored binding - verified with a silent probe message that is
//     deleted immediately
//  3. New topic - created, persisted, cached, and opened with a short
//     introduction naming the client
//
// # Key Types
//
//   - Binder: resolution, probing, misroute recovery
//   - Cache: thread-safe TTL cache of client -> thread
//   - ErrMisrouted: sentinel for deliveries outside the bound topic
package topic
