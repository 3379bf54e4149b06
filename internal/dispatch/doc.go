// Package dispatch runs the long-poll update loop.
//
// # Ordering
//
// Updates are pulled with getUpdates and handled strictly one at a time, in
// update-id order. The cursor (last update id + 1) is persisted after every
// update, so a crash or restart resumes exactly where the loop stopped:
// no update is replayed into the handler and none is skipped.
//
// On the very first run there is no cursor. The dispatcher snapshots the
// newest pending update id and starts from there, so a fresh deployment
// ignores whatever backlog accumulated while the bot was offline.
//
// # Routing
//
// Private-chat messages go to Handler.HandlePrivate; messages in the
// configured admin group go to Handler.HandleGroup when the sender is a
// listed operator. An empty operator list disables group handling. The
// bot's own messages are skipped. Everything else is ignored.
//
// # Isolation
//
// A handler error is logged, the client gets an apology, and the loop moves
// on. One poisoned update can never wedge the pipeline.
package dispatch
