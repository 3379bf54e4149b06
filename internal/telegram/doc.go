// Package telegram is a minimal Bot API client for the routing bot.
//
// It covers exactly the surface the router needs: long-polled updates, text
// sends, forwards, copies, forum topic creation, message deletion and document
// uploads. Every send-family call returns the message as delivered, including
// the forum thread it actually landed in, which is what the topic binder uses
// to detect silent misrouting.
//
// Retry behavior lives entirely in this package: transient network failures
// back off exponentially, HTTP 429 sleeps out the server's retry_after, and
// all other API failures surface as *APIError. Callers never branch on
// transport-specific error shapes.
package telegram
